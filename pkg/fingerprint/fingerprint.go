// Package fingerprint produces deterministic SHA-256 digests of record data.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Generate creates a deterministic fingerprint for arbitrary JSON-like data.
// Map keys are sorted so logically equal inputs always hash the same.
func Generate(data any) string {
	var b strings.Builder
	canonicalize(&b, data)
	return digest(b.String())
}

// Identity fingerprints a set of already-normalized field values. Two records
// with the same identity fields and values produce the same key.
func Identity(values map[string]string) string {
	data := make(map[string]any, len(values))
	for k, v := range values {
		data[k] = v
	}
	return Generate(data)
}

// Batch fingerprints a resolution request: the engine configuration digest, the
// threshold, and every record in input order. Reordering the records changes the
// fingerprint because result indices refer to input order.
func Batch(config string, threshold float64, candidates, references []models.Record) string {
	var b strings.Builder
	b.WriteString(strconv.Quote(config))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(threshold, 'g', -1, 64))
	for _, group := range [][]models.Record{candidates, references} {
		b.WriteString("|[")
		for i, r := range group {
			if i > 0 {
				b.WriteByte(',')
			}
			canonicalize(&b, recordData(r))
		}
		b.WriteByte(']')
	}
	return digest(b.String())
}

func recordData(r models.Record) map[string]any {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		if v == nil {
			fields[k] = nil
			continue
		}
		fields[k] = *v
	}
	return map[string]any{"id": r.ID, "label": r.Label, "fields": fields}
}

func digest(canonical string) string {
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// canonicalize writes a deterministic representation of data, sorting map keys
// and recursing into nested structures
func canonicalize(b *strings.Builder, data any) {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			keyJSON, _ := json.Marshal(k)
			b.Write(keyJSON)
			b.WriteByte(':')
			canonicalize(b, v[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, el := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			canonicalize(b, el)
		}
		b.WriteByte(']')
	default:
		raw, _ := json.Marshal(v)
		b.Write(raw)
	}
}

package matching

import (
	"strings"

	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Matcher compares one record against another and produces a scored, explained
// result. Identity field sets short-circuit fuzzy scoring: when every field in a
// set is present and equal on both sides the match is exact at the maximum score.
type Matcher struct {
	comparator   *Comparator
	identitySets [][]string
}

// NewMatcher validates the field specs and identity sets and builds a matcher
func NewMatcher(specs []models.FieldSpec, opts ...Option) (*Matcher, error) {
	o := buildOptions(opts)
	return newMatcher(specs, o)
}

func newMatcher(specs []models.FieldSpec, o Options) (*Matcher, error) {
	comparator, err := NewComparator(specs, o.Registry, o.Tiers)
	if err != nil {
		return nil, err
	}

	sets := make([][]string, 0, len(o.IdentitySets))
	for _, set := range o.IdentitySets {
		if len(set) == 0 {
			return nil, NewConfigurationErrorf("", "identity field set must name at least one field")
		}
		for _, field := range set {
			if !comparator.HasField(field) {
				return nil, NewConfigurationErrorf(field, "identity field set references unknown field")
			}
		}
		sets = append(sets, append([]string(nil), set...))
	}

	return &Matcher{comparator: comparator, identitySets: sets}, nil
}

// MaxScore returns the maximum attainable score, the sum of all field weights
func (m *Matcher) MaxScore() float64 {
	return m.comparator.MaxScore()
}

// Fields returns the matcher's field specs in declaration order
func (m *Matcher) Fields() []models.FieldSpec {
	return m.comparator.Fields()
}

// MatchOne compares a candidate to a reference record. It returns nil when
// nothing matched at all (score exactly 0). Thresholds are the caller's concern.
func (m *Matcher) MatchOne(candidate, reference models.Record) (*models.MatchResult, error) {
	if strings.TrimSpace(reference.ID) == "" {
		return nil, NewValidationErrorf("references", -1, "reference id is required")
	}

	score, reasons, exact, fields := m.compare(candidate, reference)
	if score == 0 && !exact {
		return nil, nil
	}

	return &models.MatchResult{
		ReferenceID:    reference.ID,
		ReferenceLabel: reference.DisplayLabel(),
		Score:          score,
		Reasons:        reasons,
		Exact:          exact,
		FieldScores:    fields,
	}, nil
}

// Compare scores two candidate-typed records against each other, as used for
// intra-batch duplicate detection. ok is false when nothing matched.
func (m *Matcher) Compare(a, b models.Record) (score float64, reasons []string, exact bool, ok bool) {
	score, reasons, exact, _ = m.compare(a, b)
	return score, reasons, exact, score > 0 || exact
}

func (m *Matcher) compare(a, b models.Record) (float64, []string, bool, map[string]float64) {
	comparison := m.comparator.Compare(a, b)

	fields := make(map[string]float64, len(comparison.Fields))
	for _, f := range comparison.Fields {
		fields[f.Field] = f.Similarity
	}

	if set, ok := m.identityMatch(a, b); ok {
		reasons := make([]string, 0, len(comparison.Reasons)+1)
		reasons = append(reasons, "Exact identity match on "+strings.Join(set, ", "))
		reasons = append(reasons, comparison.Reasons...)
		return m.comparator.MaxScore(), reasons, true, fields
	}

	return comparison.Score, comparison.Reasons, false, fields
}

// identityMatch returns the first identity set whose fields are all present and
// equal after normalization on both records
func (m *Matcher) identityMatch(a, b models.Record) ([]string, bool) {
	for _, set := range m.identitySets {
		keyA, okA := m.identityKey(set, a)
		if !okA {
			continue
		}
		keyB, okB := m.identityKey(set, b)
		if !okB {
			continue
		}
		if keyA == keyB {
			return set, true
		}
	}
	return nil, false
}

func (m *Matcher) identityKey(set []string, r models.Record) (string, bool) {
	values := make(map[string]string, len(set))
	for _, field := range set {
		v, ok := m.comparator.Canonical(field, r)
		if !ok {
			return "", false
		}
		values[field] = v
	}
	return fingerprint.Identity(values), true
}

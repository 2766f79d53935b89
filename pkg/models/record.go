package models

// Record is a candidate or reference entity: an opaque ID, a display label, and a
// mapping from field name to optional value. A nil value or a missing key means
// the field is absent.
type Record struct {
	ID     string             `json:"id"`
	Label  string             `json:"label,omitempty"`
	Fields map[string]*string `json:"fields"`
}

// NewRecord builds a record from plain string values. Empty strings are kept as
// present-but-empty; comparison treats them as absent.
func NewRecord(id, label string, fields map[string]string) Record {
	r := Record{ID: id, Label: label, Fields: make(map[string]*string, len(fields))}
	for k, v := range fields {
		v := v
		r.Fields[k] = &v
	}
	return r
}

// Get returns the raw value of a field and whether it is present
func (r Record) Get(field string) (string, bool) {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// DisplayLabel returns the label, falling back to the ID
func (r Record) DisplayLabel() string {
	if r.Label != "" {
		return r.Label
	}
	return r.ID
}

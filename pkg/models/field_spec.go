package models

import "strings"

// ComparisonType defines how a field is compared between two records
type ComparisonType string

const (
	ComparisonExactNormalized ComparisonType = "exact_normalized" // Equal after normalization, all or nothing
	ComparisonFuzzy           ComparisonType = "fuzzy"            // Edit-distance similarity with tiered bonus
	ComparisonSetOverlap      ComparisonType = "set_overlap"      // Delimited value sets, scored by overlap
)

// Valid reports whether c is a known comparison type
func (c ComparisonType) Valid() bool {
	switch c {
	case ComparisonExactNormalized, ComparisonFuzzy, ComparisonSetOverlap:
		return true
	}
	return false
}

// FieldSpec describes one comparable attribute of an entity type
type FieldSpec struct {
	Name       string         `json:"name" yaml:"name" validate:"required"`
	Comparison ComparisonType `json:"comparison" yaml:"comparison" validate:"required"`
	Weight     float64        `json:"weight" yaml:"weight" validate:"gte=0"`
	Normalizer string         `json:"normalizer,omitempty" yaml:"normalizer,omitempty"`
	Label      string         `json:"label,omitempty" yaml:"label,omitempty"` // Noun used in reasons, e.g. "email address"
}

// DisplayLabel returns the label used in human-readable reasons.
// Fields without an explicit label fall back to a plural of their name with
// underscores replaced, so "name" reads as "names".
func (f FieldSpec) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	label := strings.ReplaceAll(f.Name, "_", " ")
	switch {
	case label == "":
		return "values"
	case f.Comparison == ComparisonExactNormalized:
		return label
	case strings.HasSuffix(label, "s"):
		return label
	default:
		return label + "s"
	}
}

// MaxScore returns the sum of all field weights, the maximum attainable score
func MaxScore(specs []FieldSpec) float64 {
	var total float64
	for _, spec := range specs {
		total += spec.Weight
	}
	return total
}

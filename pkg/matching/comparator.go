package matching

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// FuzzyTiers controls the two-tier bonus applied to fuzzy fields. Similarity at or
// above High earns the full weight; at or above Low it earns LowFactor × weight;
// anything lower earns nothing.
type FuzzyTiers struct {
	High      float64 `json:"high" yaml:"high"`
	Low       float64 `json:"low" yaml:"low"`
	LowFactor float64 `json:"low_factor" yaml:"low_factor"`
}

// DefaultFuzzyTiers returns the standard tier boundaries
func DefaultFuzzyTiers() FuzzyTiers {
	return FuzzyTiers{High: 0.95, Low: 0.80, LowFactor: 0.7}
}

func (t FuzzyTiers) validate() error {
	switch {
	case t.Low < 0 || t.High > 1 || t.Low > t.High:
		return NewConfigurationErrorf("", "fuzzy tiers must satisfy 0 <= low <= high <= 1, got low=%v high=%v", t.Low, t.High)
	case t.LowFactor < 0 || t.LowFactor > 1:
		return NewConfigurationErrorf("", "fuzzy low_factor must be within [0,1], got %v", t.LowFactor)
	}
	return nil
}

// FieldScore explains one field's part in a comparison
type FieldScore struct {
	Field        string  `json:"field"`
	Similarity   float64 `json:"similarity"`
	Contribution float64 `json:"contribution"`
}

// Comparison is the outcome of comparing two records field by field
type Comparison struct {
	Score   float64
	Reasons []string
	Fields  []FieldScore
}

type fieldRule struct {
	spec      models.FieldSpec
	label     string
	normalize normalizers.Normalizer
}

// Comparator applies per-field comparison strategies and weights. It is immutable
// after construction and safe for concurrent use.
type Comparator struct {
	rules    []fieldRule
	index    map[string]int
	scorer   *Scorer
	tiers    FuzzyTiers
	maxScore float64
}

// NewComparator validates the field specs and builds a comparator
func NewComparator(specs []models.FieldSpec, registry *normalizers.Registry, tiers FuzzyTiers) (*Comparator, error) {
	if len(specs) == 0 {
		return nil, NewConfigurationErrorf("", "at least one field spec is required")
	}
	if registry == nil {
		registry = normalizers.Default()
	}
	if err := tiers.validate(); err != nil {
		return nil, err
	}

	c := &Comparator{
		rules:  make([]fieldRule, 0, len(specs)),
		index:  make(map[string]int, len(specs)),
		scorer: NewScorer(),
		tiers:  tiers,
	}

	for _, spec := range specs {
		if strings.TrimSpace(spec.Name) == "" {
			return nil, NewConfigurationErrorf("", "field spec name is required")
		}
		if _, dup := c.index[spec.Name]; dup {
			return nil, NewConfigurationErrorf(spec.Name, "duplicate field spec")
		}
		if !spec.Comparison.Valid() {
			return nil, NewConfigurationErrorf(spec.Name, "unknown comparison %q", spec.Comparison)
		}
		if spec.Weight < 0 || math.IsNaN(spec.Weight) || math.IsInf(spec.Weight, 0) {
			return nil, NewConfigurationErrorf(spec.Name, "weight must be a non-negative number, got %v", spec.Weight)
		}

		normalizerName := spec.Normalizer
		if normalizerName == "" {
			normalizerName = normalizers.Text
		}
		fn, err := registry.Chain(normalizerName)
		if err != nil {
			return nil, NewConfigurationErrorf(spec.Name, "%v", err)
		}

		c.index[spec.Name] = len(c.rules)
		c.rules = append(c.rules, fieldRule{spec: spec, label: spec.DisplayLabel(), normalize: fn})
		c.maxScore += spec.Weight
	}

	if c.maxScore <= 0 {
		return nil, NewConfigurationErrorf("", "total field weight must be positive")
	}

	return c, nil
}

// MaxScore returns the sum of all field weights
func (c *Comparator) MaxScore() float64 {
	return c.maxScore
}

// Fields returns the field specs in declaration order
func (c *Comparator) Fields() []models.FieldSpec {
	specs := make([]models.FieldSpec, len(c.rules))
	for i, rule := range c.rules {
		specs[i] = rule.spec
	}
	return specs
}

// HasField reports whether a field spec with the given name exists
func (c *Comparator) HasField(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Compare scores two records field by field in declaration order. Fields absent
// or empty on either side are skipped and never count as a match.
func (c *Comparator) Compare(a, b models.Record) Comparison {
	result := Comparison{Reasons: []string{}, Fields: []FieldScore{}}

	for _, rule := range c.rules {
		valueA, okA := c.normalized(rule, a)
		valueB, okB := c.normalized(rule, b)
		if !okA || !okB {
			continue
		}

		var similarity, contribution float64
		var reason string

		switch rule.spec.Comparison {
		case models.ComparisonExactNormalized:
			if valueA == valueB {
				similarity = 1
				contribution = rule.spec.Weight
				reason = fmt.Sprintf("Same %s", rule.label)
			}
		case models.ComparisonFuzzy:
			similarity = c.scorer.Similarity(valueA, valueB)
			pct := int(math.Round(similarity * 100))
			switch {
			case similarity >= c.tiers.High:
				contribution = rule.spec.Weight
				reason = fmt.Sprintf("Nearly identical %s (%d%%)", rule.label, pct)
			case similarity >= c.tiers.Low:
				contribution = c.tiers.LowFactor * rule.spec.Weight
				reason = fmt.Sprintf("Similar %s (%d%%)", rule.label, pct)
			}
		case models.ComparisonSetOverlap:
			setA, setB := splitSet(valueA), splitSet(valueB)
			shared, union := overlap(setA, setB)
			if shared > 0 {
				similarity = float64(shared) / float64(union)
				contribution = rule.spec.Weight * similarity
				reason = fmt.Sprintf("Shared %s (%d of %d)", rule.label, shared, union)
			}
		}

		result.Fields = append(result.Fields, FieldScore{
			Field:        rule.spec.Name,
			Similarity:   similarity,
			Contribution: contribution,
		})
		if contribution > 0 {
			result.Score += contribution
			result.Reasons = append(result.Reasons, reason)
		}
	}

	return result
}

// Canonical returns the normalized, comparable form of a record's field value.
// Set fields are reduced to their sorted unique elements so ordering never matters.
func (c *Comparator) Canonical(field string, r models.Record) (string, bool) {
	i, ok := c.index[field]
	if !ok {
		return "", false
	}
	rule := c.rules[i]
	value, ok := c.normalized(rule, r)
	if !ok {
		return "", false
	}
	switch rule.spec.Comparison {
	case models.ComparisonFuzzy:
		value = normalizers.NormalizeText(value)
	case models.ComparisonSetOverlap:
		value = strings.Join(splitSet(value), ",")
	}
	return value, value != ""
}

func (c *Comparator) normalized(rule fieldRule, r models.Record) (string, bool) {
	raw, ok := r.Get(rule.spec.Name)
	if !ok {
		return "", false
	}
	if rule.spec.Comparison == models.ComparisonSetOverlap {
		elements := make([]string, 0)
		for _, el := range strings.FieldsFunc(raw, isSetDelimiter) {
			if v := rule.normalize(el); strings.TrimSpace(v) != "" {
				elements = append(elements, strings.TrimSpace(v))
			}
		}
		value := strings.Join(elements, ",")
		return value, value != ""
	}
	value := rule.normalize(raw)
	if strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

func isSetDelimiter(r rune) bool {
	return r == ',' || r == ';' || r == '|'
}

// splitSet turns a comma-joined normalized value into sorted unique elements
func splitSet(value string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, el := range strings.Split(value, ",") {
		if el == "" {
			continue
		}
		if _, ok := seen[el]; ok {
			continue
		}
		seen[el] = struct{}{}
		out = append(out, el)
	}
	sort.Strings(out)
	return out
}

func overlap(a, b []string) (shared, union int) {
	inA := make(map[string]struct{}, len(a))
	for _, el := range a {
		inA[el] = struct{}{}
	}
	for _, el := range b {
		if _, ok := inA[el]; ok {
			shared++
		}
	}
	return shared, len(a) + len(b) - shared
}

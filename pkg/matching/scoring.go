package matching

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// Scorer provides string comparison algorithms
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Similarity returns the normalized Levenshtein similarity of two strings after
// text normalization: 1 - distance/max(len). Lengths are counted in code points.
// Two empty strings are identical (1.0); one empty string scores 0.0.
func (s *Scorer) Similarity(a, b string) float64 {
	return s.Levenshtein(normalizers.NormalizeText(a), normalizers.NormalizeText(b))
}

// Levenshtein returns the similarity of two already-normalized strings
func (s *Scorer) Levenshtein(a, b string) float64 {
	if a == b {
		return 1.0
	}
	lenA := utf8.RuneCountInString(a)
	lenB := utf8.RuneCountInString(b)
	if lenA == 0 || lenB == 0 {
		return 0.0
	}
	maxLen := max(lenA, lenB)
	return 1.0 - float64(s.LevenshteinDistance(a, b))/float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings in code points
func (s *Scorer) LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	return levenshtein.ComputeDistance(a, b)
}

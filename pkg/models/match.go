package models

// Decision is the actionable bucket for a match
type Decision string

const (
	DecisionExact     Decision = "exact"     // Same entity; block insertion or treat as existing
	DecisionPotential Decision = "potential" // Ask a human to confirm or ignore
	DecisionNoMatch   Decision = "none"      // Proceed silently
)

// MatchResult is the outcome of comparing a candidate to a reference record
type MatchResult struct {
	ReferenceID    string   `json:"reference_id"`
	ReferenceLabel string   `json:"reference_label"`
	Score          float64  `json:"score"`
	Reasons        []string `json:"reasons"`
	Exact          bool     `json:"exact"` // True when an identity field set matched

	FieldScores map[string]float64 `json:"field_scores,omitempty"` // Similarity per compared field
}

// CrossMatch pairs a candidate (by input index) with a matching reference record
type CrossMatch struct {
	CandidateIndex int         `json:"candidate_index"`
	Match          MatchResult `json:"match"`
}

// PairMatch is a likely duplicate within the incoming batch. CandidateIndex1 is
// always lower than CandidateIndex2.
type PairMatch struct {
	CandidateIndex1 int      `json:"candidate_index_1"`
	CandidateIndex2 int      `json:"candidate_index_2"`
	Score           float64  `json:"score"`
	Reasons         []string `json:"reasons"`
	Exact           bool     `json:"exact"`
}

// BatchResolutionResult is the outcome of resolving a batch of candidates
type BatchResolutionResult struct {
	CrossMatches      []CrossMatch `json:"cross_matches"`
	IntraBatchMatches []PairMatch  `json:"intra_batch_matches"`
}

// ClassifiedMatch is a cross match with its decision bucket
type ClassifiedMatch struct {
	CandidateIndex int         `json:"candidate_index"`
	Match          MatchResult `json:"match"`
	Decision       Decision    `json:"decision"`
}

// ClassifiedPair is an intra-batch pair with its decision bucket
type ClassifiedPair struct {
	PairMatch
	Decision Decision `json:"decision"`
}

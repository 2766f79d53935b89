package matching

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Thresholds map a score to a decision. Exact of 0 disables the score-based
// exact bucket, leaving identity matches as the only route to DecisionExact.
type Thresholds struct {
	Exact     float64 `json:"exact" yaml:"exact" validate:"gte=0"`
	Potential float64 `json:"potential" yaml:"potential" validate:"gte=0"`
}

func (t Thresholds) validate() error {
	checks := []struct {
		name  string
		value float64
	}{{"exact", t.Exact}, {"potential", t.Potential}}
	for _, c := range checks {
		if c.value < 0 || math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return NewConfigurationErrorf("thresholds."+c.name, "threshold must be a non-negative number, got %v", c.value)
		}
	}
	if t.Exact > 0 && t.Exact < t.Potential {
		return NewConfigurationErrorf("thresholds.exact", "exact threshold %v is below potential threshold %v", t.Exact, t.Potential)
	}
	return nil
}

// Classify maps a score to a decision. Identity matches are always exact. A pair
// with a zero score shares no evidence and is never a potential match, even when
// the potential threshold is 0.
func (t Thresholds) Classify(score float64, identity bool) models.Decision {
	switch {
	case identity:
		return models.DecisionExact
	case t.Exact > 0 && score >= t.Exact:
		return models.DecisionExact
	case score > 0 && score >= t.Potential:
		return models.DecisionPotential
	default:
		return models.DecisionNoMatch
	}
}

// Policy is the complete matching configuration for one entity type. Guest and
// vendor deduplication differ only in their policies.
type Policy struct {
	Name         string             `json:"name" yaml:"name" validate:"required"`
	Description  string             `json:"description,omitempty" yaml:"description,omitempty"`
	Fields       []models.FieldSpec `json:"fields" yaml:"fields" validate:"required,min=1,dive"`
	IdentitySets [][]string         `json:"identity_sets,omitempty" yaml:"identity_sets,omitempty"`
	Thresholds   Thresholds         `json:"thresholds" yaml:"thresholds"`
}

// Recorder observes engine activity, typically for metrics
type Recorder interface {
	ObserveResolution(policy string, candidates, references int, result *models.BatchResolutionResult, elapsed time.Duration)
	ObserveDecision(policy string, decision models.Decision)
}

type nopRecorder struct{}

func (nopRecorder) ObserveResolution(string, int, int, *models.BatchResolutionResult, time.Duration) {}
func (nopRecorder) ObserveDecision(string, models.Decision)                                        {}

// Engine binds a policy to a matcher, resolver and classifier
type Engine struct {
	policy   Policy
	matcher  *Matcher
	resolver *Resolver
	recorder Recorder
	log      *zap.Logger
	digest   string
}

// NewEngine validates the policy and builds an engine. Identity sets passed as
// options are added to those declared by the policy.
func NewEngine(policy Policy, opts ...Option) (*Engine, error) {
	o := buildOptions(opts)
	o.IdentitySets = append(append([][]string(nil), policy.IdentitySets...), o.IdentitySets...)

	if err := policy.Thresholds.validate(); err != nil {
		return nil, withPolicy(err, policy.Name)
	}
	matcher, err := newMatcher(policy.Fields, o)
	if err != nil {
		return nil, withPolicy(err, policy.Name)
	}

	return &Engine{
		policy:   policy,
		matcher:  matcher,
		resolver: newResolver(matcher, o),
		recorder: o.Recorder,
		log:      o.Logger.With(zap.String("policy", policy.Name)),
		digest:   configDigest(policy, o),
	}, nil
}

// configDigest fingerprints everything that shapes a result: the policy itself,
// the effective identity sets and the fuzzy tiers. Custom normalizer functions
// are identified by name only.
func configDigest(policy Policy, o Options) string {
	return fingerprint.Generate(struct {
		Policy       Policy     `json:"policy"`
		IdentitySets [][]string `json:"identity_sets"`
		Tiers        FuzzyTiers `json:"tiers"`
	}{policy, o.IdentitySets, o.Tiers})
}

func withPolicy(err error, name string) error {
	if cfgErr, ok := err.(*ConfigurationError); ok {
		return cfgErr.AddPolicy(name)
	}
	return err
}

// Policy returns the engine's policy
func (e *Engine) Policy() Policy {
	return e.policy
}

// Digest returns a fingerprint of the engine's full configuration. Two engines
// with the same digest produce the same results for the same input.
func (e *Engine) Digest() string {
	return e.digest
}

// Matcher returns the engine's matcher
func (e *Engine) Matcher() *Matcher {
	return e.matcher
}

// MaxScore returns the maximum attainable score under the policy
func (e *Engine) MaxScore() float64 {
	return e.matcher.MaxScore()
}

// Resolve resolves a batch using the policy's potential threshold
func (e *Engine) Resolve(ctx context.Context, candidates, references []models.Record) (*models.BatchResolutionResult, error) {
	return e.ResolveWithThreshold(ctx, candidates, references, e.policy.Thresholds.Potential)
}

// ResolveWithThreshold resolves a batch with an explicit threshold, letting callers
// use a stricter cut for auto-blocking or a looser one for "show maybe" lists
func (e *Engine) ResolveWithThreshold(ctx context.Context, candidates, references []models.Record, threshold float64) (*models.BatchResolutionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Resolve")
	defer span.End()

	start := time.Now()
	result, err := e.resolver.ResolveBatch(ctx, candidates, references, threshold)
	if err != nil {
		e.log.Debug("Resolution failed", zap.Error(err))
		return nil, err
	}
	e.recorder.ObserveResolution(e.policy.Name, len(candidates), len(references), result, time.Since(start))
	for _, m := range result.CrossMatches {
		e.recorder.ObserveDecision(e.policy.Name, e.Classify(m.Match))
	}
	return result, nil
}

// Check matches a single candidate against a reference population and returns
// every match at or above the potential threshold, classified and ranked.
func (e *Engine) Check(ctx context.Context, candidate models.Record, references []models.Record) ([]models.ClassifiedMatch, error) {
	result, err := e.ResolveWithThreshold(ctx, []models.Record{candidate}, references, e.policy.Thresholds.Potential)
	if err != nil {
		return nil, err
	}
	return e.Classified(result), nil
}

// Classify maps a match result to a decision under the policy's thresholds
func (e *Engine) Classify(match models.MatchResult) models.Decision {
	return e.policy.Thresholds.Classify(match.Score, match.Exact)
}

// Classified attaches a decision to every cross match, preserving order
func (e *Engine) Classified(result *models.BatchResolutionResult) []models.ClassifiedMatch {
	if result == nil {
		return []models.ClassifiedMatch{}
	}
	out := make([]models.ClassifiedMatch, 0, len(result.CrossMatches))
	for _, m := range result.CrossMatches {
		out = append(out, models.ClassifiedMatch{
			CandidateIndex: m.CandidateIndex,
			Match:          m.Match,
			Decision:       e.Classify(m.Match),
		})
	}
	return out
}

// ClassifiedPairs attaches a decision to every intra-batch pair, preserving order
func (e *Engine) ClassifiedPairs(result *models.BatchResolutionResult) []models.ClassifiedPair {
	if result == nil {
		return []models.ClassifiedPair{}
	}
	out := make([]models.ClassifiedPair, 0, len(result.IntraBatchMatches))
	for _, p := range result.IntraBatchMatches {
		out = append(out, models.ClassifiedPair{
			PairMatch: p,
			Decision:  e.policy.Thresholds.Classify(p.Score, p.Exact),
		})
	}
	return out
}

// HasExactMatch reports whether any match is classified exact
func HasExactMatch(matches []models.ClassifiedMatch) bool {
	for _, m := range matches {
		if m.Decision == models.DecisionExact {
			return true
		}
	}
	return false
}

// TopPotential returns up to n potential matches, highest score first.
// n <= 0 returns all of them.
func TopPotential(matches []models.ClassifiedMatch, n int) []models.ClassifiedMatch {
	out := make([]models.ClassifiedMatch, 0)
	for _, m := range matches {
		if m.Decision == models.DecisionPotential {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Match.Score != out[b].Match.Score {
			return out[a].Match.Score > out[b].Match.Score
		}
		return out[a].CandidateIndex < out[b].CandidateIndex
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

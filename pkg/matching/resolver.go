package matching

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Resolver matches a batch of candidates against a reference population and
// against each other. It holds no per-call state and is safe for concurrent use.
type Resolver struct {
	matcher       *Matcher
	log           *zap.Logger
	workers       int
	maxCandidates int
	maxReferences int
}

// NewResolver creates a resolver around a matcher
func NewResolver(matcher *Matcher, opts ...Option) *Resolver {
	o := buildOptions(opts)
	return newResolver(matcher, o)
}

func newResolver(matcher *Matcher, o Options) *Resolver {
	return &Resolver{
		matcher:       matcher,
		log:           o.Logger,
		workers:       o.Workers,
		maxCandidates: o.MaxCandidates,
		maxReferences: o.MaxReferences,
	}
}

// ResolveBatch reports every (candidate, reference) match and every intra-batch
// pair (i < j) whose score is at least threshold. Identity matches are always
// reported since they carry the maximum score. Both lists are sorted by
// descending score, ties broken by ascending candidate index and then input order.
func (r *Resolver) ResolveBatch(ctx context.Context, candidates, references []models.Record, threshold float64) (*models.BatchResolutionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Resolver.ResolveBatch",
		attribute.Int("candidate_count", len(candidates)),
		attribute.Int("reference_count", len(references)),
	)
	defer span.End()

	log := r.log.With(
		zap.Int("candidate_count", len(candidates)),
		zap.Int("reference_count", len(references)),
		zap.Float64("threshold", threshold),
	)

	if err := r.validate(candidates, references, threshold); err != nil {
		tracing.RecordError(span, err)
		log.Debug("Rejected batch", zap.Error(err))
		return nil, err
	}

	start := time.Now()

	cross := make([][]models.CrossMatch, len(candidates))
	err := r.forEach(ctx, len(candidates), func(i int) error {
		for _, ref := range references {
			match, err := r.matcher.MatchOne(candidates[i], ref)
			if err != nil {
				return err
			}
			if match == nil || (!match.Exact && match.Score < threshold) {
				continue
			}
			cross[i] = append(cross[i], models.CrossMatch{CandidateIndex: i, Match: *match})
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	pairs := make([][]models.PairMatch, len(candidates))
	err = r.forEach(ctx, len(candidates), func(i int) error {
		for j := i + 1; j < len(candidates); j++ {
			score, reasons, exact, ok := r.matcher.Compare(candidates[i], candidates[j])
			if !ok || (!exact && score < threshold) {
				continue
			}
			pairs[i] = append(pairs[i], models.PairMatch{
				CandidateIndex1: i,
				CandidateIndex2: j,
				Score:           score,
				Reasons:         reasons,
				Exact:           exact,
			})
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	result := &models.BatchResolutionResult{
		CrossMatches:      flatten(cross),
		IntraBatchMatches: flatten(pairs),
	}

	sort.SliceStable(result.CrossMatches, func(a, b int) bool {
		x, y := result.CrossMatches[a], result.CrossMatches[b]
		if x.Match.Score != y.Match.Score {
			return x.Match.Score > y.Match.Score
		}
		return x.CandidateIndex < y.CandidateIndex
	})
	sort.SliceStable(result.IntraBatchMatches, func(a, b int) bool {
		x, y := result.IntraBatchMatches[a], result.IntraBatchMatches[b]
		if x.Score != y.Score {
			return x.Score > y.Score
		}
		return x.CandidateIndex1 < y.CandidateIndex1
	})

	span.SetAttributes(
		attribute.Int("cross_match_count", len(result.CrossMatches)),
		attribute.Int("intra_batch_match_count", len(result.IntraBatchMatches)),
	)
	log.Debug("Resolved batch",
		zap.Int("cross_match_count", len(result.CrossMatches)),
		zap.Int("intra_batch_match_count", len(result.IntraBatchMatches)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return result, nil
}

func (r *Resolver) validate(candidates, references []models.Record, threshold float64) error {
	if threshold < 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return NewValidationErrorf("threshold", -1, "threshold must be a non-negative number, got %v", threshold)
	}
	if r.maxCandidates > 0 && len(candidates) > r.maxCandidates {
		return NewValidationErrorf("candidates", -1, "batch of %d exceeds the limit of %d", len(candidates), r.maxCandidates)
	}
	if r.maxReferences > 0 && len(references) > r.maxReferences {
		return NewValidationErrorf("references", -1, "population of %d exceeds the limit of %d", len(references), r.maxReferences)
	}
	for i, ref := range references {
		if strings.TrimSpace(ref.ID) == "" {
			return NewValidationErrorf("references", i, "reference id is required").AddField("id")
		}
	}
	return nil
}

// forEach runs fn for every index in [0, n). With more than one worker the calls
// are spread over a bounded pool; fn must only write to its own index's slot.
// The context is checked before each index.
func (r *Resolver) forEach(ctx context.Context, n int, fn func(i int) error) error {
	if r.workers <= 1 || n <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	indexes := make(chan int)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for w := 0; w < min(r.workers, n); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				if err := fn(i); err != nil {
					fail(err)
				}
			}
		}()
	}

feed:
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			break feed
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

func flatten[T any](groups [][]T) []T {
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	out := make([]T, 0, total)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

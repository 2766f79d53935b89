package matching

import (
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// Options configures matchers, resolvers and engines
type Options struct {
	IdentitySets  [][]string
	Tiers         FuzzyTiers
	Registry      *normalizers.Registry
	Logger        *zap.Logger
	Recorder      Recorder
	Workers       int // Parallel comparison workers; 0 or 1 runs sequentially
	MaxCandidates int // Maximum batch size; 0 means unlimited
	MaxReferences int // Maximum reference population; 0 means unlimited
}

// Option mutates Options
type Option func(*Options)

func buildOptions(opts []Option) Options {
	o := Options{
		Tiers:    DefaultFuzzyTiers(),
		Registry: normalizers.Default(),
		Logger:   zap.NewNop(),
		Recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithIdentitySets sets the field groups whose joint exact equality proves identity
func WithIdentitySets(sets ...[]string) Option {
	return func(o *Options) {
		o.IdentitySets = append(o.IdentitySets, sets...)
	}
}

// WithFuzzyTiers overrides the fuzzy bonus tiers
func WithFuzzyTiers(tiers FuzzyTiers) Option {
	return func(o *Options) {
		o.Tiers = tiers
	}
}

// WithRegistry sets the normalizer registry used to resolve FieldSpec normalizers
func WithRegistry(registry *normalizers.Registry) Option {
	return func(o *Options) {
		if registry != nil {
			o.Registry = registry
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithRecorder sets the resolution metrics recorder
func WithRecorder(recorder Recorder) Option {
	return func(o *Options) {
		if recorder != nil {
			o.Recorder = recorder
		}
	}
}

// WithWorkers sets the number of parallel comparison workers
func WithWorkers(workers int) Option {
	return func(o *Options) {
		o.Workers = workers
	}
}

// WithLimits caps the batch size and reference population accepted per call
func WithLimits(maxCandidates, maxReferences int) Option {
	return func(o *Options) {
		o.MaxCandidates = maxCandidates
		o.MaxReferences = maxReferences
	}
}

package startup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/logger"
)

// Dependency is an external resource the service needs before it can serve
type Dependency interface {
	Name() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Status int

const (
	StatusPending Status = iota
	StatusStarted
	StatusStopped
	StatusFailed
)

// Func adapts a pair of functions to a Dependency. Either function may be nil.
type Func struct {
	ID       string
	Requires []string
	OnStart  func(ctx context.Context) error
	OnStop   func(ctx context.Context) error
}

func (f Func) Name() string        { return f.ID }
func (f Func) DependsOn() []string { return f.Requires }

func (f Func) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

func (f Func) Stop(ctx context.Context) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}

// Startup starts dependencies in dependency order, retrying the whole set with
// a fibonacci backoff
type Startup struct {
	log          logger.Logger
	maxAttempts  int
	backoff      time.Duration
	order        []string
	dependencies map[string]Dependency
	statuses     map[string]Status
	started      []string
}

// New creates a Startup. Each retry waits backoff times the next fibonacci number.
func New(log logger.Logger, maxAttempts int, backoff time.Duration) *Startup {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Startup{
		log:          logger.OrNop(log),
		maxAttempts:  maxAttempts,
		backoff:      backoff,
		dependencies: make(map[string]Dependency),
		statuses:     make(map[string]Status),
	}
}

// Add registers a dependency. Registering a name twice replaces the first.
func (s *Startup) Add(dependency Dependency) {
	name := dependency.Name()
	if _, ok := s.dependencies[name]; !ok {
		s.order = append(s.order, name)
	}
	s.dependencies[name] = dependency
}

// Status returns the current status of a dependency
func (s *Startup) Status(name string) Status {
	return s.statuses[name]
}

// Start starts every dependency, retrying failed attempts until maxAttempts is reached
func (s *Startup) Start(ctx context.Context) error {
	var lastErr error
	a, b := 1, 1
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.log.Info("Beginning startup attempt", zap.Int("attempt", attempt))

		lastErr = nil
		for _, name := range s.order {
			if err := s.startDependency(ctx, name, nil); err != nil {
				s.log.Error("Startup attempt failed", zap.Int("attempt", attempt), zap.String("dependency", name), zap.Error(err))
				lastErr = err
				break
			}
		}
		if lastErr == nil {
			return nil
		}
		if attempt == s.maxAttempts {
			break
		}

		wait := time.Duration(a) * s.backoff
		s.log.Info("Retrying startup", zap.Duration("wait", wait), zap.Int("attempt", attempt), zap.Int("max_attempts", s.maxAttempts))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		a, b = b, a+b
	}

	return fmt.Errorf("startup failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Startup) startDependency(ctx context.Context, name string, path []string) error {
	if s.statuses[name] == StatusStarted {
		return nil
	}
	for _, p := range path {
		if p == name {
			return fmt.Errorf("dependency cycle: %v -> %s", path, name)
		}
	}

	dependency, ok := s.dependencies[name]
	if !ok {
		return fmt.Errorf("unknown dependency '%s'", name)
	}

	for _, required := range dependency.DependsOn() {
		if err := s.startDependency(ctx, required, append(path, name)); err != nil {
			return err
		}
	}

	field := zap.String("dependency", name)
	s.log.Info("Starting dependency", field)
	s.statuses[name] = StatusPending
	if err := dependency.Start(ctx); err != nil {
		s.statuses[name] = StatusFailed
		return fmt.Errorf("starting %s: %w", name, err)
	}
	s.statuses[name] = StatusStarted
	s.started = append(s.started, name)
	s.log.Info("Dependency started", field)
	return nil
}

// Stop stops started dependencies in reverse start order. Every dependency is
// attempted; the first error is returned.
func (s *Startup) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(s.started) - 1; i >= 0; i-- {
		name := s.started[i]
		field := zap.String("dependency", name)
		s.log.Info("Stopping dependency", field)
		if err := s.dependencies[name].Stop(ctx); err != nil {
			s.log.Error("Failed to stop dependency", field, zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("stopping %s: %w", name, err)
			}
			continue
		}
		s.statuses[name] = StatusStopped
	}
	s.started = nil
	return firstErr
}

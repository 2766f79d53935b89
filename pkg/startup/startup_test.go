package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type journal struct {
	events []string
}

func (j *journal) dep(name string, requires ...string) Func {
	return Func{
		ID:       name,
		Requires: requires,
		OnStart: func(context.Context) error {
			j.events = append(j.events, "start:"+name)
			return nil
		},
		OnStop: func(context.Context) error {
			j.events = append(j.events, "stop:"+name)
			return nil
		},
	}
}

func TestStartup_DependencyOrder(t *testing.T) {
	j := &journal{}
	s := New(zap.NewNop(), 1, time.Millisecond)
	s.Add(j.dep("server", "cache", "database"))
	s.Add(j.dep("database"))
	s.Add(j.dep("cache"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:cache", "start:database", "start:server"}, j.events)
	assert.Equal(t, StatusStarted, s.Status("server"))

	j.events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop:server", "stop:database", "stop:cache"}, j.events)
	assert.Equal(t, StatusStopped, s.Status("database"))
}

func TestStartup_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	s := New(zap.NewNop(), 3, time.Millisecond)
	s.Add(Func{ID: "database", OnStart: func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestStartup_GivesUp(t *testing.T) {
	boom := errors.New("connection refused")
	s := New(zap.NewNop(), 2, time.Millisecond)
	s.Add(Func{ID: "database", OnStart: func(context.Context) error { return boom }})

	err := s.Start(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "startup failed after 2 attempts")
	assert.Equal(t, StatusFailed, s.Status("database"))
}

func TestStartup_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(zap.NewNop(), 5, time.Hour)
	s.Add(Func{ID: "database", OnStart: func(context.Context) error {
		cancel()
		return errors.New("connection refused")
	}})

	assert.ErrorIs(t, s.Start(ctx), context.Canceled)
}

func TestStartup_BadGraph(t *testing.T) {
	s := New(zap.NewNop(), 1, time.Millisecond)
	s.Add(Func{ID: "server", Requires: []string{"queue"}})
	assert.ErrorContains(t, s.Start(context.Background()), "unknown dependency 'queue'")

	s = New(zap.NewNop(), 1, time.Millisecond)
	s.Add(Func{ID: "a", Requires: []string{"b"}})
	s.Add(Func{ID: "b", Requires: []string{"a"}})
	assert.ErrorContains(t, s.Start(context.Background()), "dependency cycle")
}

func TestStartup_StopContinuesAfterError(t *testing.T) {
	stopped := []string{}
	s := New(zap.NewNop(), 1, time.Millisecond)
	s.Add(Func{ID: "database", OnStop: func(context.Context) error {
		stopped = append(stopped, "database")
		return nil
	}})
	s.Add(Func{ID: "cache", OnStop: func(context.Context) error {
		stopped = append(stopped, "cache")
		return errors.New("already closed")
	}})

	require.NoError(t, s.Start(context.Background()))
	err := s.Stop(context.Background())
	assert.ErrorContains(t, err, "stopping cache")
	assert.Equal(t, []string{"cache", "database"}, stopped)
}

type entry struct {
	level  string
	msg    string
	fields []zap.Field
}

type recordingLogger struct {
	entries []entry
}

func (r *recordingLogger) add(level, msg string, fields []zap.Field) {
	r.entries = append(r.entries, entry{level: level, msg: msg, fields: fields})
}

func (r *recordingLogger) Debug(msg string, fields ...zap.Field) { r.add("debug", msg, fields) }
func (r *recordingLogger) Info(msg string, fields ...zap.Field)  { r.add("info", msg, fields) }
func (r *recordingLogger) Warn(msg string, fields ...zap.Field)  { r.add("warn", msg, fields) }
func (r *recordingLogger) Error(msg string, fields ...zap.Field) { r.add("error", msg, fields) }

func TestStartup_LogsThroughInjectedLogger(t *testing.T) {
	log := &recordingLogger{}
	s := New(log, 1, time.Millisecond)
	s.Add(Func{ID: "cache", OnStop: func(context.Context) error { return errors.New("already closed") }})

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Stop(context.Background()))

	var msgs []string
	for _, e := range log.entries {
		msgs = append(msgs, e.msg)
	}
	assert.Equal(t, []string{
		"Beginning startup attempt",
		"Starting dependency",
		"Dependency started",
		"Stopping dependency",
		"Failed to stop dependency",
	}, msgs)

	failed := log.entries[len(log.entries)-1]
	assert.Equal(t, "error", failed.level)
	assert.Contains(t, failed.fields, zap.String("dependency", "cache"))
}

func TestStartup_NilLogger(t *testing.T) {
	s := New(nil, 1, time.Millisecond)
	s.Add(Func{ID: "database"})
	assert.NoError(t, s.Start(context.Background()))
}

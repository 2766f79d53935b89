package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	data    map[string][]byte
	ttls    map[string]time.Duration
	failGet error
	failSet error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.failGet != nil {
		return redis.NewStringResult("", f.failGet)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.failSet != nil {
		return redis.NewStatusResult("", f.failSet)
	}
	f.data[key] = value.([]byte)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

type preview struct {
	HasExactMatch bool   `json:"has_exact_match"`
	Fingerprint   string `json:"batch_fingerprint"`
}

func TestPreviewCache_RoundTrip(t *testing.T) {
	rdb := newFakeRedis()
	var hits, misses int
	c := NewPreviewCache(rdb, time.Minute, nil, func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	})
	ctx := context.Background()
	key := Key("guest", "abc123")
	assert.Equal(t, "clover:preview:guest:abc123", key)

	var got preview
	found, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, key, preview{HasExactMatch: true, Fingerprint: "abc123"}))
	assert.Equal(t, time.Minute, rdb.ttls[key])

	found, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, preview{HasExactMatch: true, Fingerprint: "abc123"}, got)

	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
	assert.NoError(t, c.Ping(ctx))
}

func TestPreviewCache_CorruptEntryIsAMiss(t *testing.T) {
	rdb := newFakeRedis()
	rdb.data["k"] = []byte("{not json")
	c := NewPreviewCache(rdb, time.Minute, nil, nil)

	var got preview
	found, err := c.Get(context.Background(), "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPreviewCache_Errors(t *testing.T) {
	rdb := newFakeRedis()
	rdb.failGet = errors.New("connection refused")
	rdb.failSet = errors.New("READONLY")
	c := NewPreviewCache(rdb, time.Minute, nil, nil)

	var got preview
	_, err := c.Get(context.Background(), "k", &got)
	assert.ErrorContains(t, err, "connection refused")

	err = c.Set(context.Background(), "k", preview{})
	assert.ErrorContains(t, err, "READONLY")
}

func TestNewClient(t *testing.T) {
	client := NewClient(Config{Addr: "localhost:6379", DB: 2})
	defer client.Close()
	assert.Equal(t, "localhost:6379", client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)
}

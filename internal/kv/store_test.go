package kv

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/config"
	"pulse/pkg/errors"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	value := []byte("v1")
	require.NoError(t, s.Set(ctx, "k", value))
	value[0] = 'x'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got, "stored value is a copy")

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, 0, s.Len())
}

type failingStore struct {
	calls int
	err   error
}

func (f *failingStore) Get(context.Context, string) ([]byte, error) {
	f.calls++
	return nil, f.err
}

func (f *failingStore) Set(context.Context, string, []byte) error {
	f.calls++
	return f.err
}

func (f *failingStore) Delete(context.Context, string) error {
	f.calls++
	return f.err
}

func breakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	}
}

func TestCircuitBreakerStore_OpensOnFailures(t *testing.T) {
	ctx := context.Background()
	inner := &failingStore{err: stderrors.New("connection refused")}
	s := NewCircuitBreakerStore(inner, breakerConfig())

	require.Error(t, s.Set(ctx, "a", nil))
	require.Error(t, s.Set(ctx, "a", nil))
	assert.True(t, s.IsOpen())

	err := s.Delete(ctx, "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, 2, inner.calls, "open breaker does not reach the store")
}

func TestCircuitBreakerStore_NotFoundDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	s := NewCircuitBreakerStore(NewMemoryStore(), breakerConfig())

	for i := 0; i < 5; i++ {
		_, err := s.Get(ctx, "absent")
		require.True(t, errors.IsNotFound(err))
	}
	assert.False(t, s.IsOpen())
	assert.Equal(t, "closed", s.State())
}

func TestCircuitBreakerStore_Disabled(t *testing.T) {
	ctx := context.Background()
	s := NewCircuitBreakerStore(NewMemoryStore(), config.CircuitBreakerConfig{})

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, "disabled", s.State())
}

func TestRedisStore_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	s := NewRedisStore(client, "pulse:", 0)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := s.Get(ctx, "traits-default")
	require.Error(t, err)
	assert.False(t, errors.IsNotFound(err))
	assert.Error(t, s.Ping(ctx))
}

package kv

import (
	"context"
	"fmt"

	"pulse/internal/config"
	"pulse/pkg/circuitbreaker"
	"pulse/pkg/errors"
)

// CircuitBreakerStore stops hammering a failing remote store. Missing keys are not
// failures.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(store Store, cfg config.CircuitBreakerConfig) *CircuitBreakerStore {
	if !cfg.Enabled {
		return &CircuitBreakerStore{store: store}
	}

	cbConfig := circuitbreaker.ConfigFrom("kv-store", cfg)
	cbConfig.IsSuccessful = func(err error) bool {
		return err == nil || errors.IsNotFound(err)
	}

	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

func (s *CircuitBreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.cb == nil {
		return s.store.Get(ctx, key)
	}

	result, err := s.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return s.store.Get(ctx, key)
	})
	s.cb.RecordRequest(err == nil || errors.IsNotFound(err))

	if err != nil {
		return nil, s.wrap(err)
	}

	value, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("store returned invalid result type")
	}
	return value, nil
}

func (s *CircuitBreakerStore) Set(ctx context.Context, key string, value []byte) error {
	return s.exec(ctx, func() error { return s.store.Set(ctx, key, value) })
}

func (s *CircuitBreakerStore) Delete(ctx context.Context, key string) error {
	return s.exec(ctx, func() error { return s.store.Delete(ctx, key) })
}

func (s *CircuitBreakerStore) exec(ctx context.Context, fn func() error) error {
	if s.cb == nil {
		return fn()
	}

	_, err := s.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, fn()
	})
	s.cb.RecordRequest(err == nil)

	if err != nil {
		return s.wrap(err)
	}
	return nil
}

func (s *CircuitBreakerStore) wrap(err error) error {
	if circuitbreaker.IsRejection(err) {
		return fmt.Errorf("circuit breaker is open for kv-store: %w", err)
	}
	return err
}

func (s *CircuitBreakerStore) State() string {
	if s.cb == nil {
		return "disabled"
	}
	return s.cb.State().String()
}

func (s *CircuitBreakerStore) IsOpen() bool {
	if s.cb == nil {
		return false
	}
	return s.cb.IsOpen()
}

package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/config"
	"pulse/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestDo(t *testing.T) {
	transient := errors.ErrTransientDelivery.WithMessage("503")
	permanent := errors.ErrPermanentDelivery.WithMessage("400")

	tests := []struct {
		name      string
		failures  []error
		attempts  int
		wantCalls int
		wantErr   error
	}{
		{name: "first try", attempts: 3, wantCalls: 1},
		{name: "recovers", failures: []error{transient, transient}, attempts: 3, wantCalls: 3},
		{name: "exhausted", failures: []error{transient, transient, transient, transient}, attempts: 3, wantCalls: 3, wantErr: transient},
		{name: "fatal stops", failures: []error{permanent}, attempts: 3, wantCalls: 1, wantErr: permanent},
		{name: "plain errors retry", failures: []error{stderrors.New("io")}, attempts: 2, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			retries := 0
			err := DoWithCallback(context.Background(), "test", fastPolicy(tt.attempts), func(context.Context) error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			}, func(error, time.Duration) { retries++ })

			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantCalls-1, retries)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDo_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, "test", Policy{MaxAttempts: 10, InitialInterval: time.Hour, MaxInterval: time.Hour, Multiplier: 2}, func(context.Context) error {
		calls++
		cancel()
		return errors.ErrTransientDelivery
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicyFrom(t *testing.T) {
	p := PolicyFrom(config.RetryConfig{MaxAttempts: 5, Multiplier: 3})
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 3.0, p.Multiplier)
	assert.Equal(t, DefaultPolicy().InitialInterval, p.InitialInterval)
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/types"
)

func fastPolicy(maxRetries int) *Policy {
	return &Policy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func transient() error {
	return types.NewError(types.ErrUpstreamError, "connection reset").WithRetryable(true)
}

func TestBackoffRetryer_Success(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls, "应该只调用一次")
}

func TestBackoffRetryer_RetryAndSuccess(t *testing.T) {
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }
	r := NewBackoffRetryer(p, zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return transient()
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestBackoffRetryer_Exhausted(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(2), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return transient()
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, types.IsCode(err, types.ErrUpstreamError))
}

func TestBackoffRetryer_NonRetryableStopsImmediately(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(5), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return types.NewError(types.ErrGenerationFailed, "bad mask")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	_ = r.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("plain error")
	})
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_ContextCancelled(t *testing.T) {
	p := fastPolicy(5)
	p.InitialDelay = time.Hour
	p.MaxDelay = time.Hour
	r := NewBackoffRetryer(p, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	err := r.Do(ctx, func(context.Context) error {
		cancel()
		return transient()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, types.IsCode(err, types.ErrUpstreamError))
}

func TestBackoffRetryer_CalculateDelay(t *testing.T) {
	r := NewBackoffRetryer(&Policy{
		MaxRetries:   5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}, zap.NewNop()).(*backoffRetryer)

	assert.Equal(t, 10*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 20*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 40*time.Millisecond, r.calculateDelay(3))
	assert.Equal(t, 50*time.Millisecond, r.calculateDelay(4))
}

func TestNewBackoffRetryer_Defaults(t *testing.T) {
	r := NewBackoffRetryer(&Policy{MaxRetries: -1, Multiplier: 0.5}, nil).(*backoffRetryer)
	assert.Equal(t, 0, r.policy.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, r.policy.InitialDelay)
	assert.Equal(t, 2.0, r.policy.Multiplier)
	assert.NotNil(t, r.policy.Retryable)
}

func TestDoTyped(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(1), zap.NewNop())

	calls := 0
	v, err := DoTyped(r, context.Background(), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", transient()
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

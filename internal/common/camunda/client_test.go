package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlweb-orchestrator/internal/common/errors"
)

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		msg       string
		retryable bool
	}{
		{"rpc error: code = Unavailable desc = connection refused", true},
		{"context deadline exceeded", true},
		{"write: broken pipe", true},
		{"job not found", false},
		{"permission denied", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryableZeebeError(stderrors.New(tt.msg)))
		})
	}
}

func TestMapZeebeError(t *testing.T) {
	assert.ErrorIs(t, mapZeebeError(stderrors.New("connection reset by peer"), "complete", 2), errors.ErrBackendUnavailable)
	assert.ErrorIs(t, mapZeebeError(stderrors.New("job 12 not found"), "complete", 0), errors.ErrInvalidRequest)
	assert.ErrorIs(t, mapZeebeError(stderrors.New("boom"), "complete", 0), errors.ErrInternal)
}

func TestBackoff_Capped(t *testing.T) {
	rc := RetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, backoff(rc, 0))
	assert.Equal(t, 4*time.Second, backoff(rc, 2))
	assert.Equal(t, 5*time.Second, backoff(rc, 5))
}

func TestExecuteWithRetry_RetriesTransientThenSucceeds(t *testing.T) {
	c := &Client{retry: RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}}
	calls := 0
	out, err := c.ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, stderrors.New("unavailable")
		}
		return "ok", nil
	}, "op")

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_PermanentFailsFast(t *testing.T) {
	c := &Client{retry: RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}}
	calls := 0
	_, err := c.ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		return nil, stderrors.New("unauthorized")
	}, "op")

	assert.ErrorIs(t, err, errors.ErrInvalidRequest)
	assert.Equal(t, 1, calls)
}

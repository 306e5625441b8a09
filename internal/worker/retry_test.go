package worker

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type timeoutError struct{ timeout bool }

func (e timeoutError) Error() string { return "net error" }
func (e timeoutError) Timeout() bool { return e.timeout }

var _ net.Error = timeoutError{}

func (e timeoutError) Temporary() bool { return e.timeout }

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy()

	require.False(t, p.ShouldRetry(nil, 1))
	require.False(t, p.ShouldRetry(errors.New("boom"), 3))
	require.False(t, p.ShouldRetry(context.Canceled, 1))
	require.False(t, p.ShouldRetry(context.DeadlineExceeded, 1))
	require.True(t, p.ShouldRetry(errors.New("boom"), 1))
	require.True(t, p.ShouldRetry(timeoutError{timeout: true}, 1))
	require.False(t, p.ShouldRetry(timeoutError{timeout: false}, 1))
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy()

	first := p.Backoff(0)
	require.GreaterOrEqual(t, first, 125*time.Millisecond)
	require.LessOrEqual(t, first, 250*time.Millisecond)

	capped := p.Backoff(10)
	require.LessOrEqual(t, capped, 5*time.Second)
	require.GreaterOrEqual(t, capped, 2500*time.Millisecond)
}

func TestWithMaxRetries(t *testing.T) {
	t.Parallel()

	base := NewExponentialRetryPolicy()

	none := base.WithMaxRetries(0)
	require.False(t, none.ShouldRetry(errors.New("boom"), 1))

	two := base.WithMaxRetries(2)
	require.True(t, two.ShouldRetry(errors.New("boom"), 2))
	require.False(t, two.ShouldRetry(errors.New("boom"), 3))

	// Negative values keep the original policy.
	require.Same(t, base, base.WithMaxRetries(-1))
	require.Equal(t, 3, base.maxAttempts)
}

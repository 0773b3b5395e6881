package simulation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyValidator падает заданное число раз, потом отвечает успехом.
type flakyValidator struct {
	failures int32
	calls    atomic.Int32
	err      error
}

func (f *flakyValidator) SubmitReview(ctx context.Context, req ReviewRequest) error {
	n := f.calls.Add(1)
	if n <= f.failures {
		return f.err
	}
	return nil
}

func TestReliableValidatorRetriesThrottle(t *testing.T) {
	fake := &flakyValidator{
		failures: 2,
		err:      &ThrottleError{RetryAfter: time.Millisecond, Cause: errors.New("rate limited")},
	}

	rv := NewReliableValidator(fake, BreakerSettings{
		MaxRequests: 1,
		Interval:    time.Second,
		Timeout:     time.Second,
	})

	err := rv.SubmitReview(context.Background(), ReviewRequest{DecisionID: "DEC-20260101-0001"})
	require.NoError(t, err)
	// Две ошибки с Retry-After, третья попытка проходит
	assert.Equal(t, int32(3), fake.calls.Load())
}

func TestReliableValidatorExhaustsAttempts(t *testing.T) {
	fake := &flakyValidator{
		failures: 10,
		err:      &ThrottleError{RetryAfter: time.Millisecond, Cause: errors.New("rate limited")},
	}

	rv := NewReliableValidator(fake, BreakerSettings{})

	err := rv.SubmitReview(context.Background(), ReviewRequest{DecisionID: "DEC-20260101-0002"})
	require.Error(t, err)
	assert.Equal(t, int32(3), fake.calls.Load())
}

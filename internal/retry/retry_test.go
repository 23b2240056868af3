package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interview-processor-go/internal/apperr"
)

// instantTimer records requested waits and fires immediately.
type instantTimer struct {
	waits []time.Duration
	c     chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.waits = append(t.waits, d)
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

func TestPolicyDelay(t *testing.T) {
	p := Policy{MaxRetries: 10, BaseDelay: time.Second, MaxDelay: 60 * time.Second}
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 32*time.Second, p.Delay(5))
	assert.Equal(t, 60*time.Second, p.Delay(6))
	assert.Equal(t, 60*time.Second, p.Delay(40))
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	timer := &instantTimer{}
	calls := 0
	err := Do(context.Background(), DefaultPolicy, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithTimer(timer))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.waits)
}

func TestDoExhaustsRetries(t *testing.T) {
	timer := &instantTimer{}
	root := errors.New("still broken")
	calls := 0
	var notified []int
	err := Do(context.Background(), DefaultPolicy, func(context.Context) error {
		calls++
		return root
	}, WithTimer(timer), WithService("processing"), WithNotify(func(attempt int, _ error, _ time.Duration) {
		notified = append(notified, attempt)
	}))

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, notified)

	var serr *apperr.ServiceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 3, serr.Attempts)
	assert.Equal(t, "processing", serr.Service)
	assert.ErrorIs(t, err, root)
}

func TestDoKeepsUnderlyingKindReachable(t *testing.T) {
	media := apperr.Media("extract", "ffmpeg failed", nil)
	err := Do(context.Background(), DefaultPolicy, func(context.Context) error {
		return media
	}, WithTimer(&instantTimer{}))

	var merr *apperr.MediaError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, apperr.KindService, apperr.KindOf(err))
}

func TestDoStopsOnNonRetryableCode(t *testing.T) {
	timer := &instantTimer{}
	calls := 0
	err := Do(context.Background(), DefaultPolicy, func(context.Context) error {
		calls++
		return &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "nope"}
	}, WithTimer(timer))

	assert.Equal(t, 1, calls)
	assert.Empty(t, timer.waits)

	var serr *apperr.ServiceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "AccessDeniedException", serr.Code)
	assert.Equal(t, 1, serr.Attempts)
}

func TestDoWrapsValidationErrors(t *testing.T) {
	timer := &instantTimer{}
	verr := apperr.Validation("video_path", "", "missing")
	calls := 0
	err := Do(context.Background(), DefaultPolicy, func(context.Context) error {
		calls++
		return verr
	}, WithTimer(timer), WithService("processor"))

	assert.Equal(t, 1, calls)
	assert.Empty(t, timer.waits)

	var serr *apperr.ServiceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "processor", serr.Service)
	assert.Equal(t, 1, serr.Attempts)
	assert.ErrorIs(t, err, verr)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDoWaitsFollowPolicyDelay(t *testing.T) {
	timer := &instantTimer{}
	p := Policy{MaxRetries: 4, BaseDelay: 10 * time.Second, MaxDelay: 30 * time.Second}
	err := Do(context.Background(), p, func(context.Context) error {
		return errors.New("flaky")
	}, WithTimer(timer))

	require.Error(t, err)
	want := []time.Duration{p.Delay(0), p.Delay(1), p.Delay(2), p.Delay(3)}
	assert.Equal(t, want, timer.waits)
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second, 30 * time.Second}, timer.waits)
}

func TestDoZeroRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{BaseDelay: time.Second, MaxDelay: time.Second}, func(context.Context) error {
		calls++
		return errors.New("once")
	}, WithTimer(&instantTimer{}))

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

package ingress

import (
	"context"
	"time"

	"github.com/danmuck/ingressd/internal/observability"
)

// BackoffConfig defines the fixed accept retry pauses per error class.
type BackoffConfig struct {
	ResourceExhaustedDelay time.Duration
	AcceptErrorDelay       time.Duration
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		ResourceExhaustedDelay: 10 * time.Millisecond,
		AcceptErrorDelay:       5 * time.Millisecond,
	}
}

// AcceptDelay classifies an accept error and returns the pause before the
// next attempt along with the metrics class label.
func (c BackoffConfig) AcceptDelay(err error) (time.Duration, string) {
	if IsResourceExhaustion(err) {
		return c.ResourceExhaustedDelay, observability.AcceptErrorResourceExhaustion
	}
	return c.AcceptErrorDelay, observability.AcceptErrorOther
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

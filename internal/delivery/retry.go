package delivery

import (
	"context"
	"fmt"
	"time"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backoff returns the delay before attempt n (n >= 2): base, 2*base, 4*base...
func Backoff(base time.Duration, attempt int) time.Duration {
	shift := attempt - 2
	if shift < 0 {
		shift = 0
	}
	if shift > 5 {
		shift = 5
	}
	return base * time.Duration(1<<uint(shift))
}

// Retry calls fn up to retries times, sleeping with exponential backoff
// between attempts. The last error is returned once the ceiling is reached.
func Retry(ctx context.Context, retries int, base time.Duration, sleep Sleeper, fn func(attempt int) error) error {
	if retries < 1 {
		retries = 1
	}
	if sleep == nil {
		sleep = SleepContext
	}
	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			if serr := sleep(ctx, Backoff(base, attempt)); serr != nil {
				return fmt.Errorf("retry interrupted after %d attempts: %w", attempt-1, serr)
			}
		}
		metricRetryAttempts.Inc()
		if err = fn(attempt); err == nil {
			return nil
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", retries, err)
}

// Package automation defines the browser capability the bot drives. The
// orchestration code only sees this interface; the concrete browser lives
// behind it (see package webdriver).
package automation

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an element is absent or did not appear
// within the allowed wait.
var ErrNotFound = errors.New("element not found")

// Automation is an open browser session addressed by CSS selectors.
type Automation interface {
	Navigate(ctx context.Context, url string) error
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, text string) error
	ReadText(ctx context.Context, selector string) (string, error)
	ReadAll(ctx context.Context, selector string) ([]string, error)
	Close() error
}

// Factory opens a new browser session.
type Factory func(ctx context.Context) (Automation, error)

// DefaultPollInterval is used by WaitFor when interval is zero.
const DefaultPollInterval = 250 * time.Millisecond

// Poll calls probe until it reports true, the timeout elapses or ctx ends.
// Expiry is a normal false result; only probe errors and ctx cancellation
// are returned as errors. Probe errors are treated as "not yet" until the
// deadline.
func Poll(ctx context.Context, timeout, interval time.Duration, probe func(context.Context) (bool, error)) (bool, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)
	for {
		ok, _ := probe(ctx)
		if ok {
			return true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		wait := interval
		if wait > remaining {
			wait = remaining
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, ctx.Err()
		case <-t.C:
		}
	}
}

// WaitFor polls until selector exists. It returns ErrNotFound on expiry.
func WaitFor(ctx context.Context, a Automation, selector string, timeout, interval time.Duration) error {
	ok, err := Poll(ctx, timeout, interval, func(ctx context.Context) (bool, error) {
		return a.Exists(ctx, selector)
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Package runtime starts and stops isolated bot instances.
package runtime

import (
	"context"
	"errors"
	"sort"
)

var (
	// ErrAlreadyRunning is returned when an instance with the same name exists.
	ErrAlreadyRunning = errors.New("instance already running")
	ErrNotRunning     = errors.New("instance not running")
)

// Spec describes one instance. Port is published on the host and passed to
// the bot as PORT.
type Spec struct {
	Name  string
	Image string
	Env   map[string]string
	Port  int
}

// ExitCallback is invoked once when an instance ends, naturally or stopped.
type ExitCallback func(name string, code int, err error)

// Runtime is the process capability the launcher drives.
type Runtime interface {
	// Start launches spec and returns a runtime-specific id.
	Start(ctx context.Context, spec Spec) (string, error)
	Stop(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type exitRecord struct {
	name string
	code int
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestLocalRejectsDuplicateName(t *testing.T) {
	exits := make(chan exitRecord, 1)
	r := NewLocal(writeScript(t, `trap 'exit 0' TERM; while true; do sleep 0.05; done`), func(name string, code int, err error) {
		exits <- exitRecord{name, code}
	})
	r.grace = time.Second
	ctx := context.Background()
	spec := Spec{Name: "captionbot-a", Port: 4101, Env: map[string]string{"BOT_ID": "a"}}

	if _, err := r.Start(ctx, spec); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !r.IsRunning("captionbot-a") {
		t.Fatalf("expected running")
	}
	if _, err := r.Start(ctx, spec); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if err := r.Stop(ctx, "captionbot-a"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case e := <-exits:
		if e.name != "captionbot-a" {
			t.Fatalf("unexpected exit %+v", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("exit callback not invoked")
	}
	if r.IsRunning("captionbot-a") {
		t.Fatalf("stopped instance still registered")
	}
}

func TestLocalReportsExitCode(t *testing.T) {
	exits := make(chan exitRecord, 1)
	r := NewLocal(writeScript(t, `test "$PORT" = "4102" || exit 9; exit 3`), func(name string, code int, err error) {
		exits <- exitRecord{name, code}
	})
	if _, err := r.Start(context.Background(), Spec{Name: "captionbot-b", Port: 4102}); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case e := <-exits:
		if e.code != 3 {
			t.Fatalf("expected exit code 3, got %d", e.code)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("exit callback not invoked")
	}
}

func TestLocalStopUnknown(t *testing.T) {
	r := NewLocal("true", nil)
	if err := r.Stop(context.Background(), "nope"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestLocalStartFailureReleasesName(t *testing.T) {
	r := NewLocal(filepath.Join(t.TempDir(), "missing-binary"), nil)
	if _, err := r.Start(context.Background(), Spec{Name: "captionbot-c", Port: 1}); err == nil {
		t.Fatalf("expected start failure")
	}
	if r.IsRunning("captionbot-c") {
		t.Fatalf("failed start must not hold the name")
	}
}

func TestPortBindings(t *testing.T) {
	exposed, bindings, err := portBindings("127.0.0.1", 4105)
	if err != nil {
		t.Fatalf("bindings: %v", err)
	}
	if len(exposed) != 1 {
		t.Fatalf("expected one exposed port, got %v", exposed)
	}
	for p, b := range bindings {
		if p.Port() != "4105" || p.Proto() != "tcp" {
			t.Fatalf("unexpected port %s", p)
		}
		if len(b) != 1 || b[0].HostPort != "4105" || b[0].HostIP != "127.0.0.1" {
			t.Fatalf("unexpected binding %+v", b)
		}
	}
}

package runtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Local runs each instance as a child process of the launcher. Spec.Image
// is ignored; every instance runs the configured command.
type Local struct {
	cmdline string
	grace   time.Duration
	onExit  ExitCallback

	mu    sync.Mutex
	procs map[string]*proc
}

type proc struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func NewLocal(cmdline string, onExit ExitCallback) *Local {
	return &Local{
		cmdline: cmdline,
		grace:   10 * time.Second,
		onExit:  onExit,
		procs:   make(map[string]*proc),
	}
}

func (r *Local) Ping(ctx context.Context) error {
	parts := strings.Fields(r.cmdline)
	if len(parts) == 0 {
		return errors.New("bot command not configured")
	}
	if _, err := exec.LookPath(parts[0]); err != nil {
		return fmt.Errorf("bot command: %w", err)
	}
	return nil
}

func (r *Local) IsRunning(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.procs[name]
	return ok
}

func (r *Local) Start(ctx context.Context, spec Spec) (string, error) {
	parts := strings.Fields(r.cmdline)
	if len(parts) == 0 {
		return "", errors.New("bot command not configured")
	}

	// Reserve the name before starting so concurrent starts cannot both win.
	r.mu.Lock()
	if _, exists := r.procs[spec.Name]; exists {
		r.mu.Unlock()
		return "", fmt.Errorf("%s: %w", spec.Name, ErrAlreadyRunning)
	}
	p := &proc{done: make(chan struct{})}
	r.procs[spec.Name] = p
	r.mu.Unlock()
	release := func() {
		r.mu.Lock()
		delete(r.procs, spec.Name)
		r.mu.Unlock()
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	env := map[string]string{}
	for k, v := range spec.Env {
		env[k] = v
	}
	env["PORT"] = strconv.Itoa(spec.Port)
	cmd.Env = append(os.Environ(), envList(env)...)
	cmd.WaitDelay = r.grace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		release()
		return "", err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		release()
		return "", err
	}
	if err := cmd.Start(); err != nil {
		release()
		return "", fmt.Errorf("start %s: %w", spec.Name, err)
	}
	r.mu.Lock()
	p.cmd = cmd
	r.mu.Unlock()
	pid := strconv.Itoa(cmd.Process.Pid)
	log.Printf("[runtime] started %s pid=%s port=%d", spec.Name, pid, spec.Port)

	go stream(spec.Name, "stdout", stdout)
	go stream(spec.Name, "stderr", stderr)
	go func() {
		err := cmd.Wait()
		release()
		close(p.done)
		code := exitCode(err)
		log.Printf("[runtime] %s exited code=%d", spec.Name, code)
		if r.onExit != nil {
			r.onExit(spec.Name, code, err)
		}
	}()
	return pid, nil
}

// Stop sends SIGTERM and kills the process if it outlives the grace period.
func (r *Local) Stop(ctx context.Context, name string) error {
	r.mu.Lock()
	p, ok := r.procs[name]
	var cmd *exec.Cmd
	if ok {
		cmd = p.cmd
	}
	r.mu.Unlock()
	if cmd == nil {
		return fmt.Errorf("%s: %w", name, ErrNotRunning)
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
		return nil
	case <-time.After(r.grace):
		_ = cmd.Process.Kill()
		<-p.done
		return nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return ctx.Err()
	}
}

func stream(name, kind string, rdr io.Reader) {
	scanner := bufio.NewScanner(rdr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		log.Printf("bot[%s] %s: %s", name, kind, scanner.Text())
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return 1
}

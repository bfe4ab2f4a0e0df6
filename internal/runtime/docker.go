package runtime

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
)

// DockerOptions tunes container creation.
type DockerOptions struct {
	Host    string
	Network string
	// HostIP is the address ports are published on. Empty means all.
	HostIP string
}

// Docker runs each instance as a container named after the bot. The Docker
// daemon rejects a second container with the same name.
type Docker struct {
	inner  *client.Client
	opts   DockerOptions
	onExit ExitCallback
}

func NewDocker(opts DockerOptions, onExit ExitCallback) (*Docker, error) {
	copts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if opts.Host != "" {
		copts = append(copts, client.WithHost(opts.Host))
	}
	inner, err := client.NewClientWithOpts(copts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Docker{inner: inner, opts: opts, onExit: onExit}, nil
}

func (d *Docker) Ping(ctx context.Context) error {
	ping, err := d.inner.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	if ping.APIVersion == "" {
		return fmt.Errorf("docker ping returned empty API version")
	}
	return nil
}

func (d *Docker) Close() error { return d.inner.Close() }

// portBindings publishes port/tcp on the same host port.
func portBindings(hostIP string, port int) (nat.PortSet, nat.PortMap, error) {
	p, err := nat.NewPort("tcp", strconv.Itoa(port))
	if err != nil {
		return nil, nil, err
	}
	return nat.PortSet{p: struct{}{}},
		nat.PortMap{p: []nat.PortBinding{{HostIP: hostIP, HostPort: strconv.Itoa(port)}}},
		nil
}

func (d *Docker) Start(ctx context.Context, spec Spec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("container name cannot be empty")
	}
	if strings.TrimSpace(spec.Image) == "" {
		return "", fmt.Errorf("image name cannot be empty")
	}
	exposed, bindings, err := portBindings(d.opts.HostIP, spec.Port)
	if err != nil {
		return "", fmt.Errorf("port %d: %w", spec.Port, err)
	}
	env := map[string]string{}
	for k, v := range spec.Env {
		env[k] = v
	}
	env["PORT"] = strconv.Itoa(spec.Port)

	cfg := &container.Config{
		Image:        spec.Image,
		Env:          envList(env),
		ExposedPorts: exposed,
		Labels:       map[string]string{"captionbot.managed": "true"},
	}
	hostCfg := &container.HostConfig{
		PortBindings: bindings,
		AutoRemove:   true,
		ShmSize:      1 << 30,
	}
	if d.opts.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(d.opts.Network)
	}

	r, err := d.inner.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		if errdefs.IsConflict(err) {
			return "", fmt.Errorf("%s: %w", spec.Name, ErrAlreadyRunning)
		}
		return "", fmt.Errorf("container create: %w", err)
	}
	// Register the wait before starting so a fast exit is not missed.
	waitCh, errCh := d.inner.ContainerWait(context.Background(), r.ID, container.WaitConditionNextExit)
	if err := d.inner.ContainerStart(ctx, r.ID, container.StartOptions{}); err != nil {
		_ = d.inner.ContainerRemove(context.Background(), r.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("container start: %w", err)
	}
	log.Printf("[runtime] started container %s id=%s port=%d", spec.Name, shortID(r.ID), spec.Port)

	go func() {
		code, werr := 0, error(nil)
		select {
		case st := <-waitCh:
			code = int(st.StatusCode)
			if st.Error != nil && st.Error.Message != "" {
				werr = fmt.Errorf("container: %s", st.Error.Message)
			}
		case err := <-errCh:
			if err != nil && !client.IsErrNotFound(err) {
				werr = err
				code = -1
			}
		}
		log.Printf("[runtime] container %s exited code=%d", spec.Name, code)
		if d.onExit != nil {
			d.onExit(spec.Name, code, werr)
		}
	}()
	return r.ID, nil
}

// Stop force-removes the container.
func (d *Docker) Stop(ctx context.Context, name string) error {
	if err := d.inner.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil {
		if client.IsErrNotFound(err) {
			return fmt.Errorf("%s: %w", name, ErrNotRunning)
		}
		return fmt.Errorf("remove container: %w", err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// Package launcher accepts deployment requests and runs one bot instance per
// request through a runtime.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"captionbot/agent/internal/runtime"
	"captionbot/agent/internal/types"
)

type Config struct {
	Image      string
	PortMin    int
	PortMax    int
	NamePrefix string
	// BotEnv is passed to every instance in addition to the per-request
	// variables.
	BotEnv map[string]string
}

// Result describes an accepted deployment.
type Result struct {
	BotID         string `json:"botId"`
	Port          int    `json:"port"`
	ContainerName string `json:"containerName"`
}

type Service struct {
	cfg Config
	rt  runtime.Runtime
	reg *Registry
	now func() time.Time

	// mu makes port choice and reservation one step.
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewService(cfg Config, rt runtime.Runtime, reg *Registry) *Service {
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = DefaultNamePrefix
	}
	if cfg.PortMin == 0 && cfg.PortMax == 0 {
		cfg.PortMin, cfg.PortMax = 4101, 4199
	}
	if reg == nil {
		reg = NewRegistry()
	}
	return &Service{
		cfg: cfg,
		rt:  rt,
		reg: reg,
		now: time.Now,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DefaultNamePrefix prefixes instance names when none is configured.
const DefaultNamePrefix = "captionbot-"

// ContainerName is the deterministic instance name for botID. An empty
// prefix means DefaultNamePrefix.
func ContainerName(prefix, botID string) string {
	if prefix == "" {
		prefix = DefaultNamePrefix
	}
	return prefix + botID
}

func (s *Service) ContainerName(botID string) string { return ContainerName(s.cfg.NamePrefix, botID) }

// Deploy starts one instance for req. A bot id that is already live yields
// ErrInstanceExists and nothing is started. If the runtime fails the
// reservation is released and no record remains.
func (s *Service) Deploy(ctx context.Context, req Request) (Result, error) {
	name := s.ContainerName(req.BotID)

	s.mu.Lock()
	port := req.Port
	if port == 0 {
		p, err := AssignPort(s.cfg.PortMin, s.cfg.PortMax, s.reg.HeldPorts(), s.rnd)
		if err != nil {
			s.mu.Unlock()
			metricDeploys.WithLabelValues("no_port").Inc()
			return Result{}, err
		}
		port = p
	}
	inst := types.Instance{
		BotID:         req.BotID,
		ContainerName: name,
		Port:          port,
		MeetingURL:    req.MeetingURL,
		NotifierURLs:  req.NotifierURLs,
		StartedAt:     s.now().UTC(),
	}
	err := s.reg.Reserve(inst)
	s.mu.Unlock()
	if err != nil {
		metricDeploys.WithLabelValues("rejected").Inc()
		return Result{}, err
	}

	env := make(map[string]string, len(s.cfg.BotEnv)+3)
	for k, v := range s.cfg.BotEnv {
		env[k] = v
	}
	env["MEETING_URL"] = req.MeetingURL
	env["BOT_ID"] = req.BotID
	env["NOTIFIER_URLS"] = strings.Join(req.NotifierURLs, ",")

	id, err := s.rt.Start(ctx, runtime.Spec{Name: name, Image: s.cfg.Image, Env: env, Port: port})
	if err != nil {
		s.reg.Release(req.BotID)
		metricDeploys.WithLabelValues("failed").Inc()
		log.Printf("[launcher] start %s failed: %v", name, err)
		if errors.Is(err, runtime.ErrAlreadyRunning) {
			return Result{}, fmt.Errorf("%w: %w", ErrInstanceExists, err)
		}
		return Result{}, err
	}
	s.reg.MarkRunning(req.BotID, id)
	gaugeLive.Set(float64(s.reg.Live()))
	metricDeploys.WithLabelValues("started").Inc()
	log.Printf("[launcher] deployed bot=%s name=%s port=%d", req.BotID, name, port)
	return Result{BotID: req.BotID, Port: port, ContainerName: name}, nil
}

// Stop ends a live instance.
func (s *Service) Stop(ctx context.Context, botID string) error {
	inst, ok := s.reg.Get(botID)
	if !ok || inst.State == types.InstanceExited {
		return fmt.Errorf("%s: %w", botID, ErrUnknownBot)
	}
	err := s.rt.Stop(ctx, inst.ContainerName)
	if errors.Is(err, runtime.ErrNotRunning) {
		s.HandleExit(inst.ContainerName, 0, nil)
		return nil
	}
	return err
}

// HandleExit is the runtime's exit callback.
func (s *Service) HandleExit(name string, code int, err error) {
	inst, ok := s.reg.MarkExited(name, code, s.now().UTC())
	if !ok {
		return
	}
	result := "clean"
	if code != 0 || err != nil {
		result = "failed"
	}
	metricExits.WithLabelValues(result).Inc()
	gaugeLive.Set(float64(s.reg.Live()))
	log.Printf("[launcher] bot=%s exited code=%d err=%v", inst.BotID, code, err)
}

func (s *Service) Get(botID string) (types.Instance, bool) { return s.reg.Get(botID) }

func (s *Service) List() []types.Instance { return s.reg.List() }

// Health reports whether the runtime can start instances.
func (s *Service) Health(ctx context.Context) error { return s.rt.Ping(ctx) }

// StopAll stops every live instance, used on launcher shutdown.
func (s *Service) StopAll(ctx context.Context) {
	for _, inst := range s.reg.List() {
		if inst.State == types.InstanceExited {
			continue
		}
		if err := s.Stop(ctx, inst.BotID); err != nil {
			log.Printf("[launcher] stop %s: %v", inst.BotID, err)
		}
	}
}

// Package orchestrator owns one bot's lifecycle: browser setup, joining the
// meeting, starting caption capture and tearing everything down again.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"captionbot/agent/internal/automation"
	"captionbot/agent/internal/captions"
	"captionbot/agent/internal/join"
	"captionbot/agent/internal/lifecycle"
	"captionbot/agent/internal/types"
)

// ErrCaptionsNotStarted is returned by Captions before capture has begun.
var ErrCaptionsNotStarted = errors.New("captions not started")

// SubCodeAdmissionTimeout marks a bot that was never let into the call.
const SubCodeAdmissionTimeout = "admission_timeout"

type Config struct {
	BotID      string
	MeetingURL string
	BotName    string
	// LobbyWait bounds the check for the waiting room; AdmitWait bounds the
	// wait to be let into the call.
	LobbyWait time.Duration
	AdmitWait time.Duration
	Join      join.Config
	Captions  captions.Config
}

// Notifier fans events out to the configured destinations.
type Notifier interface {
	SendEvent(ctx context.Context, payload any) []error
}

// Sink persists captions and owns the log file.
type Sink interface {
	captions.TranscriptWriter
	Close() error
}

type Deps struct {
	Browser  automation.Factory
	Resolver join.Resolver
	Notifier Notifier
	Sink     Sink
	Logger   *slog.Logger
	Now      func() time.Time
}

type Orchestrator struct {
	cfg     Config
	deps    Deps
	logger  *slog.Logger
	history *lifecycle.History[lifecycle.BotStatus]

	// step is held for the whole of Launch so Shutdown runs after it.
	step sync.Mutex

	mu       sync.Mutex
	auto     automation.Automation
	flow     *join.Flow
	loop     *captions.Loop
	stopLoop context.CancelFunc
	loopDone chan struct{}
	closed   bool

	// Status events go out in order on their own goroutine so a slow
	// destination never holds up the join steps.
	evMu       sync.Mutex
	events     chan types.Event
	eventsDone chan struct{}
	evClosed   bool
}

const (
	statusQueueSize  = 64
	statusSendBudget = 5 * time.Second
)

func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.LobbyWait <= 0 {
		cfg.LobbyWait = 10 * time.Second
	}
	if cfg.AdmitWait <= 0 {
		cfg.AdmitWait = 300 * time.Second
	}
	if cfg.BotName == "" {
		cfg.BotName = "Caption Bot"
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg.Join.Now = deps.Now
	cfg.Captions.Now = deps.Now
	cfg.Captions.BotID = cfg.BotID
	o := &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger.With("component", "orchestrator"),
		history: lifecycle.NewHistory[lifecycle.BotStatus](deps.Now),
	}
	if deps.Notifier != nil {
		o.events = make(chan types.Event, statusQueueSize)
		o.eventsDone = make(chan struct{})
		go o.deliver()
	}
	return o
}

func (o *Orchestrator) deliver() {
	defer close(o.eventsDone)
	for ev := range o.events {
		ctx, cancel := context.WithTimeout(context.Background(), statusSendBudget)
		for _, err := range o.deps.Notifier.SendEvent(ctx, ev) {
			o.logger.Warn("status delivery failed", "error", err)
		}
		cancel()
	}
}

// enqueue never blocks; a full queue drops the event.
func (o *Orchestrator) enqueue(ev types.Event) {
	o.evMu.Lock()
	defer o.evMu.Unlock()
	if o.events == nil || o.evClosed {
		return
	}
	select {
	case o.events <- ev:
	default:
		metricStatusDropped.Inc()
		o.logger.Warn("status queue full, dropping event", "status", ev.Data)
	}
}

// drain stops the queue and waits for queued events to be sent.
func (o *Orchestrator) drain(ctx context.Context) error {
	o.evMu.Lock()
	if o.events == nil || o.evClosed {
		o.evMu.Unlock()
		return nil
	}
	o.evClosed = true
	close(o.events)
	o.evMu.Unlock()
	select {
	case <-o.eventsDone:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush status events: %w", ctx.Err())
	}
}

// Launch runs setup, join and caption capture in order. The first failing
// step records fatal and its error is returned; nothing is retried.
func (o *Orchestrator) Launch(ctx context.Context) error {
	o.step.Lock()
	defer o.step.Unlock()
	started := o.deps.Now()

	o.append(lifecycle.BotInitializing, "", "")
	auto, err := o.deps.Browser(ctx)
	if err != nil {
		return o.fail(fmt.Errorf("open browser: %w", err))
	}
	jcfg := o.cfg.Join
	jcfg.Observe = o.mirror
	flow := join.New(auto, o.deps.Resolver, jcfg, o.deps.Logger)
	o.mu.Lock()
	o.auto, o.flow = auto, flow
	o.mu.Unlock()
	o.append(lifecycle.BotDone, "", "setup")

	if err := flow.StartMeetingLauncherFlow(ctx, o.cfg.MeetingURL); err != nil {
		return o.fail(err)
	}
	if err := flow.JoinMeetingLobbyFlow(ctx, o.cfg.BotName); err != nil {
		return o.fail(err)
	}
	if flow.IsInMeetingLobby(ctx, o.cfg.LobbyWait) {
		o.logger.Info("waiting for admission", "admitWait", o.cfg.AdmitWait.String())
	}
	if !flow.IsInMeeting(ctx, o.cfg.AdmitWait) {
		if err := ctx.Err(); err != nil {
			return o.fail(fmt.Errorf("waiting for admission: %w", err))
		}
		return o.fail(&join.Error{SubCode: SubCodeAdmissionTimeout, Msg: fmt.Sprintf("not admitted within %s", o.cfg.AdmitWait)})
	}

	loop := captions.New(auto, o.deps.Notifier, o.deps.Sink, o.cfg.Captions, o.deps.Logger)
	if err := loop.Activate(ctx); err != nil {
		return o.fail(err)
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	o.mu.Lock()
	o.loop, o.stopLoop, o.loopDone = loop, cancel, done
	o.mu.Unlock()
	go func() {
		defer close(done)
		loop.Run(loopCtx)
	}()

	o.append(lifecycle.BotJoined, "", "")
	o.append(lifecycle.BotDone, "", "captions")
	metricLaunchDuration.Observe(o.deps.Now().Sub(started).Seconds())
	return nil
}

// mirror copies join statuses into the bot history.
func (o *Orchestrator) mirror(rec lifecycle.Record[lifecycle.JoinStatus]) {
	if s, ok := lifecycle.BotStatusFor(rec.Status); ok {
		o.append(s, rec.SubCode, rec.Message)
	}
}

func (o *Orchestrator) fail(err error) error {
	sub := join.SubCode(err)
	metricFatal.WithLabelValues(sub).Inc()
	o.append(lifecycle.BotFatal, sub, err.Error())
	o.logger.Error("launch failed", "subCode", sub, "error", err)
	return err
}

func (o *Orchestrator) append(s lifecycle.BotStatus, subCode, msg string) {
	from, _ := o.history.Current()
	rec, ok := o.history.Append(s, subCode, msg)
	if !ok {
		return
	}
	metricStateTransitions.WithLabelValues(string(from), string(s)).Inc()
	o.logger.Info("status", "status", s, "subCode", subCode, "message", msg)
	o.enqueue(types.Event{Type: types.EventStatus, BotID: o.cfg.BotID, Timestamp: rec.CreatedAt, Data: rec})
}

// Captions returns the running transcript.
func (o *Orchestrator) Captions() ([]types.Caption, error) {
	o.mu.Lock()
	loop := o.loop
	o.mu.Unlock()
	if loop == nil {
		return nil, ErrCaptionsNotStarted
	}
	return loop.Captions(), nil
}

func (o *Orchestrator) BotID() string { return o.cfg.BotID }

func (o *Orchestrator) History() []lifecycle.Record[lifecycle.BotStatus] {
	return o.history.Records()
}

// Status is the most recent status, or unknown before Launch.
func (o *Orchestrator) Status() lifecycle.BotStatus {
	s, ok := o.history.Current()
	if !ok {
		return lifecycle.BotUnknown
	}
	return s
}

func (o *Orchestrator) inCall() bool {
	return o.history.Has(lifecycle.BotInCallNotRecording) && !o.history.Has(lifecycle.BotCallEnded)
}

// Shutdown stops capture, leaves the call if in one, then always closes the
// browser, flushes queued status events and closes the sink. The leave and close errors are joined. Only the
// first call does anything.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.step.Lock()
	defer o.step.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	auto, flow, stop, done := o.auto, o.flow, o.stopLoop, o.loopDone
	o.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	var errs []error
	if flow != nil && o.inCall() {
		if err := flow.LeaveMeetingFlow(ctx); err != nil {
			metricLeaveFailures.Inc()
			o.logger.Error("leave meeting failed", "error", err)
			errs = append(errs, fmt.Errorf("leave meeting: %w", err))
		} else {
			o.append(lifecycle.BotCallEnded, "", "")
		}
	}
	if auto != nil {
		if err := auto.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if err := o.drain(ctx); err != nil {
		errs = append(errs, err)
	}
	o.logger.Info("shutdown complete", "status", o.Status())
	if o.deps.Sink != nil {
		if err := o.deps.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Package join walks a browser from a meeting link to the inside of the
// call. Callers issue the steps in order and own the timeout values; the
// bounded waiting itself happens here.
package join

import (
	"context"
	"log/slog"
	"time"

	"captionbot/agent/internal/automation"
	"captionbot/agent/internal/lifecycle"
)

type Config struct {
	Selectors        automation.Selectors
	InterstitialWait time.Duration
	ControlWait      time.Duration
	LeaveWait        time.Duration
	PollInterval     time.Duration
	// Observe is called after every applied status append.
	Observe func(lifecycle.Record[lifecycle.JoinStatus])
	Now     func() time.Time
}

func (c *Config) applyDefaults() {
	if c.Selectors == (automation.Selectors{}) {
		c.Selectors = automation.DefaultSelectors()
	}
	if c.InterstitialWait <= 0 {
		c.InterstitialWait = 30 * time.Second
	}
	if c.ControlWait <= 0 {
		c.ControlWait = 30 * time.Second
	}
	if c.LeaveWait <= 0 {
		c.LeaveWait = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = automation.DefaultPollInterval
	}
}

type Flow struct {
	auto     automation.Automation
	resolver Resolver
	cfg      Config
	history  *lifecycle.History[lifecycle.JoinStatus]
	logger   *slog.Logger
}

// New builds a Flow over an open browser session. A nil resolver uses
// NewHTTPResolver.
func New(a automation.Automation, r Resolver, cfg Config, logger *slog.Logger) *Flow {
	cfg.applyDefaults()
	if r == nil {
		r = NewHTTPResolver(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		auto:     a,
		resolver: r,
		cfg:      cfg,
		history:  lifecycle.NewHistory[lifecycle.JoinStatus](cfg.Now),
		logger:   logger.With("component", "join"),
	}
}

func (f *Flow) History() []lifecycle.Record[lifecycle.JoinStatus] {
	return f.history.Records()
}

func (f *Flow) append(s lifecycle.JoinStatus, subCode, msg string) bool {
	rec, ok := f.history.Append(s, subCode, msg)
	if ok {
		f.emit(rec)
	}
	return ok
}

func (f *Flow) appendOnce(s lifecycle.JoinStatus) bool {
	rec, ok := f.history.AppendOnce(s, "", "")
	if ok {
		f.emit(rec)
	}
	return ok
}

func (f *Flow) emit(rec lifecycle.Record[lifecycle.JoinStatus]) {
	f.logger.Info("join status", "status", rec.Status, "subCode", rec.SubCode, "message", rec.Message)
	if f.cfg.Observe != nil {
		f.cfg.Observe(rec)
	}
}

func (f *Flow) fail(subCode, msg string, err error) error {
	f.append(lifecycle.JoinFatal, subCode, msg)
	return &Error{SubCode: subCode, Msg: msg, Err: err}
}

// StartMeetingLauncherFlow resolves the meeting link, opens it with the
// browser-join flags and gets past the "continue in browser" interstitial.
func (f *Flow) StartMeetingLauncherFlow(ctx context.Context, meetingURL string) error {
	f.append(lifecycle.JoinLaunching, "", "")
	resolved, err := f.resolver.Resolve(ctx, meetingURL)
	if err != nil {
		return f.fail(SubCodeUnresolvableLaunchURL, "could not resolve meeting link", err)
	}
	target, err := LaunchURL(resolved)
	if err != nil {
		return f.fail(SubCodeUnresolvableLaunchURL, "could not build launch url", err)
	}
	f.logger.Info("opening meeting", "resolved", resolved)
	if err := f.auto.Navigate(ctx, target); err != nil {
		return f.fail("", "navigate to meeting", err)
	}
	sel := f.cfg.Selectors.ContinueInBrowser
	if err := automation.WaitFor(ctx, f.auto, sel, f.cfg.InterstitialWait, f.cfg.PollInterval); err != nil {
		return f.fail("", "continue-in-browser control not found", err)
	}
	if err := f.auto.Click(ctx, sel); err != nil {
		return f.fail("", "click continue-in-browser", err)
	}
	return nil
}

// JoinMeetingLobbyFlow enters the display name and asks to join.
func (f *Flow) JoinMeetingLobbyFlow(ctx context.Context, botName string) error {
	f.append(lifecycle.JoinJoining, "", "")
	s := f.cfg.Selectors
	if err := automation.WaitFor(ctx, f.auto, s.NameInput, f.cfg.ControlWait, f.cfg.PollInterval); err != nil {
		return f.fail("", "display name field not found", err)
	}
	if err := f.auto.Fill(ctx, s.NameInput, botName); err != nil {
		return f.fail("", "fill display name", err)
	}
	if err := automation.WaitFor(ctx, f.auto, s.JoinButton, f.cfg.ControlWait, f.cfg.PollInterval); err != nil {
		return f.fail("", "join button not found", err)
	}
	if err := f.auto.Click(ctx, s.JoinButton); err != nil {
		return f.fail("", "click join", err)
	}
	return nil
}

// IsInMeetingLobby polls for the lobby indicator for up to wait. A negative
// answer is not an error.
func (f *Flow) IsInMeetingLobby(ctx context.Context, wait time.Duration) bool {
	if !f.probe(ctx, f.cfg.Selectors.LobbyIndicator, wait) {
		return false
	}
	f.appendOnce(lifecycle.JoinInWaitingRoom)
	return true
}

// IsInMeeting polls for the in-call hang-up control for up to wait. The
// first positive answer records joined followed by done.
func (f *Flow) IsInMeeting(ctx context.Context, wait time.Duration) bool {
	if !f.probe(ctx, f.cfg.Selectors.HangUp, wait) {
		return false
	}
	if f.appendOnce(lifecycle.JoinJoined) {
		f.append(lifecycle.JoinDone, "", "in call")
	}
	return true
}

func (f *Flow) probe(ctx context.Context, selector string, wait time.Duration) bool {
	ok, err := automation.Poll(ctx, wait, f.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		return f.auto.Exists(ctx, selector)
	})
	if err != nil {
		f.logger.Debug("probe interrupted", "selector", selector, "error", err)
	}
	return ok
}

// LeaveMeetingFlow hangs up.
func (f *Flow) LeaveMeetingFlow(ctx context.Context) error {
	sel := f.cfg.Selectors.HangUp
	if err := automation.WaitFor(ctx, f.auto, sel, f.cfg.LeaveWait, f.cfg.PollInterval); err != nil {
		return f.fail("", "hang-up control not found", err)
	}
	if err := f.auto.Click(ctx, sel); err != nil {
		return f.fail("", "click hang-up", err)
	}
	f.logger.Info("left meeting")
	return nil
}

// Package captions turns the meeting client's live caption surface into a
// stream of finalized lines, each emitted once.
package captions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"captionbot/agent/internal/automation"
	"captionbot/agent/internal/types"
)

// Dispatcher receives every finalized caption event.
type Dispatcher interface {
	SendEvent(ctx context.Context, payload any) []error
}

// TranscriptWriter persists finalized captions.
type TranscriptWriter interface {
	WriteCaption(c types.Caption) error
}

type Config struct {
	BotID        string
	Selectors    automation.Selectors
	PollInterval time.Duration
	// StablePolls is how many consecutive polls the newest item must stay
	// unchanged before it counts as finalized.
	StablePolls int
	MenuWait    time.Duration
	Now         func() time.Time
}

// Line is one speaker/text pair read from the surface.
type Line struct {
	Speaker string
	Text    string
}

type Loop struct {
	auto       automation.Automation
	cfg        Config
	dispatch   Dispatcher
	transcript TranscriptWriter
	logger     *slog.Logger

	mu       sync.Mutex
	captions []types.Caption

	// Surface tracking, touched only by the polling goroutine. prev is the
	// last snapshot and prev[:final] have been emitted.
	prev      []Line
	final     int
	tailPos   int
	tailPolls int
}

func New(a automation.Automation, d Dispatcher, tw TranscriptWriter, cfg Config, logger *slog.Logger) *Loop {
	if cfg.Selectors == (automation.Selectors{}) {
		cfg.Selectors = automation.DefaultSelectors()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.StablePolls <= 0 {
		cfg.StablePolls = 3
	}
	if cfg.MenuWait <= 0 {
		cfg.MenuWait = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		auto:       a,
		cfg:        cfg,
		dispatch:   d,
		transcript: tw,
		logger:     logger.With("component", "captions"),
	}
}

// Activate turns live captions on through the more-actions menu.
func (l *Loop) Activate(ctx context.Context) error {
	s := l.cfg.Selectors
	for _, sel := range []string{s.MoreActions, s.CaptionsToggle} {
		if err := automation.WaitFor(ctx, l.auto, sel, l.cfg.MenuWait, 0); err != nil {
			return fmt.Errorf("activate captions: %s: %w", sel, err)
		}
		if err := l.auto.Click(ctx, sel); err != nil {
			return fmt.Errorf("activate captions: click %s: %w", sel, err)
		}
	}
	l.logger.Info("live captions enabled")
	return nil
}

// Run polls the caption surface until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	t := time.NewTicker(l.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.poll(ctx)
		}
	}
}

func (l *Loop) poll(ctx context.Context) {
	s := l.cfg.Selectors
	speakers, err := l.auto.ReadAll(ctx, s.CaptionSpeaker)
	if err != nil {
		metricPollErrors.Inc()
		l.logger.Warn("read caption speakers", "error", err)
		return
	}
	texts, err := l.auto.ReadAll(ctx, s.CaptionText)
	if err != nil {
		metricPollErrors.Inc()
		l.logger.Warn("read caption texts", "error", err)
		return
	}
	// The surface can change between the two reads; pair what lines up.
	n := len(texts)
	if len(speakers) < n {
		n = len(speakers)
	}
	if n == 0 {
		return
	}
	cur := make([]Line, n)
	for i := range cur {
		cur[i] = Line{Speaker: strings.TrimSpace(speakers[i]), Text: strings.TrimSpace(texts[i])}
	}
	l.observe(ctx, cur)
}

// observe advances the finalized cursor over one snapshot of the surface.
// Items are identified by position: shift is how many items scrolled off
// the top since the previous snapshot.
func (l *Loop) observe(ctx context.Context, cur []Line) {
	shift := resync(l.prev, cur)
	final := l.final - shift
	if final < 0 {
		final = 0
	}
	if final > len(cur) {
		final = len(cur)
	}
	for i := 0; i < final; i++ {
		if p := i + shift; p < len(l.prev) && l.prev[p] != cur[i] {
			metricRevised.Inc()
		}
	}

	last := len(cur) - 1
	for ; final < last; final++ {
		l.emit(ctx, cur[final])
	}
	if final == last {
		prevTail := l.tailPos - shift
		if prevTail == last && l.tailPolls > 0 && len(l.prev) > 0 && l.prev[len(l.prev)-1] == cur[last] {
			l.tailPolls++
		} else {
			l.tailPolls = 1
		}
		l.tailPos = last
		if l.tailPolls >= l.cfg.StablePolls && cur[last].Text != "" {
			l.emit(ctx, cur[last])
			final = len(cur)
			l.tailPolls = 0
		}
	} else {
		l.tailPolls = 0
	}
	l.prev, l.final = cur, final
}

// resync returns the smallest k such that prev[k:] lines up with the start
// of cur. The last item of prev may have grown or been revised since.
// len(prev) means nothing overlaps.
func resync(prev, cur []Line) int {
	for k := 0; k < len(prev); k++ {
		if aligned(prev[k:], cur) {
			return k
		}
	}
	return len(prev)
}

func aligned(old, cur []Line) bool {
	n := min(len(old), len(cur))
	if n == 0 {
		return false
	}
	for i := 0; i < n; i++ {
		if old[i].Speaker != cur[i].Speaker {
			return false
		}
		if old[i].Text != cur[i].Text && i != len(old)-1 {
			return false
		}
	}
	return true
}

// emit records one finalized item. Items without text are skipped.
func (l *Loop) emit(ctx context.Context, line Line) bool {
	if line.Text == "" {
		return false
	}
	c := types.Caption{
		BotID:      l.cfg.BotID,
		Speaker:    line.Speaker,
		Text:       line.Text,
		CapturedAt: l.cfg.Now().UTC(),
	}
	l.mu.Lock()
	l.captions = append(l.captions, c)
	l.mu.Unlock()

	metricFinalized.Inc()
	if l.transcript != nil {
		if err := l.transcript.WriteCaption(c); err != nil {
			l.logger.Error("transcript write failed", "error", err)
		}
	}
	if l.dispatch != nil {
		ev := types.Event{Type: types.EventCaption, BotID: c.BotID, Timestamp: c.CapturedAt, Data: c}
		for _, err := range l.dispatch.SendEvent(ctx, ev) {
			l.logger.Warn("caption delivery failed", "error", err)
		}
	}
	return true
}

// Captions returns a copy of the running transcript.
func (l *Loop) Captions() []types.Caption {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Caption, len(l.captions))
	copy(out, l.captions)
	return out
}

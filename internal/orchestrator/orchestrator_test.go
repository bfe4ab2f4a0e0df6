package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"captionbot/agent/internal/automation"
	"captionbot/agent/internal/automation/automationtest"
	"captionbot/agent/internal/captions"
	"captionbot/agent/internal/join"
	"captionbot/agent/internal/lifecycle"
	"captionbot/agent/internal/types"
)

type staticResolver struct{ err error }

func (r staticResolver) Resolve(ctx context.Context, u string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "https://teams.example/dl/launcher", nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []types.Event
}

func (n *fakeNotifier) SendEvent(ctx context.Context, payload any) []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, payload.(types.Event))
	return nil
}

func (n *fakeNotifier) ofType(typ string) []types.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []types.Event
	for _, e := range n.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// gatedNotifier holds every status event until release is closed.
type gatedNotifier struct {
	fakeNotifier
	release chan struct{}
}

func (n *gatedNotifier) SendEvent(ctx context.Context, payload any) []error {
	if ev := payload.(types.Event); ev.Type == types.EventStatus {
		<-n.release
	}
	return n.fakeNotifier.SendEvent(ctx, payload)
}

type fakeSink struct {
	mu       sync.Mutex
	captions []types.Caption
	closed   int
}

func (s *fakeSink) WriteCaption(c types.Caption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captions = append(s.captions, c)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// meetingPage scripts a meeting that admits the bot after a short lobby stay.
func meetingPage() *automationtest.Fake {
	sel := automation.DefaultSelectors()
	page := automationtest.New()
	page.Show(sel.ContinueInBrowser)
	page.OnClick(sel.ContinueInBrowser, func(f *automationtest.Fake) {
		f.Show(sel.NameInput)
		f.Show(sel.JoinButton)
	})
	page.OnClick(sel.JoinButton, func(f *automationtest.Fake) {
		f.Show(sel.LobbyIndicator)
		f.ShowAfter(sel.HangUp, 3)
	})
	page.Show(sel.MoreActions)
	page.OnClick(sel.MoreActions, func(f *automationtest.Fake) { f.Show(sel.CaptionsToggle) })
	return page
}

func testConfig() Config {
	return Config{
		BotID:      "bot-7",
		MeetingURL: "https://teams.example/l/meetup",
		LobbyWait:  20 * time.Millisecond,
		AdmitWait:  200 * time.Millisecond,
		Join: join.Config{
			InterstitialWait: 50 * time.Millisecond,
			ControlWait:      50 * time.Millisecond,
			LeaveWait:        20 * time.Millisecond,
			PollInterval:     2 * time.Millisecond,
		},
		Captions: captions.Config{PollInterval: 2 * time.Millisecond, MenuWait: 50 * time.Millisecond},
	}
}

func newOrchestrator(page *automationtest.Fake, r join.Resolver, n Notifier, s *fakeSink) *Orchestrator {
	return New(testConfig(), Deps{
		Browser:  page.Factory(),
		Resolver: r,
		Notifier: n,
		Sink:     s,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func statuses(recs []lifecycle.Record[lifecycle.BotStatus]) []lifecycle.BotStatus {
	out := make([]lifecycle.BotStatus, len(recs))
	for i, r := range recs {
		out[i] = r.Status
	}
	return out
}

func TestLaunchSuccessAndShutdown(t *testing.T) {
	page := meetingPage()
	n := &fakeNotifier{}
	s := &fakeSink{}
	o := newOrchestrator(page, staticResolver{}, n, s)

	if _, err := o.Captions(); !errors.Is(err, ErrCaptionsNotStarted) {
		t.Fatalf("expected ErrCaptionsNotStarted, got %v", err)
	}
	if o.Status() != lifecycle.BotUnknown {
		t.Fatalf("expected unknown before launch, got %s", o.Status())
	}
	if err := o.Launch(context.Background()); err != nil {
		t.Fatalf("launch: %v", err)
	}

	want := []lifecycle.BotStatus{
		lifecycle.BotInitializing, lifecycle.BotDone, lifecycle.BotLaunching, lifecycle.BotJoining,
		lifecycle.BotInWaitingRoom, lifecycle.BotInCallNotRecording, lifecycle.BotJoined, lifecycle.BotDone,
	}
	got := statuses(o.History())
	if len(got) != len(want) {
		t.Fatalf("history %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history %v, want %v", got, want)
		}
	}
	recs := o.History()
	if recs[1].Message != "setup" || recs[len(recs)-1].Message != "captions" {
		t.Fatalf("phase done markers missing: %+v", recs)
	}
	sel := automation.DefaultSelectors()
	page.SetList(sel.CaptionSpeaker, "Ana")
	page.SetList(sel.CaptionText, "good morning")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c, _ := o.Captions(); len(c) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	c, err := o.Captions()
	if err != nil || len(c) != 1 || c[0].Text != "good morning" || c[0].BotID != "bot-7" {
		t.Fatalf("unexpected captions %+v err=%v", c, err)
	}
	if len(n.ofType(types.EventCaption)) != 1 {
		t.Fatalf("caption should be dispatched once")
	}

	if err := o.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if o.Status() != lifecycle.BotCallEnded {
		t.Fatalf("expected call_ended, got %s", o.Status())
	}
	if sent := n.ofType(types.EventStatus); len(sent) != len(want)+1 {
		t.Fatalf("every status should be fanned out by shutdown, got %d", len(sent))
	}
	if err := o.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
	if page.Closed() != 1 || s.closed != 1 {
		t.Fatalf("resources should be released exactly once, browser=%d sink=%d", page.Closed(), s.closed)
	}
}

func TestUnresolvableLinkIsFatal(t *testing.T) {
	page := meetingPage()
	o := newOrchestrator(page, staticResolver{err: errors.New("no route")}, &fakeNotifier{}, &fakeSink{})
	err := o.Launch(context.Background())
	if join.SubCode(err) != join.SubCodeUnresolvableLaunchURL {
		t.Fatalf("expected unresolvable_launch_url, got %v", err)
	}
	recs := o.History()
	last := recs[len(recs)-1]
	if last.Status != lifecycle.BotFatal || last.SubCode != join.SubCodeUnresolvableLaunchURL {
		t.Fatalf("expected fatal with subCode, got %+v", last)
	}
	fatals := 0
	for _, r := range recs {
		if r.Status == lifecycle.BotFatal {
			fatals++
		}
	}
	if fatals != 1 {
		t.Fatalf("fatal must be recorded once, got %d", fatals)
	}
	if _, err := o.Captions(); !errors.Is(err, ErrCaptionsNotStarted) {
		t.Fatalf("captions must not be available after a failed launch")
	}
	if err := o.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown after failure: %v", err)
	}
	if page.Closed() != 1 {
		t.Fatalf("browser should be closed")
	}
}

func TestAdmissionTimeout(t *testing.T) {
	sel := automation.DefaultSelectors()
	page := meetingPage()
	// Stay in the lobby forever.
	page.OnClick(sel.JoinButton, func(f *automationtest.Fake) { f.Show(sel.LobbyIndicator) })
	o := newOrchestrator(page, staticResolver{}, &fakeNotifier{}, &fakeSink{})

	err := o.Launch(context.Background())
	if join.SubCode(err) != SubCodeAdmissionTimeout {
		t.Fatalf("expected admission_timeout, got %v", err)
	}
	if o.Status() != lifecycle.BotFatal {
		t.Fatalf("expected fatal, got %s", o.Status())
	}
	for _, r := range o.History() {
		if r.Status == lifecycle.BotInCallNotRecording {
			t.Fatalf("bot never got in the call")
		}
	}
}

func TestShutdownReleasesResourcesWhenLeaveFails(t *testing.T) {
	sel := automation.DefaultSelectors()
	page := meetingPage()
	s := &fakeSink{}
	o := newOrchestrator(page, staticResolver{}, &fakeNotifier{}, s)
	if err := o.Launch(context.Background()); err != nil {
		t.Fatalf("launch: %v", err)
	}
	page.Hide(sel.HangUp)
	page.FailClose(errors.New("browser gone"))

	err := o.Shutdown(context.Background())
	if err == nil {
		t.Fatalf("expected leave and close errors")
	}
	if !errors.Is(err, automation.ErrNotFound) {
		t.Fatalf("expected leave failure in joined error, got %v", err)
	}
	if page.Closed() != 1 || s.closed != 1 {
		t.Fatalf("browser and sink must be closed even when leave fails")
	}
}

func TestBrowserSetupFailure(t *testing.T) {
	o := New(Config{BotID: "b", MeetingURL: "https://x"}, Deps{
		Browser: func(context.Context) (automation.Automation, error) { return nil, errors.New("no webdriver") },
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := o.Launch(context.Background()); err == nil {
		t.Fatalf("expected setup failure")
	}
	if o.Status() != lifecycle.BotFatal {
		t.Fatalf("expected fatal, got %s", o.Status())
	}
	if err := o.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown without browser: %v", err)
	}
}

func TestSlowNotifierDoesNotStallLaunch(t *testing.T) {
	page := meetingPage()
	n := &gatedNotifier{release: make(chan struct{})}
	o := newOrchestrator(page, staticResolver{}, n, &fakeSink{})

	launched := make(chan error, 1)
	go func() { launched <- o.Launch(context.Background()) }()
	select {
	case err := <-launched:
		if err != nil {
			t.Fatalf("launch: %v", err)
		}
	case <-time.After(2 * time.Second):
		close(n.release)
		t.Fatalf("launch waited on status delivery")
	}
	if len(n.ofType(types.EventStatus)) != 0 {
		t.Fatalf("no status should be delivered while the destination is blocked")
	}

	close(n.release)
	if err := o.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	sent := n.ofType(types.EventStatus)
	recs := o.History()
	if len(sent) != len(recs) {
		t.Fatalf("shutdown should flush every status, sent %d of %d", len(sent), len(recs))
	}
	for i, ev := range sent {
		rec := ev.Data.(lifecycle.Record[lifecycle.BotStatus])
		if rec.Status != recs[i].Status {
			t.Fatalf("status %d delivered out of order: %s, want %s", i, rec.Status, recs[i].Status)
		}
	}
}

func TestShutdownGivesUpOnStuckStatusDelivery(t *testing.T) {
	page := meetingPage()
	n := &gatedNotifier{release: make(chan struct{})}
	defer close(n.release)
	o := newOrchestrator(page, staticResolver{}, n, &fakeSink{})
	if err := o.Launch(context.Background()); err != nil {
		t.Fatalf("launch: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := o.Shutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected flush to give up at the deadline, got %v", err)
	}
	if page.Closed() != 1 {
		t.Fatalf("browser should still be closed")
	}
}

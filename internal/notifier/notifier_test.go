package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"captionbot/agent/internal/auth"
	"captionbot/agent/internal/delivery"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeHTTP struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
	hdrs  []http.Header
}

func (f *fakeHTTP) Post(ctx context.Context, url string, body []byte, header http.Header) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	f.hdrs = append(f.hdrs, header)
	if f.fail[url] {
		return http.StatusInternalServerError, &delivery.StatusError{Code: http.StatusInternalServerError}
	}
	return http.StatusOK, nil
}

type fakeStream struct {
	mu       sync.Mutex
	attempts map[string]int
	failN    map[string]int // fail the first N attempts; -1 fails forever
}

func (f *fakeStream) Send(ctx context.Context, url string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempts == nil {
		f.attempts = map[string]int{}
	}
	f.attempts[url]++
	n := f.failN[url]
	if n < 0 || f.attempts[url] <= n {
		return errors.New("connection refused")
	}
	return nil
}

func noSleep(delays *[]time.Duration) delivery.Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
}

func TestFanOutContinuesPastFailingDestination(t *testing.T) {
	h := &fakeHTTP{fail: map[string]bool{"http://a/wh": true}}
	n, err := New([]string{"http://a/wh", "http://b/wh"}, h, &fakeStream{}, Options{Sleep: noSleep(nil)}, quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if errs := n.SendEvent(context.Background(), map[string]string{"k": "v"}); len(errs) != 0 {
		t.Fatalf("http failures must not be returned, got %v", errs)
	}
	if len(h.calls) != 2 || h.calls[1] != "http://b/wh" {
		t.Fatalf("expected both destinations attempted, got %v", h.calls)
	}
}

func TestFanOutStreamFailureDoesNotBlockHTTP(t *testing.T) {
	h := &fakeHTTP{}
	s := &fakeStream{failN: map[string]int{"ws://a/ws": -1}}
	n, err := New([]string{"ws://a/ws", "http://b/wh"}, h, s, Options{Retries: 3, Sleep: noSleep(nil)}, quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	errs := n.SendEvent(context.Background(), "payload")
	if len(errs) != 1 {
		t.Fatalf("expected one destination error, got %v", errs)
	}
	var de *DestinationError
	if !errors.As(errs[0], &de) || de.URL != "ws://a/ws" {
		t.Fatalf("expected DestinationError for ws://a/ws, got %v", errs[0])
	}
	if s.attempts["ws://a/ws"] != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", s.attempts["ws://a/ws"])
	}
	if len(h.calls) != 1 {
		t.Fatalf("http destination must still be attempted")
	}
}

func TestStreamRetrySucceedsWithIncreasingBackoff(t *testing.T) {
	var delays []time.Duration
	s := &fakeStream{failN: map[string]int{"ws://a/ws": 2}}
	n, err := New([]string{"ws://a/ws"}, &fakeHTTP{}, s, Options{Retries: 3, BaseDelay: 200 * time.Millisecond, Sleep: noSleep(&delays)}, quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if errs := n.SendEvent(context.Background(), "x"); len(errs) != 0 {
		t.Fatalf("expected success, got %v", errs)
	}
	if s.attempts["ws://a/ws"] != 3 {
		t.Fatalf("expected success on attempt 3, got %d attempts", s.attempts["ws://a/ws"])
	}
	if len(delays) != 2 || delays[0] != 200*time.Millisecond || delays[1] != 400*time.Millisecond {
		t.Fatalf("unexpected backoff delays %v", delays)
	}
}

func TestRejectsUnsupportedScheme(t *testing.T) {
	if _, err := New([]string{"ftp://x"}, &fakeHTTP{}, &fakeStream{}, Options{}, quietLogger()); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestDestinationsKeepOrderAndSkipBlanks(t *testing.T) {
	n, err := New([]string{" https://a/wh ", "", "wss://b/ws", "http://c/wh"}, &fakeHTTP{}, &fakeStream{}, Options{}, quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got := n.Destinations()
	want := []string{"https://a/wh", "wss://b/ws", "http://c/wh"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestNoDestinationsIsNoop(t *testing.T) {
	n, err := New(nil, nil, nil, Options{}, quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if errs := n.SendEvent(context.Background(), "x"); errs != nil {
		t.Fatalf("expected nil, got %v", errs)
	}
}

func TestSignsHTTPBodiesWhenSecretSet(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(auth.SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	n, err := New([]string{srv.URL}, delivery.NewHTTPClient(time.Second), &fakeStream{}, Options{Secret: "s3"}, quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	n.SendEvent(context.Background(), map[string]int{"n": 1})
	if gotSig == "" {
		t.Fatalf("expected signature header")
	}
	if err := auth.VerifyPayload("s3", gotSig, gotBody, time.Now(), 60); err != nil {
		t.Fatalf("signature does not verify: %v", err)
	}
}

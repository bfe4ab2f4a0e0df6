package botserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"captionbot/agent/internal/health"
	"captionbot/agent/internal/lifecycle"
	"captionbot/agent/internal/orchestrator"
	"captionbot/agent/internal/types"
)

type fakeSource struct {
	captions []types.Caption
	err      error
}

func (f *fakeSource) BotID() string                      { return "bot-1" }
func (f *fakeSource) Captions() ([]types.Caption, error) { return f.captions, f.err }
func (f *fakeSource) Status() lifecycle.BotStatus        { return lifecycle.BotJoined }
func (f *fakeSource) History() []lifecycle.Record[lifecycle.BotStatus] {
	return []lifecycle.Record[lifecycle.BotStatus]{{Status: lifecycle.BotJoined, CreatedAt: time.Unix(0, 0)}}
}

func TestCaptionsEndpoint(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/captions")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before init, got %d", resp.StatusCode)
	}

	src := &fakeSource{captions: []types.Caption{{Speaker: "Ana", Text: "hi"}}}
	s.Attach(src)
	resp, err = http.Get(srv.URL + "/captions")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var body struct {
		Captions []types.Caption `json:"captions"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(body.Captions) != 1 || body.Captions[0].Text != "hi" {
		t.Fatalf("unexpected response %d %+v", resp.StatusCode, body)
	}

	src.err = orchestrator.ErrCaptionsNotStarted
	resp, err = http.Get(srv.URL + "/captions")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while captions have not started, got %d", resp.StatusCode)
	}

	src.err = errors.New("surface read failed")
	resp, err = http.Get(srv.URL + "/captions")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 on failure, got %d", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := New()
	s.Attach(&fakeSource{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		BotID   string `json:"botId"`
		Status  string `json:"status"`
		History []map[string]any
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.BotID != "bot-1" || body.Status != "joined" || len(body.History) != 1 {
		t.Fatalf("unexpected status %+v", body)
	}
}

func TestHealthz(t *testing.T) {
	failing := health.Check{Name: "webdriver", Fn: func(context.Context) error { return errors.New("down") }}
	for _, tc := range []struct {
		name   string
		checks []health.Check
		want   int
	}{
		{"no checks", nil, http.StatusOK},
		{"failing check", []health.Check{failing}, http.StatusServiceUnavailable},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			New(tc.checks...).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestCaptionsUnavailableBeforeLaunch(t *testing.T) {
	s := New()
	s.Attach(orchestrator.New(orchestrator.Config{BotID: "bot-2"}, orchestrator.Deps{}))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/captions", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before launch, got %d: %s", rec.Code, rec.Body.String())
	}
}

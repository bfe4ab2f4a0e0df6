package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"captionbot/agent/internal/launcher"
	"captionbot/agent/internal/types"
)

type mockDeployer struct {
	deployed []launcher.Request
	err      error
	stopErr  error
}

func (m *mockDeployer) Deploy(ctx context.Context, req launcher.Request) (launcher.Result, error) {
	if m.err != nil {
		return launcher.Result{}, m.err
	}
	m.deployed = append(m.deployed, req)
	return launcher.Result{BotID: req.BotID, Port: 4123, ContainerName: "captionbot-" + req.BotID}, nil
}

func (m *mockDeployer) Stop(ctx context.Context, botID string) error { return m.stopErr }
func (m *mockDeployer) Get(botID string) (types.Instance, bool)      { return types.Instance{}, false }
func (m *mockDeployer) List() []types.Instance                       { return []types.Instance{{BotID: "a"}} }
func (m *mockDeployer) Health(ctx context.Context) error             { return nil }

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return resp
}

func TestDeployAccepted(t *testing.T) {
	m := &mockDeployer{}
	srv := httptest.NewServer(NewRouter(NewHandlers(m)))
	defer srv.Close()

	resp := post(t, srv.URL+"/bot", `{"meetingUrl":"https://teams.example/l/x","notifierUrls":["ws://sink/ws"]}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var res launcher.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.BotID == "" || res.Port != 4123 || res.ContainerName != "captionbot-"+res.BotID {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(m.deployed) != 1 || m.deployed[0].NotifierURLs[0] != "ws://sink/ws" {
		t.Fatalf("unexpected deploy calls %+v", m.deployed)
	}
}

func TestDeployValidationHasNoSideEffects(t *testing.T) {
	m := &mockDeployer{}
	srv := httptest.NewServer(NewRouter(NewHandlers(m)))
	defer srv.Close()

	resp := post(t, srv.URL+"/bot", `{"meetingUrl":"nope","botId":"x"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body struct {
		Errors []launcher.FieldError `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Errors) != 2 {
		t.Fatalf("expected two field errors, got %+v", body.Errors)
	}
	if len(m.deployed) != 0 {
		t.Fatalf("invalid request must not deploy")
	}

	bad := post(t, srv.URL+"/bot", `{`)
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", bad.StatusCode)
	}
}

func TestDeployErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"duplicate", launcher.ErrInstanceExists, http.StatusConflict},
		{"port taken", launcher.ErrPortInUse, http.StatusConflict},
		{"runtime", errors.New("image not found"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(NewRouter(NewHandlers(&mockDeployer{err: tc.err})))
			defer srv.Close()
			resp := post(t, srv.URL+"/bot", `{"meetingUrl":"https://x.example/m"}`)
			defer resp.Body.Close()
			if resp.StatusCode != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, resp.StatusCode)
			}
			var body map[string]string
			_ = json.NewDecoder(resp.Body).Decode(&body)
			if body["error"] != tc.err.Error() {
				t.Fatalf("expected runtime message surfaced, got %v", body)
			}
		})
	}
}

func TestStopAndListRoutes(t *testing.T) {
	m := &mockDeployer{stopErr: launcher.ErrUnknownBot}
	srv := httptest.NewServer(NewRouter(NewHandlers(m)))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/bot/unknown", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/bots")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Bots []types.Instance `json:"bots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || len(body.Bots) != 1 {
		t.Fatalf("unexpected list %+v %v", body, err)
	}

	resp2, err := http.Get(srv.URL + "/bot")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp2.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewRouter(NewHandlers(&mockDeployer{})))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

// Package botserver exposes one bot's state over HTTP.
package botserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"captionbot/agent/internal/health"
	"captionbot/agent/internal/lifecycle"
	"captionbot/agent/internal/orchestrator"
	"captionbot/agent/internal/types"
)

// Source is the orchestrator surface the server reads.
type Source interface {
	BotID() string
	Captions() ([]types.Caption, error)
	Status() lifecycle.BotStatus
	History() []lifecycle.Record[lifecycle.BotStatus]
}

// Server answers 503 until a Source is attached.
type Server struct {
	mu     sync.RWMutex
	src    Source
	checks []health.Check
}

func New(checks ...health.Check) *Server { return &Server{checks: checks} }

func (s *Server) Attach(src Source) {
	s.mu.Lock()
	s.src = src
	s.mu.Unlock()
}

func (s *Server) source() Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.src
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/captions", s.get(s.handleCaptions))
	mux.HandleFunc("/status", s.get(s.handleStatus))
	return mux
}

func (s *Server) get(next func(http.ResponseWriter, *http.Request, Source)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		src := s.source()
		if src == nil {
			writeError(w, http.StatusServiceUnavailable, "bot not initialized")
			return
		}
		next(w, r, src)
	}
}

func (s *Server) handleCaptions(w http.ResponseWriter, r *http.Request, src Source) {
	captions, err := src.Captions()
	if errors.Is(err, orchestrator.ErrCaptionsNotStarted) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if captions == nil {
		captions = []types.Caption{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"captions": captions})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, src Source) {
	writeJSON(w, http.StatusOK, map[string]any{
		"botId":   src.BotID(),
		"status":  src.Status(),
		"history": src.History(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := health.CheckAll(r.Context(), s.checks...)
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[botserver] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Package sinkserver is a reference consumer for bot notifications: a
// webhook endpoint and a streaming endpoint that echoes what it receives.
package sinkserver

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "nhooyr.io/websocket"

	"captionbot/agent/internal/auth"
	"captionbot/agent/internal/types"
)

const maxBody = 1 << 20

type Config struct {
	// Secret enables signature checks on webhook deliveries when set.
	Secret   string
	SkewSecs int
}

type Server struct {
	Cfg Config
	Reg *Registry

	mu     sync.Mutex
	events []types.Event
}

func NewServer(cfg Config, reg *Registry) *Server {
	return &Server{Cfg: cfg, Reg: reg}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/wh/bot", s.HandleWebhook)
	mux.HandleFunc("/ws", s.HandleStream)
	return mux
}

// Events returns the webhook events received so far.
func (s *Server) Events() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if s.Cfg.Secret != "" {
		sig := r.Header.Get(auth.SignatureHeader)
		if err := auth.VerifyPayload(s.Cfg.Secret, sig, body, time.Now(), s.Cfg.SkewSecs); err != nil {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}
	var ev types.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		// Arbitrary payloads are accepted; only typed events are kept.
		log.Printf("[sink] webhook payload (%d bytes)", len(body))
	} else {
		log.Printf("[sink] webhook event type=%s bot=%s", ev.Type, ev.BotID)
		s.mu.Lock()
		s.events = append(s.events, ev)
		s.mu.Unlock()
		s.Reg.Broadcast(r.Context(), ev)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request) {
	c, err := ws.Accept(w, r, nil)
	if err != nil {
		log.Printf("[sink] ws accept: %v", err)
		return
	}
	id := uuid.NewString()
	s.Reg.Add(id, c)
	log.Printf("[sink] stream %s connected from %s", id, r.RemoteAddr)

	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != ws.MessageText {
			continue
		}
		log.Printf("[sink] stream %s: %s", id, data)
		if err := c.Write(ctx, ws.MessageText, data); err != nil {
			break
		}
	}
	s.Reg.Remove(id)
	_ = c.Close(ws.StatusNormalClosure, "done")
	log.Printf("[sink] stream %s disconnected", id)
}

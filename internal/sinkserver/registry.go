package sinkserver

import (
	"context"
	"encoding/json"
	"sync"

	ws "nhooyr.io/websocket"
)

// Registry tracks connected stream clients by connection id.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*ws.Conn
}

func NewRegistry() *Registry { return &Registry{conns: make(map[string]*ws.Conn)} }

func (r *Registry) Add(id string, c *ws.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = c
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Broadcast writes v as a text frame to every connection and returns how
// many writes succeeded.
func (r *Registry) Broadcast(ctx context.Context, v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	r.mu.Lock()
	conns := make([]*ws.Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()
	sent := 0
	for _, c := range conns {
		if err := c.Write(ctx, ws.MessageText, b); err == nil {
			sent++
		}
	}
	return sent
}

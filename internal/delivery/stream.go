package delivery

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"nhooyr.io/websocket"
)

// StreamConn is one live persistent-stream connection.
type StreamConn interface {
	Write(ctx context.Context, payload []byte) error
	Close() error
}

// Dialer opens a persistent-stream connection to url.
type Dialer func(ctx context.Context, url string) (StreamConn, error)

// StreamPool caches persistent-stream connections keyed by destination URL.
// Connections are dialed lazily, reused while healthy and evicted on write
// failure or remote close; the next send dials again.
type StreamPool struct {
	dial  Dialer
	group singleflight.Group

	mu    sync.Mutex
	conns map[string]StreamConn
}

func NewStreamPool(dial Dialer) *StreamPool {
	if dial == nil {
		dial = DialWebsocket
	}
	return &StreamPool{dial: dial, conns: make(map[string]StreamConn)}
}

// Acquire returns the cached connection for url or dials a new one.
// Concurrent callers for the same url share a single dial; the dial runs
// under the first caller's context.
func (p *StreamPool) Acquire(ctx context.Context, url string) (StreamConn, error) {
	if c := p.cached(url); c != nil {
		return c, nil
	}
	v, err, _ := p.group.Do(url, func() (any, error) {
		if c := p.cached(url); c != nil {
			return c, nil
		}
		c, err := p.dial(ctx, url)
		if err != nil {
			metricStreamDials.WithLabelValues("error").Inc()
			return nil, err
		}
		metricStreamDials.WithLabelValues("ok").Inc()
		p.mu.Lock()
		p.conns[url] = c
		gaugePoolSize.Set(float64(len(p.conns)))
		p.mu.Unlock()
		if w, ok := c.(interface{ Done() <-chan struct{} }); ok {
			go func() {
				<-w.Done()
				p.Evict(url, c)
			}()
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(StreamConn), nil
}

func (p *StreamPool) cached(url string) StreamConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[url]
}

// Evict drops c from the pool if it is still the cached connection for url
// and closes it.
func (p *StreamPool) Evict(url string, c StreamConn) {
	p.mu.Lock()
	cur, ok := p.conns[url]
	if ok && cur == c {
		delete(p.conns, url)
		gaugePoolSize.Set(float64(len(p.conns)))
		metricStreamEvictions.Inc()
	}
	p.mu.Unlock()
	_ = c.Close()
}

// Send writes payload over the pooled connection for url. A failed write
// evicts the connection.
func (p *StreamPool) Send(ctx context.Context, url string, payload []byte) error {
	c, err := p.Acquire(ctx, url)
	if err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}
	if err := c.Write(ctx, payload); err != nil {
		p.Evict(url, c)
		return fmt.Errorf("write %s: %w", url, err)
	}
	return nil
}

// Len reports the number of cached connections.
func (p *StreamPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close closes every cached connection.
func (p *StreamPool) Close() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]StreamConn)
	gaugePoolSize.Set(0)
	p.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

type wsConn struct {
	ws   *websocket.Conn
	done <-chan struct{}
	once sync.Once
}

// DialWebsocket is the default Dialer.
func DialWebsocket(ctx context.Context, url string) (StreamConn, error) {
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	start := time.Now()
	c, _, err := websocket.Dial(dctx, url, nil)
	if err != nil {
		log.Printf("[delivery] connect %s failed: %v", url, err)
		return nil, err
	}
	log.Printf("[delivery] connected to %s in %dms", url, time.Since(start).Milliseconds())
	done := make(chan struct{})
	go discard(c, done)
	return &wsConn{ws: c, done: done}, nil
}

// discard drains frames the destination sends back (sinks may echo) so
// control frames keep being processed. done closes when the peer goes away.
func discard(c *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := c.Read(context.Background()); err != nil {
			return
		}
	}
}

func (c *wsConn) Write(ctx context.Context, payload []byte) error {
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.ws.Write(wctx, websocket.MessageText, payload)
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.ws.Close(websocket.StatusNormalClosure, "bye")
	})
	return err
}

func (c *wsConn) Done() <-chan struct{} { return c.done }

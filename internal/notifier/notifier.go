package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"captionbot/agent/internal/auth"
	"captionbot/agent/internal/delivery"
)

// HTTPPoster delivers to request/response destinations.
type HTTPPoster interface {
	Post(ctx context.Context, url string, body []byte, header http.Header) (int, error)
}

// StreamSender delivers to persistent-stream destinations.
type StreamSender interface {
	Send(ctx context.Context, url string, payload []byte) error
}

type transport string

const (
	transportHTTP   transport = "http"
	transportStream transport = "stream"
)

type destination struct {
	url  string
	kind transport
}

// Options tunes retry and signing behaviour.
type Options struct {
	Retries   int
	BaseDelay time.Duration
	// Secret enables HMAC signing of request/response bodies.
	Secret string
	Sleep  delivery.Sleeper
}

// DestinationError reports a persistent-stream destination that exhausted
// its retries.
type DestinationError struct {
	URL string
	Err error
}

func (e *DestinationError) Error() string { return fmt.Sprintf("deliver to %s: %v", e.URL, e.Err) }
func (e *DestinationError) Unwrap() error { return e.Err }

// Notifier fans one event out to every configured destination. A failing
// destination never prevents delivery to the others.
type Notifier struct {
	http   HTTPPoster
	stream StreamSender
	dests  []destination
	opts   Options
	logger *slog.Logger
}

// New validates destination schemes and builds a Notifier.
func New(urls []string, httpc HTTPPoster, stream StreamSender, opts Options, logger *slog.Logger) (*Notifier, error) {
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{http: httpc, stream: stream, opts: opts, logger: logger}
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("notifier destination %q: %w", raw, err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			n.dests = append(n.dests, destination{url: raw, kind: transportHTTP})
		case "ws", "wss":
			n.dests = append(n.dests, destination{url: raw, kind: transportStream})
		default:
			return nil, fmt.Errorf("notifier destination %q: unsupported scheme %q", raw, u.Scheme)
		}
	}
	return n, nil
}

// Destinations lists the configured destination URLs in order.
func (n *Notifier) Destinations() []string {
	out := make([]string, len(n.dests))
	for i, d := range n.dests {
		out[i] = d.url
	}
	return out
}

// SendEvent delivers payload to every destination. Request/response failures
// are logged only; persistent-stream failures that outlive the retry policy
// are logged and returned as *DestinationError.
func (n *Notifier) SendEvent(ctx context.Context, payload any) []error {
	if len(n.dests) == 0 {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("notifier payload encode failed", "error", err)
		return []error{fmt.Errorf("encode payload: %w", err)}
	}
	var errs []error
	for _, d := range n.dests {
		switch d.kind {
		case transportHTTP:
			n.sendHTTP(ctx, d.url, body)
		case transportStream:
			if err := n.sendStream(ctx, d.url, body); err != nil {
				metricDeliveries.WithLabelValues(string(d.kind), "failed").Inc()
				n.logger.Error("stream delivery failed", "url", d.url, "error", err)
				errs = append(errs, &DestinationError{URL: d.url, Err: err})
				continue
			}
			metricDeliveries.WithLabelValues(string(d.kind), "ok").Inc()
		}
	}
	return errs
}

func (n *Notifier) sendHTTP(ctx context.Context, dest string, body []byte) {
	header := http.Header{}
	if n.opts.Secret != "" {
		header.Set(auth.SignatureHeader, auth.SignPayload(n.opts.Secret, body, time.Now()))
	}
	code, err := n.http.Post(ctx, dest, body, header)
	if err != nil {
		metricDeliveries.WithLabelValues(string(transportHTTP), "failed").Inc()
		n.logger.Warn("http delivery failed", "url", dest, "status", code, "error", err)
		return
	}
	metricDeliveries.WithLabelValues(string(transportHTTP), "ok").Inc()
}

func (n *Notifier) sendStream(ctx context.Context, dest string, body []byte) error {
	return delivery.Retry(ctx, n.opts.Retries, n.opts.BaseDelay, n.opts.Sleep, func(attempt int) error {
		err := n.stream.Send(ctx, dest, body)
		if err != nil {
			n.logger.Debug("stream delivery attempt failed", "url", dest, "attempt", attempt, "error", err)
		}
		return err
	})
}

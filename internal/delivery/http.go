package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError is returned when a destination answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("destination returned %d: %s", e.Code, e.Body)
}

// HTTPClient posts JSON payloads to request/response destinations.
type HTTPClient struct {
	http *http.Client
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{http: &http.Client{Timeout: timeout}}
}

// Post sends body to url once. Non-2xx answers are reported as *StatusError.
func (c *HTTPClient) Post(ctx context.Context, url string, body []byte, header http.Header) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		metricHTTPSends.WithLabelValues("error").Inc()
		return 0, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		metricHTTPSends.WithLabelValues("error").Inc()
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		metricHTTPSends.WithLabelValues("rejected").Inc()
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	metricHTTPSends.WithLabelValues("ok").Inc()
	return resp.StatusCode, nil
}

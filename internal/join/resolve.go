package join

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Resolver follows a meeting link to the page the browser should open.
type Resolver interface {
	Resolve(ctx context.Context, meetingURL string) (string, error)
}

// HTTPResolver resolves by issuing a GET and following redirects.
type HTTPResolver struct {
	http *http.Client
}

func NewHTTPResolver(timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPResolver{http: &http.Client{Timeout: timeout}}
}

func (r *HTTPResolver) Resolve(ctx context.Context, meetingURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meetingURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	resp, err := r.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("resolve %s: %s", meetingURL, resp.Status)
	}
	return resp.Request.URL.String(), nil
}

// launchFlags keep the meeting client in the browser instead of offering
// the desktop app.
var launchFlags = map[string]string{
	"msLaunch":         "false",
	"suppressPrompt":   "true",
	"directDl":         "true",
	"type":             "meetup-join",
	"enableMobilePage": "true",
}

// LaunchURL rewrites the resolved landing URL with the browser-join flags.
func LaunchURL(resolved string) (string, error) {
	u, err := url.Parse(resolved)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("launch url %q is not absolute", resolved)
	}
	q := u.Query()
	for k, v := range launchFlags {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

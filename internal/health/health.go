package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// Check is one named probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// CheckAll runs every check and returns the combined status.
func CheckAll(ctx context.Context, checks ...Check) HealthStatus {
	results := make([]CheckResult, 0, len(checks))
	allOK := true
	for _, c := range checks {
		start := time.Now()
		err := c.Fn(ctx)
		r := CheckResult{Name: c.Name, OK: err == nil, Latency: time.Since(start)}
		if err != nil {
			r.Error = err.Error()
			allOK = false
		}
		results = append(results, r)
	}
	return HealthStatus{OK: allOK, Checks: results, CheckedAt: time.Now().UTC()}
}

// Pinger is anything with a liveness call, such as a runtime.
type Pinger interface {
	Ping(ctx context.Context) error
}

func PingCheck(name string, p Pinger) Check {
	return Check{Name: name, Fn: p.Ping}
}

// HTTPCheck expects a 200 from GET url.
func HTTPCheck(name, url string) Check {
	return Check{Name: name, Fn: func(ctx context.Context) error {
		if url == "" {
			return fmt.Errorf("%s url not set", name)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("request build failed: %v", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}}
}

// WebDriverCheck probes the WebDriver /status endpoint.
func WebDriverCheck(base string) Check {
	return HTTPCheck("webdriver", strings.TrimRight(base, "/")+"/status")
}

// Package webdriver drives a browser through a W3C WebDriver endpoint
// (chromedriver, selenium standalone) and implements automation.Automation.
package webdriver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"

	"captionbot/agent/internal/automation"
)

// WebDriver error codes the session treats specially.
const (
	codeStale     = "stale element reference"
	codeNoElement = "no such element"
)

// Client opens browser sessions on one WebDriver endpoint.
type Client struct {
	base string
}

func NewClient(base string) *Client {
	return &Client{base: strings.TrimRight(base, "/")}
}

// Options configures a new browser session.
type Options struct {
	Headless bool
	Args     []string
}

func capabilities(opts Options) selenium.Capabilities {
	args := append([]string{
		"--use-fake-ui-for-media-stream",
		"--use-fake-device-for-media-stream",
		"--disable-notifications",
		"--window-size=1280,720",
	}, opts.Args...)
	if opts.Headless {
		args = append(args, "--headless=new")
	}
	caps := selenium.Capabilities{"browserName": "chrome"}
	caps.AddChrome(chrome.Capabilities{Args: args, W3C: true})
	return caps
}

// NewSession opens a browser.
func (c *Client) NewSession(ctx context.Context, opts Options) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wd, err := selenium.NewRemote(capabilities(opts), c.base)
	if err != nil {
		return nil, fmt.Errorf("webdriver new session: %w", err)
	}
	return &Session{wd: wd}, nil
}

// Factory adapts the client to automation.Factory.
func (c *Client) Factory(opts Options) automation.Factory {
	return func(ctx context.Context) (automation.Automation, error) {
		return c.NewSession(ctx, opts)
	}
}

// call runs one blocking driver command, returning early when ctx ends.
// The selenium client has no context support of its own.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func do(ctx context.Context, fn func() error) error {
	_, err := call(ctx, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// hasCode reports whether err is a WebDriver error with the given code.
func hasCode(err error, code string) bool {
	var werr *selenium.Error
	return errors.As(err, &werr) && werr.Err == code
}

// Session is one open browser.
type Session struct {
	wd selenium.WebDriver
}

func (s *Session) ID() string { return s.wd.SessionID() }

func (s *Session) Navigate(ctx context.Context, url string) error {
	return do(ctx, func() error { return s.wd.Get(url) })
}

func (s *Session) find(ctx context.Context, selector string) ([]selenium.WebElement, error) {
	els, err := call(ctx, func() ([]selenium.WebElement, error) {
		return s.wd.FindElements(selenium.ByCSSSelector, selector)
	})
	if hasCode(err, codeNoElement) {
		return nil, nil
	}
	return els, err
}

func (s *Session) first(ctx context.Context, selector string) (selenium.WebElement, error) {
	els, err := s.find(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%s: %w", selector, automation.ErrNotFound)
	}
	return els[0], nil
}

func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	els, err := s.find(ctx, selector)
	if err != nil {
		return false, err
	}
	return len(els) > 0, nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	el, err := s.first(ctx, selector)
	if err != nil {
		return err
	}
	return do(ctx, el.Click)
}

func (s *Session) Fill(ctx context.Context, selector, text string) error {
	el, err := s.first(ctx, selector)
	if err != nil {
		return err
	}
	if err := do(ctx, el.Clear); err != nil {
		return err
	}
	return do(ctx, func() error { return el.SendKeys(text) })
}

func (s *Session) ReadText(ctx context.Context, selector string) (string, error) {
	el, err := s.first(ctx, selector)
	if err != nil {
		return "", err
	}
	return call(ctx, el.Text)
}

// ReadAll returns the text of every match in document order. Elements that
// vanish between lookup and read are skipped.
func (s *Session) ReadAll(ctx context.Context, selector string) ([]string, error) {
	els, err := s.find(ctx, selector)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(els))
	for _, el := range els {
		t, err := call(ctx, el.Text)
		if err != nil {
			if hasCode(err, codeStale) {
				continue
			}
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Close deletes the session, which quits the browser.
func (s *Session) Close() error {
	return s.wd.Quit()
}

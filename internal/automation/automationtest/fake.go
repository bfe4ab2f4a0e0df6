// Package automationtest provides a scripted in-memory Automation for tests.
package automationtest

import (
	"context"
	"fmt"
	"sync"

	"captionbot/agent/internal/automation"
)

// Fake is a page made of named elements. Elements can be shown immediately,
// after a number of existence checks, or as a reaction to a click.
type Fake struct {
	mu          sync.Mutex
	present     map[string]bool
	appearAfter map[string]int
	checks      map[string]int
	lists       map[string][]string
	texts       map[string]string
	onClick     map[string]func(*Fake)
	readErr     map[string]error
	closeErr    error

	navigated []string
	clicked   []string
	filled    map[string]string
	closed    int
}

func New() *Fake {
	return &Fake{
		present:     map[string]bool{},
		appearAfter: map[string]int{},
		checks:      map[string]int{},
		lists:       map[string][]string{},
		texts:       map[string]string{},
		onClick:     map[string]func(*Fake){},
		readErr:     map[string]error{},
		filled:      map[string]string{},
	}
}

// Factory returns an automation.Factory handing out f.
func (f *Fake) Factory() automation.Factory {
	return func(context.Context) (automation.Automation, error) { return f, nil }
}

func (f *Fake) Show(selector string) {
	f.mu.Lock()
	f.present[selector] = true
	f.mu.Unlock()
}

func (f *Fake) Hide(selector string) {
	f.mu.Lock()
	delete(f.present, selector)
	delete(f.appearAfter, selector)
	f.mu.Unlock()
}

// ShowAfter makes selector visible after n existence checks.
func (f *Fake) ShowAfter(selector string, n int) {
	f.mu.Lock()
	f.appearAfter[selector] = n
	f.mu.Unlock()
}

// OnClick runs fn (without the lock held) after selector is clicked.
func (f *Fake) OnClick(selector string, fn func(*Fake)) {
	f.mu.Lock()
	f.onClick[selector] = fn
	f.mu.Unlock()
}

// SetList replaces the texts returned by ReadAll(selector).
func (f *Fake) SetList(selector string, items ...string) {
	f.mu.Lock()
	f.lists[selector] = append([]string(nil), items...)
	f.mu.Unlock()
}

func (f *Fake) SetText(selector, text string) {
	f.mu.Lock()
	f.texts[selector] = text
	f.present[selector] = true
	f.mu.Unlock()
}

// FailReads makes ReadAll(selector) return err until cleared with nil.
func (f *Fake) FailReads(selector string, err error) {
	f.mu.Lock()
	if err == nil {
		delete(f.readErr, selector)
	} else {
		f.readErr[selector] = err
	}
	f.mu.Unlock()
}

func (f *Fake) FailClose(err error) {
	f.mu.Lock()
	f.closeErr = err
	f.mu.Unlock()
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *Fake) Exists(ctx context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existsLocked(selector), nil
}

func (f *Fake) existsLocked(selector string) bool {
	if f.present[selector] {
		return true
	}
	if n, ok := f.appearAfter[selector]; ok {
		f.checks[selector]++
		if f.checks[selector] > n {
			f.present[selector] = true
			return true
		}
	}
	return false
}

func (f *Fake) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	if !f.present[selector] {
		f.mu.Unlock()
		return fmt.Errorf("%s: %w", selector, automation.ErrNotFound)
	}
	f.clicked = append(f.clicked, selector)
	fn := f.onClick[selector]
	f.mu.Unlock()
	if fn != nil {
		fn(f)
	}
	return nil
}

func (f *Fake) Fill(ctx context.Context, selector, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.present[selector] {
		return fmt.Errorf("%s: %w", selector, automation.ErrNotFound)
	}
	f.filled[selector] = text
	return nil
}

func (f *Fake) ReadText(ctx context.Context, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.present[selector] {
		return "", fmt.Errorf("%s: %w", selector, automation.ErrNotFound)
	}
	return f.texts[selector], nil
}

func (f *Fake) ReadAll(ctx context.Context, selector string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErr[selector]; err != nil {
		return nil, err
	}
	return append([]string(nil), f.lists[selector]...), nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

func (f *Fake) Navigated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigated...)
}

func (f *Fake) Clicked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.clicked...)
}

func (f *Fake) Filled(selector string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filled[selector]
}

func (f *Fake) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

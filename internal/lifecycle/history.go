package lifecycle

import (
	"sort"
	"sync"
	"time"
)

// Status is satisfied by the two status vocabularies.
type Status interface {
	~string
	terminal() bool
}

// Record is one entry of a status history.
type Record[S Status] struct {
	Status    S         `json:"status"`
	SubCode   string    `json:"subCode,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// History is an append-only status log kept sorted by CreatedAt. Once a
// terminal status is recorded further appends are ignored.
type History[S Status] struct {
	mu      sync.RWMutex
	records []Record[S]
	closed  bool
	now     func() time.Time
}

// NewHistory returns an empty history. A nil clock defaults to time.Now.
func NewHistory[S Status](now func() time.Time) *History[S] {
	if now == nil {
		now = time.Now
	}
	return &History[S]{now: now}
}

// Append records a status and reports whether it was applied.
func (h *History[S]) Append(status S, subCode, message string) (Record[S], bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.appendLocked(status, subCode, message)
}

// AppendOnce appends status only if it has never been recorded.
func (h *History[S]) AppendOnce(status S, subCode, message string) (Record[S], bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.Status == status {
			return r, false
		}
	}
	return h.appendLocked(status, subCode, message)
}

func (h *History[S]) appendLocked(status S, subCode, message string) (Record[S], bool) {
	rec := Record[S]{Status: status, SubCode: subCode, Message: message, CreatedAt: h.now().UTC()}
	if h.closed {
		return rec, false
	}
	h.closed = status.terminal()
	h.records = append(h.records, rec)
	sort.SliceStable(h.records, func(i, j int) bool {
		return h.records[i].CreatedAt.Before(h.records[j].CreatedAt)
	})
	return rec, true
}

// Has reports whether status was ever recorded.
func (h *History[S]) Has(status S) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.records {
		if r.Status == status {
			return true
		}
	}
	return false
}

// Terminal reports whether a terminal status has been recorded.
func (h *History[S]) Terminal() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// Current returns the most recent status and false when the history is empty.
func (h *History[S]) Current() (S, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.records) == 0 {
		var zero S
		return zero, false
	}
	return h.records[len(h.records)-1].Status, true
}

// Records returns a copy of the history.
func (h *History[S]) Records() []Record[S] {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Record[S], len(h.records))
	copy(out, h.records)
	return out
}

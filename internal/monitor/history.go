package monitor

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lostnav/internal/lost"
)

// DefaultHistorySize is the number of results kept when no size is given.
const DefaultHistorySize = 600

// HistoryEntry is the per-result summary kept in the ring buffer.
type HistoryEntry struct {
	ID           string    `json:"id"`
	ScanStamp    time.Time `json:"scan_stamp"`
	ComputedAt   time.Time `json:"computed_at"`
	OccupiedHits int       `json:"occupied_hits"`
	Total        int       `json:"total"`
	LostRate     float64   `json:"lost_rate"`
}

// History is a fixed-size ring of recent results. It is a result sink.
type History struct {
	mu      sync.RWMutex
	entries []HistoryEntry
	next    int
	full    bool
	latest  *lost.Result
}

// NewHistory returns a ring holding the last size results.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{entries: make([]HistoryEntry, size)}
}

// Publish records r. Results without a defined rate are ignored.
func (h *History) Publish(_ context.Context, r *lost.Result) error {
	if !r.Computable() {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.next] = HistoryEntry{
		ID:           r.ID,
		ScanStamp:    r.ScanStamp,
		ComputedAt:   r.ComputedAt,
		OccupiedHits: r.OccupiedHits,
		Total:        r.Total,
		LostRate:     r.LostRate,
	}
	h.next++
	if h.next == len(h.entries) {
		h.next = 0
		h.full = true
	}
	h.latest = r
	return nil
}

// Latest returns the most recent result, including its points.
func (h *History) Latest() *lost.Result {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.entries)
	}
	return h.next
}

// Entries returns the stored entries, oldest first.
func (h *History) Entries() []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.full {
		return append([]HistoryEntry(nil), h.entries[:h.next]...)
	}
	out := make([]HistoryEntry, 0, len(h.entries))
	out = append(out, h.entries[h.next:]...)
	return append(out, h.entries[:h.next]...)
}

// HistorySummary describes the lost rate over the stored window.
type HistorySummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summary computes window statistics. All fields are zero when empty.
func (h *History) Summary() HistorySummary {
	entries := h.Entries()
	if len(entries) == 0 {
		return HistorySummary{}
	}
	rates := make([]float64, len(entries))
	for i, e := range entries {
		rates[i] = e.LostRate
	}
	s := HistorySummary{
		Count: len(rates),
		Min:   floats.Min(rates),
		Max:   floats.Max(rates),
	}
	if len(rates) == 1 {
		s.Mean = rates[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(rates, nil)
	return s
}

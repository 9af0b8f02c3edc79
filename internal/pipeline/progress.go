package pipeline

import (
	"sync"

	"github.com/maltedev/crosslist/internal/models"
)

// BulkProgress tracks a batch of conversions. Safe for concurrent reads
// while a worker appends results.
type BulkProgress struct {
	mu        sync.Mutex
	total     int
	completed int
	failed    int
	results   []*ConversionResult
}

// ProgressSnapshot is a point-in-time copy of batch counters.
type ProgressSnapshot struct {
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Pending     int     `json:"pending"`
	ProgressPct float64 `json:"progress_pct"`
	Done        bool    `json:"done"`
}

func NewBulkProgress(total int) *BulkProgress {
	return &BulkProgress{total: total, results: make([]*ConversionResult, 0, total)}
}

func (b *BulkProgress) add(res *ConversionResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = append(b.results, res)
	if res.Status == models.StatusCompleted {
		b.completed++
	} else {
		b.failed++
	}
}

// Snapshot returns the current counters. An empty batch reports done with
// 100% progress.
func (b *BulkProgress) Snapshot() ProgressSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	pct := 100.0
	if b.total > 0 {
		pct = float64(b.completed+b.failed) / float64(b.total) * 100
	}
	return ProgressSnapshot{
		Total:       b.total,
		Completed:   b.completed,
		Failed:      b.failed,
		Pending:     b.total - b.completed - b.failed,
		ProgressPct: pct,
		Done:        b.completed+b.failed >= b.total,
	}
}

// IsDone reports whether every URL in the batch has resolved.
func (b *BulkProgress) IsDone() bool {
	return b.Snapshot().Done
}

// Results returns a copy of the resolved results so far.
func (b *BulkProgress) Results() []*ConversionResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*ConversionResult, len(b.results))
	copy(out, b.results)
	return out
}

package queue

import (
	"sync"
	"time"
)

// PrinterStats is a snapshot of one printer's rolling counters, kept only for
// observability and never persisted
type PrinterStats struct {
	PrinterID    string  `json:"printerId"`
	Jobs         int     `json:"jobs"`
	Completed    int     `json:"completed"`
	Failed       int     `json:"failed"`
	SuccessRate  float64 `json:"successRate"`
	AvgLatencyMs int64   `json:"avgLatencyMs"`
}

type counters struct {
	jobs         int
	completed    int
	failed       int
	totalLatency time.Duration
}

// StatsBook accumulates per-printer outcome counters
type StatsBook struct {
	mu   sync.Mutex
	data map[string]*counters
}

// NewStatsBook creates an empty stats book
func NewStatsBook() *StatsBook {
	return &StatsBook{data: make(map[string]*counters)}
}

// Record adds one job outcome for a printer
func (b *StatsBook) Record(printerID string, success bool, latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, exists := b.data[printerID]
	if !exists {
		c = &counters{}
		b.data[printerID] = c
	}

	c.jobs++
	if success {
		c.completed++
		c.totalLatency += latency
	} else {
		c.failed++
	}
}

// Snapshot returns the current counters for every printer
func (b *StatsBook) Snapshot() []PrinterStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]PrinterStats, 0, len(b.data))
	for id, c := range b.data {
		stats := PrinterStats{
			PrinterID: id,
			Jobs:      c.jobs,
			Completed: c.completed,
			Failed:    c.failed,
		}
		if c.jobs > 0 {
			stats.SuccessRate = float64(c.completed) / float64(c.jobs)
		}
		if c.completed > 0 {
			stats.AvgLatencyMs = (c.totalLatency / time.Duration(c.completed)).Milliseconds()
		}
		result = append(result, stats)
	}
	return result
}

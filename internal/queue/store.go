package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prepdeck/label-engine/internal/fault"
)

// SchemaVersion tags the persisted envelope. A mismatch on load discards the
// whole envelope rather than attempting a silent migration.
const SchemaVersion = "1.0"

// RetentionWindow is how long an undispatched item may sit in the queue
// before load-time pruning drops it
const RetentionWindow = 7 * 24 * time.Hour

// Envelope is the persisted queue container
type Envelope struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"lastUpdated"`
	Items       []*Item   `json:"items"`
}

// LoadReport describes what happened during a load
type LoadReport struct {
	Loaded int   // items restored
	Pruned int   // items dropped by the retention window
	Reset  bool  // envelope was discarded (missing, malformed, or wrong version)
	Err    error // recoverable load error, nil on a clean load
}

// Store is the durable print job queue. Every mutating call persists
// synchronously, so a crash or reload never loses more than the in-flight
// mutation. Persistence failures switch the store to a degraded in-memory
// mode instead of blocking printing.
type Store struct {
	filePath string
	mu       sync.Mutex
	items    []*Item
	degraded bool

	now   func() time.Time
	write func(path string, data []byte, perm os.FileMode) error
}

// NewStore creates a queue store backed by the given file
func NewStore(filePath string) *Store {
	return &Store{
		filePath: filePath,
		items:    make([]*Item, 0),
		now:      time.Now,
		write:    os.WriteFile,
	}
}

// Load reads the persisted envelope. A version mismatch or malformed file
// resets to an empty queue and reports a recoverable error; independently,
// items older than the retention window are pruned.
func (s *Store) Load() *LoadReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &LoadReport{}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.items = make([]*Item, 0)
			return report
		}
		s.items = make([]*Item, 0)
		report.Reset = true
		report.Err = fault.Persistencef(err, "queue storage unreadable")
		return report
	}

	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.items = make([]*Item, 0)
		report.Reset = true
		report.Err = fault.Persistencef(err, "queue storage corrupt")
		return report
	}

	if envelope.Version != SchemaVersion {
		s.items = make([]*Item, 0)
		report.Reset = true
		report.Err = fault.Persistencef(nil, "queue schema version %q does not match %q, discarding", envelope.Version, SchemaVersion)
		return report
	}

	cutoff := s.now().Add(-RetentionWindow)
	kept := make([]*Item, 0, len(envelope.Items))
	for _, item := range envelope.Items {
		if item.AddedAt.Before(cutoff) {
			report.Pruned++
			continue
		}
		kept = append(kept, item)
	}
	s.items = kept
	report.Loaded = len(kept)

	if report.Pruned > 0 {
		// A failed rewrite leaves the store degraded; the report must say so
		if err := s.persistLocked(); err != nil {
			report.Err = err
		}
	}

	return report
}

// Enqueue appends a job, assigning an id if absent, and persists. The item is
// queued even when persistence fails; the returned error then reports the
// degraded mode.
func (s *Store) Enqueue(item *Item) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	item.Status = StatusPending
	item.AddedAt = s.now()
	if item.LabelData != nil {
		if item.ProductName == "" {
			item.ProductName = item.LabelData.ProductName
		}
		if item.CategoryName == "" {
			item.CategoryName = item.LabelData.CategoryName
		}
	}

	stored := item.clone()
	s.items = append(s.items, stored)

	err := s.persistLocked()
	return stored.clone(), err
}

// Dequeue removes one item and persists
func (s *Store) Dequeue(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return s.persistLocked()
		}
	}
	return fmt.Errorf("job not found: %s", id)
}

// Clear removes every item and persists
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make([]*Item, 0)
	return s.persistLocked()
}

// List returns copies of all items in insertion order
func (s *Store) List() []*Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*Item, 0, len(s.items))
	for _, item := range s.items {
		result = append(result, item.clone())
	}
	return result
}

// Get returns a copy of one item, or nil
func (s *Store) Get(id string) *Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.find(id); item != nil {
		return item.clone()
	}
	return nil
}

// NextPending returns a copy of the next dispatchable item: highest priority
// first, insertion order within a priority
func (s *Store) NextPending() *Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Item
	for _, item := range s.items {
		if item.Status != StatusPending {
			continue
		}
		if best == nil || item.Priority > best.Priority {
			best = item
		}
	}
	if best == nil {
		return nil
	}
	return best.clone()
}

// MarkPrinting transitions a job to printing
func (s *Store) MarkPrinting(id string) error {
	return s.transition(id, StatusPrinting, "")
}

// MarkCompleted transitions a job to completed
func (s *Store) MarkCompleted(id string) error {
	return s.transition(id, StatusCompleted, "")
}

// MarkFailed transitions a job to failed with a reason, bumping the attempt
// count. The job stays in the queue for manual resubmission.
func (s *Store) MarkFailed(id string, reason string) error {
	return s.transition(id, StatusFailed, reason)
}

// ErrJobInFlight is returned when cancelling a job that is already
// transmitting; a partially sent byte stream cannot be safely unwound
var ErrJobInFlight = fmt.Errorf("job is transmitting; cancellation downgraded to channel abort")

// Cancel removes a pending job. An in-flight job cannot be cancelled: the
// caller gets ErrJobInFlight and may abort the channel best-effort.
func (s *Store) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.find(id)
	if item == nil {
		return fmt.Errorf("job not found: %s", id)
	}

	switch item.Status {
	case StatusPending:
		for i, it := range s.items {
			if it.ID == id {
				s.items = append(s.items[:i], s.items[i+1:]...)
				break
			}
		}
		return s.persistLocked()
	case StatusPrinting:
		return ErrJobInFlight
	default:
		return fmt.Errorf("job %s is already %s", id, item.Status)
	}
}

// Degraded reports whether the store is running without working persistence
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *Store) transition(id string, next Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.find(id)
	if item == nil {
		return fmt.Errorf("job not found: %s", id)
	}

	if !item.Status.CanTransition(next) {
		return fmt.Errorf("job %s: illegal transition %s -> %s", id, item.Status, next)
	}

	now := s.now()
	item.Status = next
	switch next {
	case StatusPrinting:
		item.StartedAt = &now
		item.Attempts++
	case StatusCompleted, StatusFailed:
		item.CompletedAt = &now
	}
	if reason != "" {
		item.Error = reason
	}

	return s.persistLocked()
}

func (s *Store) find(id string) *Item {
	for _, item := range s.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// persistLocked writes the envelope synchronously. Failures flip the store
// into degraded mode and are reported, never thrown: printing continues
// without persistence for the session. Caller holds s.mu.
func (s *Store) persistLocked() error {
	envelope := Envelope{
		Version:     SchemaVersion,
		LastUpdated: s.now(),
		Items:       s.items,
	}

	data, err := json.MarshalIndent(&envelope, "", "  ")
	if err != nil {
		s.degraded = true
		return fault.Persistencef(err, "failed to encode queue")
	}

	if err := s.write(s.filePath, data, 0644); err != nil {
		s.degraded = true
		return fault.Persistencef(err, "failed to write queue; continuing in-memory")
	}

	s.degraded = false
	return nil
}

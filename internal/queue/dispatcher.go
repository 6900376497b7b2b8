package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prepdeck/label-engine/internal/driver"
	"github.com/prepdeck/label-engine/internal/fault"
)

// printTimeout bounds one transmission, connection attempts included
const printTimeout = 30 * time.Second

// Event is a job lifecycle notification for observers (WebSocket feed, TUI)
type Event struct {
	Type    string          `json:"type"` // started, completed, failed, cancelled
	Item    *Item           `json:"item"`
	Outcome *driver.Outcome `json:"outcome,omitempty"`
}

// Resolver looks up the driver for a configured printer
type Resolver interface {
	DriverFor(printerID string) (driver.Driver, error)
}

// Dispatcher drains the queue store, sending jobs through their drivers.
// Jobs go out in priority-then-insertion order; failed jobs stay visible for
// manual resubmission, never retried automatically.
type Dispatcher struct {
	store    *Store
	resolver Resolver
	stats    *StatsBook
	interval time.Duration
	onEvent  func(Event)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher; call Start to begin draining
func NewDispatcher(store *Store, resolver Resolver, stats *StatsBook) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:    store,
		resolver: resolver,
		stats:    stats,
		interval: 250 * time.Millisecond,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnEvent registers a lifecycle observer. Must be called before Start.
func (d *Dispatcher) OnEvent(fn func(Event)) {
	d.onEvent = fn
}

// Start launches the worker
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.worker()
}

// Stop halts the worker and waits for an in-flight job to settle
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processNext()
		}
	}
}

// DispatchOne sends the next pending job immediately, returning false when
// the queue has no pending work. Used by tests and the drain endpoint.
func (d *Dispatcher) DispatchOne() bool {
	return d.processNext()
}

func (d *Dispatcher) processNext() bool {
	item := d.store.NextPending()
	if item == nil {
		return false
	}

	if err := d.store.MarkPrinting(item.ID); err != nil {
		// Lost a race with a cancel; nothing to do
		return false
	}
	item.Status = StatusPrinting
	d.emit(Event{Type: "started", Item: item})

	drv, err := d.resolver.DriverFor(item.PrinterID)
	if err != nil {
		d.fail(item, nil, err)
		return true
	}

	ctx, cancel := context.WithTimeout(d.ctx, printTimeout)
	defer cancel()

	outcome, err := drv.Print(ctx, driver.Request{
		Label:   item.LabelData,
		Payload: item.Payload,
		Copies:  item.Quantity,
	})
	if err != nil {
		d.fail(item, outcome, err)
		return true
	}

	if err := d.store.MarkCompleted(item.ID); err != nil {
		log.Printf("warning: job %s finished but could not be marked: %v", item.ID, err)
	}
	// Dispatch success removes the item from the durable queue
	if err := d.store.Dequeue(item.ID); err != nil {
		log.Printf("warning: failed to dequeue completed job %s: %v", item.ID, err)
	}

	d.stats.Record(item.PrinterID, true, outcome.Latency)
	item.Status = StatusCompleted
	d.emit(Event{Type: "completed", Item: item, Outcome: outcome})
	return true
}

func (d *Dispatcher) fail(item *Item, outcome *driver.Outcome, err error) {
	if markErr := d.store.MarkFailed(item.ID, err.Error()); markErr != nil {
		log.Printf("warning: could not mark job %s failed: %v", item.ID, markErr)
	}

	var latency time.Duration
	if outcome != nil {
		latency = outcome.Latency
	}
	d.stats.Record(item.PrinterID, false, latency)

	item.Status = StatusFailed
	item.Error = err.Error()
	d.emit(Event{Type: "failed", Item: item, Outcome: outcome})

	log.Printf("print job %s failed (%s): %v", item.ID, fault.KindOf(err), err)
}

// Cancel cancels a pending job. For a job already transmitting the cancel is
// downgraded to a best-effort channel abort, which may still leave a partial
// label.
func (d *Dispatcher) Cancel(id string) error {
	item := d.store.Get(id)
	if item == nil {
		return fault.Validationf("job not found: %s", id)
	}

	err := d.store.Cancel(id)
	if err == ErrJobInFlight {
		if drv, derr := d.resolver.DriverFor(item.PrinterID); derr == nil {
			drv.Abort()
		}
		return err
	}
	if err == nil {
		item.Status = StatusCancelled
		d.emit(Event{Type: "cancelled", Item: item})
	}
	return err
}

// Resubmit creates a new pending job over the same payload as a failed one.
// The original keeps its terminal state and id.
func (d *Dispatcher) Resubmit(id string) (*Item, error) {
	original := d.store.Get(id)
	if original == nil {
		return nil, fault.Validationf("job not found: %s", id)
	}
	if original.Status != StatusFailed {
		return nil, fault.Validationf("job %s is %s, only failed jobs can be resubmitted", id, original.Status)
	}

	fresh := &Item{
		SourceLabelID: original.SourceLabelID,
		PrinterID:     original.PrinterID,
		LabelData:     original.LabelData,
		Payload:       original.Payload,
		Quantity:      original.Quantity,
		Priority:      original.Priority,
		ProductName:   original.ProductName,
		CategoryName:  original.CategoryName,
	}

	queued, err := d.store.Enqueue(fresh)
	if err != nil {
		log.Printf("warning: resubmitted job queued without persistence: %v", err)
	}

	// Drop the failed original now that a fresh copy supersedes it
	if err := d.store.Dequeue(id); err != nil {
		log.Printf("warning: could not remove superseded job %s: %v", id, err)
	}

	return queued, nil
}

func (d *Dispatcher) emit(ev Event) {
	if d.onEvent != nil {
		d.onEvent(ev)
	}
}

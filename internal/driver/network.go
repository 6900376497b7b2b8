package driver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/prepdeck/label-engine/internal/config"
	"github.com/prepdeck/label-engine/internal/connection"
	"github.com/prepdeck/label-engine/internal/fault"
)

// channelTTL bounds how long an idle channel is reused before the next print
// re-establishes it. Embedded print servers drop idle sockets silently.
const channelTTL = 30 * time.Second

// NetworkDriver sends command streams to a networked thermal printer. Channel
// acquisition is delegated to the connection manager; a successfully opened
// channel is cached briefly for back-to-back jobs.
type NetworkDriver struct {
	cfg     config.PrinterConfig
	manager *connection.Manager

	// mu serializes transmissions. The channel handle lives behind its own
	// lock so Abort can close the socket while a Write is still blocked.
	mu sync.Mutex

	chanMu   sync.Mutex
	conn     net.Conn
	result   *connection.Result
	openedAt time.Time
}

// NewNetworkDriver creates a driver for one network printer
func NewNetworkDriver(cfg config.PrinterConfig, manager *connection.Manager) *NetworkDriver {
	return &NetworkDriver{
		cfg:     cfg,
		manager: manager,
	}
}

// Print transmits one label. The mutex serializes transmissions: only one
// in-flight byte stream per printer.
func (d *NetworkDriver) Print(ctx context.Context, req Request) (*Outcome, error) {
	payload, err := payloadFor(req)
	if err != nil {
		return &Outcome{Error: err.Error()}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()

	conn, result, err := d.ensureChannel(ctx)
	if err != nil {
		outcome := &Outcome{Latency: time.Since(start), Error: err.Error()}
		if result != nil {
			outcome.Method = result.Method
			outcome.Port = result.Port
		}
		return outcome, err
	}

	copies := copiesOr1(req.Copies)
	for i := 0; i < copies; i++ {
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetWriteDeadline(deadline)
		}
		if _, err := conn.Write(payload); err != nil {
			d.dropChannel()
			latency := time.Since(start)
			ferr := fault.Connectivityf(result.Method, result.Port, latency, err, "write to %s failed", d.cfg.Host)
			return &Outcome{
				Method:  result.Method,
				Port:    result.Port,
				Latency: latency,
				Error:   ferr.Error(),
			}, ferr
		}
	}

	return &Outcome{
		Success: true,
		Method:  result.Method,
		Port:    result.Port,
		Latency: time.Since(start),
	}, nil
}

// PrintBatch attempts every label and reports per-item outcomes
func (d *NetworkDriver) PrintBatch(ctx context.Context, reqs []Request) *BatchOutcome {
	return printEach(ctx, d, reqs)
}

// Abort tears down the cached channel, interrupting a transmission that is
// still blocked in Write. A partially transmitted stream cannot be unwound,
// so this may still produce a partial physical label.
func (d *NetworkDriver) Abort() error {
	return d.dropChannel()
}

// Close releases the cached channel
func (d *NetworkDriver) Close() error {
	return d.dropChannel()
}

// ensureChannel returns the cached channel if still fresh, otherwise asks the
// connection manager for a new one. Caller holds d.mu.
func (d *NetworkDriver) ensureChannel(ctx context.Context) (net.Conn, *connection.Result, error) {
	d.chanMu.Lock()
	if d.conn != nil && time.Since(d.openedAt) < channelTTL {
		conn, result := d.conn, d.result
		d.chanMu.Unlock()
		return conn, result, nil
	}
	d.chanMu.Unlock()
	d.dropChannel()

	conn, result, err := d.manager.Connect(ctx, d.cfg.Host)
	if err != nil {
		return nil, result, err
	}

	d.chanMu.Lock()
	d.conn = conn
	d.result = result
	d.openedAt = time.Now()
	d.chanMu.Unlock()
	return conn, result, nil
}

func (d *NetworkDriver) dropChannel() error {
	d.chanMu.Lock()
	defer d.chanMu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	d.result = nil
	return err
}

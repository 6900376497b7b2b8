package driver

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/prepdeck/label-engine/internal/config"
	"github.com/prepdeck/label-engine/internal/connection"
	"github.com/prepdeck/label-engine/internal/fault"
	"github.com/tarm/serial"
)

const bluetoothBaud = 9600

// PortOpener opens the serial channel bound to a Bluetooth device. Injected
// so tests can substitute a mock transport.
type PortOpener func(device string, baud int) (io.WriteCloser, error)

func openSerialPort(device string, baud int) (io.WriteCloser, error) {
	return serial.OpenPort(&serial.Config{Name: device, Baud: baud})
}

// BluetoothDriver sends command streams to a paired Bluetooth SPP printer.
// Discovery scores candidates by signal strength unless the configuration
// pins a device address.
type BluetoothDriver struct {
	cfg     config.PrinterConfig
	scanner connection.BluetoothScanner
	open    PortOpener

	// mu serializes transmissions; the port handle has its own lock so
	// Abort can close the channel while a Write is still blocked
	mu sync.Mutex

	portMu sync.Mutex
	port   io.WriteCloser
}

// NewBluetoothDriver creates a driver for one Bluetooth printer
func NewBluetoothDriver(cfg config.PrinterConfig, scanner connection.BluetoothScanner) *BluetoothDriver {
	return &BluetoothDriver{
		cfg:     cfg,
		scanner: scanner,
		open:    openSerialPort,
	}
}

// Print transmits one label over the paired device's serial channel
func (d *BluetoothDriver) Print(ctx context.Context, req Request) (*Outcome, error) {
	payload, err := payloadFor(req)
	if err != nil {
		return &Outcome{Error: err.Error()}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()

	port, err := d.ensurePort()
	if err != nil {
		return &Outcome{Method: "bluetooth", Latency: time.Since(start), Error: err.Error()}, err
	}

	copies := copiesOr1(req.Copies)
	for i := 0; i < copies; i++ {
		if ctx.Err() != nil {
			d.dropPort()
			ferr := fault.Connectivityf("bluetooth", 0, time.Since(start), ctx.Err(), "print cancelled")
			return &Outcome{Method: "bluetooth", Latency: time.Since(start), Error: ferr.Error()}, ferr
		}
		if _, err := port.Write(payload); err != nil {
			d.dropPort()
			latency := time.Since(start)
			ferr := fault.Connectivityf("bluetooth", 0, latency, err, "write to %s failed", d.cfg.DeviceAddress)
			return &Outcome{Method: "bluetooth", Latency: latency, Error: ferr.Error()}, ferr
		}
	}

	return &Outcome{
		Success: true,
		Method:  "bluetooth",
		Latency: time.Since(start),
	}, nil
}

// PrintBatch attempts every label and reports per-item outcomes
func (d *BluetoothDriver) PrintBatch(ctx context.Context, reqs []Request) *BatchOutcome {
	return printEach(ctx, d, reqs)
}

// Abort closes the serial channel mid-stream, best effort
func (d *BluetoothDriver) Abort() error {
	return d.dropPort()
}

// Close releases the serial channel
func (d *BluetoothDriver) Close() error {
	return d.dropPort()
}

// ensurePort opens the channel to the configured device, discovering the
// target by signal strength when no address is pinned. Caller holds d.mu.
func (d *BluetoothDriver) ensurePort() (io.WriteCloser, error) {
	d.portMu.Lock()
	if d.port != nil {
		port := d.port
		d.portMu.Unlock()
		return port, nil
	}
	d.portMu.Unlock()

	devices, err := d.scanner.Scan()
	if err != nil {
		return nil, fault.Connectivityf("bluetooth", 0, 0, err, "device scan failed")
	}

	target, err := connection.PickDevice(devices, d.cfg.DeviceAddress)
	if err != nil {
		return nil, err
	}

	port, err := d.open(target.Device, bluetoothBaud)
	if err != nil {
		return nil, fault.Connectivityf("bluetooth", 0, 0, err, "failed to open %s", target.Device)
	}

	d.portMu.Lock()
	d.port = port
	d.portMu.Unlock()
	return port, nil
}

func (d *BluetoothDriver) dropPort() error {
	d.portMu.Lock()
	defer d.portMu.Unlock()
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}

// Package connection establishes and probes channels to label printers
package connection

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/prepdeck/label-engine/internal/fault"
)

// Candidate access methods for network thermal printers, tried strictly in
// this order. The raw job-submission port is primary; 6101 is the Link-OS
// channel available on newer firmware; 9200 is the setup-utility port.
const (
	PortRaw    = 9100
	PortLinkOS = 6101
	PortSetup  = 9200
)

// DefaultAttemptTimeout bounds one connection attempt. Must stay within the
// 3-10s window so a single unreachable printer cannot stall the queue.
const DefaultAttemptTimeout = 5 * time.Second

// Dialer opens a TCP channel to addr. Injected so tests can substitute a mock
// transport.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// Result describes the outcome of a connection or probe attempt
type Result struct {
	Online  bool          `json:"online"`
	Host    string        `json:"host"`
	Port    int           `json:"port,omitempty"`
	Method  string        `json:"method,omitempty"`
	Latency time.Duration `json:"latencyMs,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type candidate struct {
	port   int
	method string
}

// Manager finds a working access method to a device. It holds no per-device
// state; every call stands alone.
type Manager struct {
	dialer     Dialer
	timeout    time.Duration
	candidates []candidate
}

// Option configures a Manager
type Option func(*Manager)

// WithDialer substitutes the transport used for connection attempts
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithAttemptTimeout bounds each individual connection attempt
func WithAttemptTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithPorts overrides the candidate port order
func WithPorts(ports ...int) Option {
	return func(m *Manager) {
		m.candidates = make([]candidate, 0, len(ports))
		for _, p := range ports {
			m.candidates = append(m.candidates, candidate{port: p, method: methodForPort(p)})
		}
	}
}

// NewManager creates a connection manager with the default candidate order
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		timeout: DefaultAttemptTimeout,
		candidates: []candidate{
			{port: PortRaw, method: "raw"},
			{port: PortLinkOS, method: "linkos"},
			{port: PortSetup, method: "setup"},
		},
	}
	m.dialer = func(ctx context.Context, addr string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AttemptTimeout is the bound applied to each connection attempt. Callers
// writing on a returned channel use it to bound their writes too.
func (m *Manager) AttemptTimeout() time.Duration {
	return m.timeout
}

// Clone derives a manager that keeps this one's dialer and attempt timeout
// but applies the given options on top, e.g. a per-printer port order
func (m *Manager) Clone(opts ...Option) *Manager {
	c := &Manager{
		dialer:     m.dialer,
		timeout:    m.timeout,
		candidates: append([]candidate(nil), m.candidates...),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect tries each candidate port in priority order until one accepts a
// connection or all are exhausted. Attempts are sequential: embedded print
// servers handle very few simultaneous sockets. The first success
// short-circuits the rest; the Result records its method, port, and measured
// round-trip latency. On total failure the last error is returned and no
// automatic retry occurs.
func (m *Manager) Connect(ctx context.Context, host string) (net.Conn, *Result, error) {
	if host == "" {
		return nil, nil, fault.Configurationf("printer host is empty")
	}

	var lastErr error
	var lastResult *Result

	for _, c := range m.candidates {
		conn, result, err := m.attempt(ctx, host, c)
		if err == nil {
			return conn, result, nil
		}
		lastErr = err
		lastResult = result

		if ctx.Err() != nil {
			break
		}
	}

	if lastResult == nil {
		lastResult = &Result{Host: host}
	}
	return nil, lastResult, lastErr
}

// Probe makes a lightweight reachability check against a single port without
// keeping the channel open
func (m *Manager) Probe(ctx context.Context, host string, port int) *Result {
	conn, result, err := m.attempt(ctx, host, candidate{port: port, method: methodForPort(port)})
	if err != nil {
		return result
	}
	conn.Close()
	return result
}

func (m *Manager) attempt(ctx context.Context, host string, c candidate) (net.Conn, *Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", c.port))
	start := time.Now()

	conn, err := m.dialer(attemptCtx, addr)
	latency := time.Since(start)

	result := &Result{
		Host:    host,
		Port:    c.port,
		Method:  c.method,
		Latency: latency,
	}

	if err != nil {
		result.Error = err.Error()
		return nil, result, fault.Connectivityf(c.method, c.port, latency, err, "printer %s unreachable", host)
	}

	result.Online = true
	return conn, result, nil
}

func methodForPort(port int) string {
	switch port {
	case PortRaw:
		return "raw"
	case PortLinkOS:
		return "linkos"
	case PortSetup:
		return "setup"
	default:
		return "custom"
	}
}

package connection

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prepdeck/label-engine/internal/fault"
)

// recordingDialer counts attempts in order and succeeds only on the addresses
// it is told to accept
type recordingDialer struct {
	attempts []string
	accept   map[string]bool
}

func (d *recordingDialer) dial(ctx context.Context, addr string) (net.Conn, error) {
	d.attempts = append(d.attempts, addr)
	if d.accept[addr] {
		client, server := net.Pipe()
		go func() {
			// Drain so writes on the client side never block
			buf := make([]byte, 1024)
			for {
				if _, err := server.Read(buf); err != nil {
					return
				}
			}
		}()
		return client, nil
	}
	return nil, errors.New("connection refused")
}

func TestConnect_FirstCandidateWins(t *testing.T) {
	d := &recordingDialer{accept: map[string]bool{"10.0.0.5:9100": true}}
	m := NewManager(WithDialer(d.dial))

	conn, result, err := m.Connect(context.Background(), "10.0.0.5")
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer conn.Close()

	if len(d.attempts) != 1 {
		t.Errorf("expected 1 attempt, got %d", len(d.attempts))
	}
	if result.Port != PortRaw || result.Method != "raw" {
		t.Errorf("expected raw:9100, got %s:%d", result.Method, result.Port)
	}
	if !result.Online {
		t.Error("expected result to be online")
	}
}

func TestConnect_FallbackOrderAndShortCircuit(t *testing.T) {
	// Only the third candidate accepts: exactly three attempts, in the fixed
	// priority order.
	d := &recordingDialer{accept: map[string]bool{"10.0.0.5:9200": true}}
	m := NewManager(WithDialer(d.dial))

	conn, result, err := m.Connect(context.Background(), "10.0.0.5")
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer conn.Close()

	want := []string{"10.0.0.5:9100", "10.0.0.5:6101", "10.0.0.5:9200"}
	if len(d.attempts) != len(want) {
		t.Fatalf("expected %d attempts, got %d", len(want), len(d.attempts))
	}
	for i, addr := range want {
		if d.attempts[i] != addr {
			t.Errorf("attempt %d: expected %s, got %s", i, addr, d.attempts[i])
		}
	}
	if result.Method != "setup" {
		t.Errorf("expected setup method, got %s", result.Method)
	}
}

func TestConnect_AllCandidatesFail(t *testing.T) {
	d := &recordingDialer{accept: map[string]bool{}}
	m := NewManager(WithDialer(d.dial))

	conn, result, err := m.Connect(context.Background(), "10.0.0.5")
	if conn != nil {
		t.Fatal("expected no connection")
	}
	if err == nil {
		t.Fatal("expected an error")
	}
	if !fault.IsKind(err, fault.Connectivity) {
		t.Errorf("expected connectivity fault, got %v", err)
	}
	if len(d.attempts) != 3 {
		t.Errorf("expected all 3 candidates attempted, got %d", len(d.attempts))
	}
	// The failure result carries the last candidate tried
	if result.Port != PortSetup {
		t.Errorf("expected last result port %d, got %d", PortSetup, result.Port)
	}
	if result.Online {
		t.Error("expected offline result")
	}
}

func TestConnect_TimeoutBoundsAttempt(t *testing.T) {
	timeout := 50 * time.Millisecond

	hang := func(ctx context.Context, addr string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m := NewManager(WithDialer(hang), WithAttemptTimeout(timeout), WithPorts(PortRaw))

	start := time.Now()
	_, _, err := m.Connect(context.Background(), "10.0.0.5")
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed < timeout {
		t.Errorf("attempt returned before the timeout boundary: %s", elapsed)
	}
	if elapsed > timeout+200*time.Millisecond {
		t.Errorf("attempt overran the timeout boundary: %s", elapsed)
	}
}

func TestConnect_LatencyRecorded(t *testing.T) {
	d := &recordingDialer{accept: map[string]bool{"10.0.0.5:9100": true}}
	m := NewManager(WithDialer(d.dial))

	conn, result, err := m.Connect(context.Background(), "10.0.0.5")
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer conn.Close()

	if result.Latency <= 0 {
		t.Error("expected a positive measured latency")
	}
}

func TestConnect_EmptyHost(t *testing.T) {
	m := NewManager()
	_, _, err := m.Connect(context.Background(), "")
	if !fault.IsKind(err, fault.Configuration) {
		t.Errorf("expected configuration fault for empty host, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	d := &recordingDialer{accept: map[string]bool{"10.0.0.5:9100": true}}
	m := NewManager(WithDialer(d.dial))

	result := m.Probe(context.Background(), "10.0.0.5", PortRaw)
	if !result.Online {
		t.Error("expected probe to report online")
	}

	result = m.Probe(context.Background(), "10.0.0.6", PortRaw)
	if result.Online {
		t.Error("expected probe to report offline")
	}
	if result.Error == "" {
		t.Error("expected probe failure to carry the error")
	}
}

func TestPickDevice(t *testing.T) {
	devices := []BluetoothDevice{
		{Address: "AA:11", RSSI: -80},
		{Address: "BB:22", RSSI: -40},
		{Address: "CC:33", RSSI: -60},
	}

	// Strongest signal wins by default
	picked, err := PickDevice(devices, "")
	if err != nil {
		t.Fatalf("pick failed: %v", err)
	}
	if picked.Address != "BB:22" {
		t.Errorf("expected strongest device BB:22, got %s", picked.Address)
	}

	// A pinned address overrides scoring
	picked, err = PickDevice(devices, "CC:33")
	if err != nil {
		t.Fatalf("pick failed: %v", err)
	}
	if picked.Address != "CC:33" {
		t.Errorf("expected pinned device CC:33, got %s", picked.Address)
	}

	if _, err := PickDevice(devices, "ZZ:99"); err == nil {
		t.Error("expected error for missing pinned device")
	}
	if _, err := PickDevice(nil, ""); err == nil {
		t.Error("expected error for empty scan")
	}
}

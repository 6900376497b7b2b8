package driver

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prepdeck/label-engine/internal/config"
	"github.com/prepdeck/label-engine/internal/connection"
	"github.com/prepdeck/label-engine/internal/fault"
	"github.com/prepdeck/label-engine/pkg/labelformat"
)

func testRegistry(t *testing.T) (*Registry, *config.Store) {
	t.Helper()
	store, err := config.NewStore(filepath.Join(t.TempDir(), "printers.json"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return NewRegistry(store, connection.NewManager(), nil), store
}

func TestCreateDriver_Variants(t *testing.T) {
	reg, _ := testRegistry(t)

	tests := []struct {
		connType config.ConnectionType
		cfg      config.PrinterConfig
	}{
		{config.ConnNetwork, config.PrinterConfig{Name: "N", Host: "10.0.0.5"}},
		{config.ConnBluetooth, config.PrinterConfig{Name: "B", DeviceAddress: "AA:11"}},
		{config.ConnLocalDialog, config.PrinterConfig{Name: "D"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.connType), func(t *testing.T) {
			d, err := reg.CreateDriver(tt.connType, tt.cfg)
			if err != nil {
				t.Fatalf("create failed: %v", err)
			}
			if d == nil {
				t.Fatal("expected a driver")
			}
			d.Close()
		})
	}
}

func TestCreateDriver_UnknownType(t *testing.T) {
	reg, _ := testRegistry(t)

	_, err := reg.CreateDriver("parallel", config.PrinterConfig{Name: "X"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !fault.IsKind(err, fault.Configuration) {
		t.Errorf("expected configuration fault, got %v", err)
	}
}

func TestDriverFor_CachesPerPrinter(t *testing.T) {
	reg, store := testRegistry(t)

	saved, err := store.Save(config.PrinterConfig{
		StationID: "s1",
		Name:      "Prep",
		Type:      config.ConnNetwork,
		Host:      "10.0.0.5",
		Media:     labelformat.DefaultMedia,
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	d1, err := reg.DriverFor(saved.ID)
	if err != nil {
		t.Fatalf("driver lookup failed: %v", err)
	}
	d2, err := reg.DriverFor(saved.ID)
	if err != nil {
		t.Fatalf("driver lookup failed: %v", err)
	}

	// Same instance: concurrent jobs share the serialization mutex
	if d1 != d2 {
		t.Error("expected the cached driver instance on second lookup")
	}

	reg.Invalidate(saved.ID)
	d3, err := reg.DriverFor(saved.ID)
	if err != nil {
		t.Fatalf("driver lookup failed: %v", err)
	}
	if d3 == d1 {
		t.Error("expected a fresh driver after invalidation")
	}
}

func TestDriverFor_UnknownPrinter(t *testing.T) {
	reg, _ := testRegistry(t)

	_, err := reg.DriverFor("missing")
	if !fault.IsKind(err, fault.Configuration) {
		t.Errorf("expected configuration fault, got %v", err)
	}
}

func TestDefaultConfigFor(t *testing.T) {
	cfg, err := DefaultConfigFor(config.ConnNetwork)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != connection.PortRaw {
		t.Errorf("expected default port %d, got %d", connection.PortRaw, cfg.Port)
	}
	if cfg.Media.WidthMM != labelformat.DefaultMedia.WidthMM {
		t.Error("expected default media")
	}

	if _, err := DefaultConfigFor("parallel"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestListAvailableBackends(t *testing.T) {
	backends := ListAvailableBackends()
	if len(backends) != 3 {
		t.Fatalf("expected 3 backends, got %d", len(backends))
	}

	seen := make(map[config.ConnectionType]bool)
	for _, b := range backends {
		if b.Description == "" {
			t.Errorf("backend %s has no description", b.Type)
		}
		seen[b.Type] = true
	}
	for _, want := range []config.ConnectionType{config.ConnNetwork, config.ConnBluetooth, config.ConnLocalDialog} {
		if !seen[want] {
			t.Errorf("missing backend %s", want)
		}
	}
}

func TestCreateDriver_CustomPortKeepsTransportSettings(t *testing.T) {
	store, err := config.NewStore(filepath.Join(t.TempDir(), "printers.json"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	var mu sync.Mutex
	var attempts []string
	dialer := func(ctx context.Context, addr string) (net.Conn, error) {
		mu.Lock()
		attempts = append(attempts, addr)
		mu.Unlock()
		return nil, errors.New("connection refused")
	}
	manager := connection.NewManager(connection.WithDialer(dialer))
	reg := NewRegistry(store, manager, nil)

	d, err := reg.CreateDriver(config.ConnNetwork, config.PrinterConfig{
		Name: "Custom",
		Host: "10.0.0.7",
		Port: 6000,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer d.Close()

	if _, err := d.Print(context.Background(), Request{Payload: []byte("^XA^XZ")}); err == nil {
		t.Fatal("expected connect failure")
	}

	// The custom port leads, the standard fallbacks follow, and every
	// attempt went through the shared manager's dialer
	mu.Lock()
	defer mu.Unlock()
	want := []string{"10.0.0.7:6000", "10.0.0.7:9100", "10.0.0.7:6101", "10.0.0.7:9200"}
	if len(attempts) != len(want) {
		t.Fatalf("expected %d attempts via the shared dialer, got %d: %v", len(want), len(attempts), attempts)
	}
	for i, addr := range want {
		if attempts[i] != addr {
			t.Errorf("attempt %d: expected %s, got %s", i, addr, attempts[i])
		}
	}
}

package driver

import (
	"sync"

	"github.com/prepdeck/label-engine/internal/config"
	"github.com/prepdeck/label-engine/internal/connection"
	"github.com/prepdeck/label-engine/internal/fault"
	"github.com/prepdeck/label-engine/pkg/labelformat"
)

// Backend describes one supported connection type for configuration UIs
type Backend struct {
	Type        config.ConnectionType `json:"type"`
	Description string                `json:"description"`
}

// Registry resolves printer configurations to drivers. Drivers are cached per
// printer id so concurrent jobs against the same printer share one
// serialization mutex.
type Registry struct {
	store   *config.Store
	manager *connection.Manager
	scanner connection.BluetoothScanner

	mu      sync.Mutex
	drivers map[string]Driver
}

// NewRegistry creates a driver registry
func NewRegistry(store *config.Store, manager *connection.Manager, scanner connection.BluetoothScanner) *Registry {
	if scanner == nil {
		scanner = connection.RFCOMMScanner{}
	}
	return &Registry{
		store:   store,
		manager: manager,
		scanner: scanner,
		drivers: make(map[string]Driver),
	}
}

// CreateDriver builds a driver for a connection type. The type is resolved
// once here, never re-inspected per call.
func (r *Registry) CreateDriver(connType config.ConnectionType, cfg config.PrinterConfig) (Driver, error) {
	switch connType {
	case config.ConnNetwork:
		manager := r.manager
		if cfg.Port != 0 && cfg.Port != connection.PortRaw {
			// Honor a customized primary port, keeping the standard fallbacks
			// and the shared manager's transport settings
			manager = r.manager.Clone(
				connection.WithPorts(cfg.Port, connection.PortRaw, connection.PortLinkOS, connection.PortSetup),
			)
		}
		return NewNetworkDriver(cfg, manager), nil
	case config.ConnBluetooth:
		return NewBluetoothDriver(cfg, r.scanner), nil
	case config.ConnLocalDialog:
		return NewDialogDriver(cfg), nil
	default:
		return nil, fault.Configurationf("unsupported connection type: %s", connType)
	}
}

// DriverFor returns the cached driver for a configured printer, creating it
// on first use
func (r *Registry) DriverFor(printerID string) (Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, exists := r.drivers[printerID]; exists {
		return d, nil
	}

	cfg := r.store.Get(printerID)
	if cfg == nil {
		return nil, fault.Configurationf("printer not found: %s", printerID)
	}

	d, err := r.CreateDriver(cfg.Type, *cfg)
	if err != nil {
		return nil, err
	}

	r.drivers[printerID] = d
	return d, nil
}

// Invalidate drops the cached driver for a printer, closing its channel.
// Called after a configuration change.
func (r *Registry) Invalidate(printerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, exists := r.drivers[printerID]; exists {
		d.Close()
		delete(r.drivers, printerID)
	}
}

// CloseAll releases every cached driver
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, d := range r.drivers {
		d.Close()
		delete(r.drivers, id)
	}
}

// DefaultConfigFor returns baseline settings for a connection type, used when
// the user has not customized a printer
func DefaultConfigFor(connType config.ConnectionType) (config.PrinterConfig, error) {
	base := config.PrinterConfig{
		Type:   connType,
		Media:  labelformat.DefaultMedia,
		Status: config.StatusReady,
	}

	switch connType {
	case config.ConnNetwork:
		base.Port = connection.PortRaw
	case config.ConnBluetooth, config.ConnLocalDialog:
		// No transport defaults beyond media
	default:
		return config.PrinterConfig{}, fault.Configurationf("unsupported connection type: %s", connType)
	}

	return base, nil
}

// ListAvailableBackends enumerates supported connection types with
// human-readable descriptions
func ListAvailableBackends() []Backend {
	return []Backend{
		{Type: config.ConnNetwork, Description: "Networked thermal label printer (raw TCP)"},
		{Type: config.ConnBluetooth, Description: "Paired Bluetooth thermal label printer"},
		{Type: config.ConnLocalDialog, Description: "System print dialog / spooler"},
	}
}

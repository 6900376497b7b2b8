// Package config manages persisted printer configurations per station
package config

import (
	"net"
	"strings"
	"time"

	"github.com/prepdeck/label-engine/internal/fault"
	"github.com/prepdeck/label-engine/pkg/labelformat"
)

// ConnectionType identifies the transport a printer is reached over
type ConnectionType string

const (
	ConnNetwork     ConnectionType = "network"
	ConnBluetooth   ConnectionType = "bluetooth"
	ConnLocalDialog ConnectionType = "local-dialog"
)

// Status is the operational status of a printer
type Status string

const (
	StatusReady   Status = "ready"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
	StatusPaused  Status = "paused"
)

// PrinterConfig is the persisted description of one printer
type PrinterConfig struct {
	ID        string         `json:"id"`
	StationID string         `json:"stationId"`
	Name      string         `json:"name"`
	Model     string         `json:"model,omitempty"`
	Serial    string         `json:"serial,omitempty"`
	Type      ConnectionType `json:"connectionType"`

	// Transport address: host+port for network, paired-device address for
	// bluetooth, system queue name for local-dialog.
	Host          string `json:"host,omitempty"`
	Port          int    `json:"port,omitempty"`
	DeviceAddress string `json:"deviceAddress,omitempty"`
	QueueName     string `json:"queueName,omitempty"`

	Media     labelformat.Media `json:"media"`
	Status    Status            `json:"status"`
	IsDefault bool              `json:"isDefault"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Validate checks identity and address fields per connection type
func (c *PrinterConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fault.Configurationf("printer name is required")
	}
	if strings.TrimSpace(c.StationID) == "" {
		return fault.Configurationf("station id is required")
	}

	switch c.Type {
	case ConnNetwork:
		if c.Host == "" {
			return fault.Configurationf("network printer %q requires a host", c.Name)
		}
		if net.ParseIP(c.Host) == nil && !validHostname(c.Host) {
			return fault.Configurationf("network printer %q has invalid host %q", c.Name, c.Host)
		}
		if c.Port < 0 || c.Port > 65535 {
			return fault.Configurationf("network printer %q has invalid port %d", c.Name, c.Port)
		}
	case ConnBluetooth:
		if c.DeviceAddress == "" {
			return fault.Configurationf("bluetooth printer %q requires a paired-device address", c.Name)
		}
	case ConnLocalDialog:
		// Queue name optional: empty means system default destination.
	default:
		return fault.Configurationf("unsupported connection type: %s", c.Type)
	}

	if err := labelformat.ValidateMedia(&c.Media); err != nil {
		return fault.Configurationf("printer %q: %v", c.Name, err)
	}

	return nil
}

func validHostname(h string) bool {
	if len(h) == 0 || len(h) > 253 {
		return false
	}
	for _, label := range strings.Split(h, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		for _, r := range label {
			ok := r == '-' ||
				(r >= 'a' && r <= 'z') ||
				(r >= 'A' && r <= 'Z') ||
				(r >= '0' && r <= '9')
			if !ok {
				return false
			}
		}
	}
	return true
}

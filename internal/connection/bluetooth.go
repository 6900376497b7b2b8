package connection

import (
	"path/filepath"
	"sort"

	"github.com/prepdeck/label-engine/internal/fault"
	"github.com/tarm/serial"
)

// BluetoothDevice is one paired or nearby printer candidate
type BluetoothDevice struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Device  string `json:"device"` // bound serial device path, e.g. /dev/rfcomm0
	RSSI    int    `json:"rssi"`   // signal strength, dBm (0 when unknown)
}

// BluetoothScanner enumerates paired/nearby printer devices
type BluetoothScanner interface {
	Scan() ([]BluetoothDevice, error)
}

// RFCOMMScanner finds Bluetooth SPP printers bound to rfcomm serial devices
type RFCOMMScanner struct{}

// Scan probes each bound rfcomm device by briefly opening its serial port
func (RFCOMMScanner) Scan() ([]BluetoothDevice, error) {
	paths, err := filepath.Glob("/dev/rfcomm*")
	if err != nil {
		return nil, err
	}

	var devices []BluetoothDevice
	for _, path := range paths {
		port, err := serial.OpenPort(&serial.Config{Name: path, Baud: 9600})
		if err != nil {
			continue
		}
		port.Close()

		devices = append(devices, BluetoothDevice{
			Address: filepath.Base(path),
			Device:  path,
		})
	}

	return devices, nil
}

// PickDevice selects the connection target from a scan. A pinned address wins
// outright; otherwise the strongest signal is chosen.
func PickDevice(devices []BluetoothDevice, pinnedAddress string) (*BluetoothDevice, error) {
	if len(devices) == 0 {
		return nil, fault.Connectivityf("bluetooth", 0, 0, nil, "no paired printers found")
	}

	if pinnedAddress != "" {
		for i := range devices {
			if devices[i].Address == pinnedAddress {
				return &devices[i], nil
			}
		}
		return nil, fault.Connectivityf("bluetooth", 0, 0, nil, "pinned device %s not found", pinnedAddress)
	}

	sorted := make([]BluetoothDevice, len(devices))
	copy(sorted, devices)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RSSI > sorted[j].RSSI
	})

	return &sorted[0], nil
}

package connection

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
)

// DiscoveredPrinter is one candidate found by a scan, not yet configured
type DiscoveredPrinter struct {
	Source      string        `json:"source"` // network, usb, bluetooth
	Host        string        `json:"host,omitempty"`
	Port        int           `json:"port,omitempty"`
	Address     string        `json:"address,omitempty"`
	Description string        `json:"description"`
	Latency     time.Duration `json:"latencyMs,omitempty"`
}

const scanWorkers = 50

// probeTimeout is deliberately short: a /24 sweep makes 254 attempts and the
// whole scan should finish within a couple of seconds.
const probeTimeout = 300 * time.Millisecond

// ScanSubnet sweeps the local /24 for devices answering on the raw
// job-submission port, using a bounded worker pool.
func (m *Manager) ScanSubnet(ctx context.Context) ([]DiscoveredPrinter, error) {
	localIP, err := localIPv4()
	if err != nil {
		return nil, err
	}

	parts := strings.Split(localIP, ".")
	subnet := strings.Join(parts[:3], ".")

	ipChan := make(chan string, 254)
	foundChan := make(chan DiscoveredPrinter, 254)
	var wg sync.WaitGroup

	for i := 0; i < scanWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ip := range ipChan {
				if ctx.Err() != nil {
					continue
				}
				start := time.Now()
				conn, err := net.DialTimeout("tcp", net.JoinHostPort(ip, fmt.Sprintf("%d", PortRaw)), probeTimeout)
				if err != nil {
					continue
				}
				conn.Close()
				foundChan <- DiscoveredPrinter{
					Source:      "network",
					Host:        ip,
					Port:        PortRaw,
					Description: fmt.Sprintf("Network: %s:%d", ip, PortRaw),
					Latency:     time.Since(start),
				}
			}
		}()
	}

	for i := 1; i <= 254; i++ {
		ipChan <- fmt.Sprintf("%s.%d", subnet, i)
	}
	close(ipChan)

	go func() {
		wg.Wait()
		close(foundChan)
	}()

	var found []DiscoveredPrinter
	for p := range foundChan {
		found = append(found, p)
	}
	return found, ctx.Err()
}

// ScanUSB enumerates printer-class USB devices. Kitchens often receive label
// printers USB-attached before anyone puts them on the network, so surfacing
// them helps configuration even though USB is not a supported transport.
func ScanUSB() ([]DiscoveredPrinter, error) {
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	var printers []DiscoveredPrinter

	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}

	for _, dev := range devices {
		desc := dev.Desc

		if !isPrinterClass(desc) {
			dev.Close()
			continue
		}

		manufacturer, _ := dev.Manufacturer()
		product, _ := dev.Product()

		description := fmt.Sprintf("USB: %04X:%04X", desc.Vendor, desc.Product)
		if manufacturer != "" || product != "" {
			description = fmt.Sprintf("USB: %s %s (%04X:%04X)",
				manufacturer, product, desc.Vendor, desc.Product)
		}

		printers = append(printers, DiscoveredPrinter{
			Source:      "usb",
			Address:     fmt.Sprintf("%04X:%04X", desc.Vendor, desc.Product),
			Description: description,
		})
		dev.Close()
	}

	return printers, nil
}

func isPrinterClass(desc *gousb.DeviceDesc) bool {
	if desc.Class == gousb.ClassPrinter {
		return true
	}
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					return true
				}
			}
		}
	}
	return false
}

// ScanBluetooth surfaces paired rfcomm printers as discovery candidates
func ScanBluetooth(scanner BluetoothScanner) ([]DiscoveredPrinter, error) {
	devices, err := scanner.Scan()
	if err != nil {
		return nil, err
	}

	var printers []DiscoveredPrinter
	for _, d := range devices {
		desc := fmt.Sprintf("Bluetooth: %s", d.Address)
		if d.Name != "" {
			desc = fmt.Sprintf("Bluetooth: %s (%s)", d.Name, d.Address)
		}
		printers = append(printers, DiscoveredPrinter{
			Source:      "bluetooth",
			Address:     d.Address,
			Description: desc,
		})
	}
	return printers, nil
}

func localIPv4() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String(), nil
		}
	}
	return "", fmt.Errorf("no local IPv4 address found")
}

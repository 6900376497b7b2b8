package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prepdeck/label-engine/internal/config"
	"github.com/prepdeck/label-engine/internal/connection"
	"github.com/prepdeck/label-engine/internal/driver"
	"github.com/prepdeck/label-engine/internal/queue"
	"github.com/prepdeck/label-engine/internal/relay"
	"github.com/prepdeck/label-engine/internal/tui"
)

// Version is set during build via ldflags
var Version = "dev"

// RelayConfig is the relay's environment configuration
type RelayConfig struct {
	ListenAddr  string        `env:"RELAY_ADDR" envDefault:"0.0.0.0:8137"`
	PrinterHost string        `env:"PRINTER_HOST" envDefault:"192.168.1.100"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	DataDir     string        `env:"DATA_DIR"`
	Headless    bool          `env:"HEADLESS" envDefault:"false"`
}

func main() {
	var cfg RelayConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to parse environment: %v", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	configs, err := config.NewStore(filepath.Join(cfg.DataDir, "printers.json"))
	if err != nil {
		log.Fatalf("Failed to load printer configurations: %v", err)
	}

	q := queue.NewStore(filepath.Join(cfg.DataDir, "queue.json"))
	report := q.Load()
	if report.Err != nil {
		log.Printf("Warning: queue recovered with an empty state: %v", report.Err)
	}
	if report.Pruned > 0 {
		log.Printf("Pruned %d expired job(s) from the queue", report.Pruned)
	}

	// Operator-supplied timeouts are kept within a sane window
	if cfg.DialTimeout < 3*time.Second {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.DialTimeout > 10*time.Second {
		cfg.DialTimeout = 10 * time.Second
	}
	manager := connection.NewManager(connection.WithAttemptTimeout(cfg.DialTimeout))
	registry := driver.NewRegistry(configs, manager, nil)
	defer registry.CloseAll()

	stats := queue.NewStatsBook()
	dispatcher := queue.NewDispatcher(q, registry, stats)

	server := relay.NewServer(cfg.PrinterHost, configs, q, dispatcher, stats, manager, registry)

	dispatcher.Start()
	defer dispatcher.Stop()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Run(cfg.ListenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if cfg.Headless {
		log.Printf("🏷️  Label relay %s listening on %s (printer %s)", Version, cfg.ListenAddr, cfg.PrinterHost)
		select {
		case err := <-serverErrChan:
			log.Fatalf("Server error: %v", err)
		case <-sigChan:
			log.Println("🛑 Shutting down...")
		}
		return
	}

	tuiApp := tui.NewStatusApp(configs, q, stats, cfg.ListenAddr)

	// Mirror log output into the dashboard
	log.SetOutput(io.MultiWriter(os.Stderr, tuiApp.LogWriter()))

	tuiApp.AddLog(fmt.Sprintf("🚀 Relay listening on %s", cfg.ListenAddr), "info")
	tuiApp.AddLog(fmt.Sprintf("🖨️  Direct printer: %s", cfg.PrinterHost), "info")
	if report.Loaded > 0 {
		tuiApp.AddLog(fmt.Sprintf("📋 Restored %d queued job(s)", report.Loaded), "info")
	}
	if q.Degraded() {
		tuiApp.AddLog("⚠️ Queue persistence unavailable, running in-memory", "warning")
	}

	tuiDone := make(chan struct{})
	go func() {
		if err := tuiApp.Run(); err != nil {
			log.Printf("TUI error: %v", err)
		}
		close(tuiDone)
	}()

	select {
	case err := <-serverErrChan:
		log.Fatalf("Server error: %v", err)
	case <-sigChan:
		tuiApp.AddLog("🛑 Shutting down...", "info")
	case <-tuiDone:
	}
}

// defaultDataDir places state under the user config directory, falling back
// to the working directory.
func defaultDataDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", "label-engine")
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

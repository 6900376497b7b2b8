// Package relay exposes the LAN-local HTTP bridge between the browser and the
// label printers.
package relay

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prepdeck/label-engine/internal/config"
	"github.com/prepdeck/label-engine/internal/connection"
	"github.com/prepdeck/label-engine/internal/driver"
	"github.com/prepdeck/label-engine/internal/fault"
	"github.com/prepdeck/label-engine/internal/queue"
	"github.com/prepdeck/label-engine/internal/zpl"
	"github.com/prepdeck/label-engine/pkg/labelformat"
)

// Server is the relay API server
type Server struct {
	router      *gin.Engine
	printerHost string
	configs     *config.Store
	queue       *queue.Store
	dispatcher  *queue.Dispatcher
	stats       *queue.StatsBook
	manager     *connection.Manager
	registry    *driver.Registry
	hub         *Hub
	upgrader    websocket.Upgrader
}

// NewServer creates a new relay server. printerHost is the station's
// directly-addressed printer used by the raw passthrough endpoint.
func NewServer(printerHost string, configs *config.Store, q *queue.Store, d *queue.Dispatcher, stats *queue.StatsBook, manager *connection.Manager, registry *driver.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()
	router.Use(corsMiddleware())

	server := &Server{
		router:      router,
		printerHost: printerHost,
		configs:     configs,
		queue:       q,
		dispatcher:  d,
		stats:       stats,
		manager:     manager,
		registry:    registry,
		hub:         NewHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // LAN-local only, any page may call us
			},
		},
	}

	d.OnEvent(server.hub.BroadcastEvent)
	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	// Raw passthrough
	s.router.POST("/print", s.handlePrint)
	s.router.GET("/printer-status", s.handlePrinterStatus)

	// Queued label jobs
	s.router.POST("/labels", s.handleSubmitLabel)
	s.router.GET("/jobs", s.handleGetJobs)
	s.router.GET("/job/:id", s.handleGetJob)
	s.router.POST("/job/:id/resubmit", s.handleResubmitJob)
	s.router.DELETE("/job/:id", s.handleCancelJob)
	s.router.DELETE("/jobs", s.handleClearJobs)

	// Printer configuration
	s.router.GET("/printers", s.handleGetPrinters)
	s.router.POST("/printers", s.handleSavePrinter)
	s.router.DELETE("/printer/:id", s.handleRemovePrinter)
	s.router.POST("/printer/:id/default", s.handleSetDefaultPrinter)

	// Discovery and observability
	s.router.GET("/discover", s.handleDiscover)
	s.router.GET("/stats", s.handleGetStats)

	// WebSocket
	s.router.GET("/ws", s.handleWebSocket)

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":     "online",
			"printer_ip": s.printerHost,
			"degraded":   s.queue.Degraded(),
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		})
	})
}

// handlePrint pushes raw ZPL straight to the configured printer, bypassing
// the queue. The browser uses this for one-off reprints.
func (s *Server) handlePrint(c *gin.Context) {
	var req struct {
		ZPL    string `json:"zpl"`
		Copies int    `json:"copies"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	// Reject before touching the socket
	if req.ZPL == "" {
		c.JSON(400, gin.H{"error": "zpl is required"})
		return
	}
	if req.Copies <= 0 {
		req.Copies = 1
	}

	conn, result, err := s.manager.Connect(c.Request.Context(), s.printerHost)
	if err != nil {
		c.JSON(502, gin.H{"error": err.Error(), "result": result})
		return
	}
	defer conn.Close()

	// All copies go over the one connection; each write is bounded so a
	// printer that accepts the socket but never drains cannot hang us
	for i := 0; i < req.Copies; i++ {
		conn.SetWriteDeadline(time.Now().Add(s.manager.AttemptTimeout()))
		if _, err := conn.Write([]byte(req.ZPL)); err != nil {
			c.JSON(502, gin.H{"error": fmt.Sprintf("transmission failed on copy %d: %v", i+1, err)})
			return
		}
	}

	c.JSON(200, gin.H{
		"success":    true,
		"copies":     req.Copies,
		"port":       result.Port,
		"method":     result.Method,
		"latency_ms": result.Latency.Milliseconds(),
	})
}

// handlePrinterStatus probes the configured printer without sending data
func (s *Server) handlePrinterStatus(c *gin.Context) {
	result := s.manager.Probe(c.Request.Context(), s.printerHost, connection.PortRaw)

	c.JSON(200, gin.H{
		"online":     result.Online,
		"printer_ip": result.Host,
		"port":       result.Port,
		"latency_ms": result.Latency.Milliseconds(),
		"error":      result.Error,
	})
}

// handleSubmitLabel renders a label and enqueues it for the target printer
func (s *Server) handleSubmitLabel(c *gin.Context) {
	var req struct {
		Label     *labelformat.Label `json:"label"`
		PrinterID string             `json:"printer_id"`
		StationID string             `json:"station_id"`
		Quantity  int                `json:"quantity"`
		Priority  int                `json:"priority"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if req.Label == nil {
		c.JSON(400, gin.H{"error": "label is required"})
		return
	}
	if req.Label.Version == "" {
		req.Label.Version = labelformat.CurrentVersion
	}
	if err := labelformat.Validate(req.Label); err != nil {
		c.JSON(400, gin.H{"error": fmt.Sprintf("invalid label: %v", err)})
		return
	}

	cfg := s.resolvePrinter(req.PrinterID, req.StationID)
	if cfg == nil {
		c.JSON(404, gin.H{"error": "no printer configured for this station"})
		return
	}

	media := cfg.Media
	if media.WidthMM == 0 {
		media = labelformat.DefaultMedia
	}
	payload, err := zpl.Render(req.Label, media)
	if err != nil {
		c.JSON(400, gin.H{"error": fmt.Sprintf("failed to render label: %v", err)})
		return
	}

	job, err := s.queue.Enqueue(&queue.Item{
		PrinterID: cfg.ID,
		LabelData: req.Label,
		Payload:   payload,
		Quantity:  req.Quantity,
		Priority:  req.Priority,
	})
	if err != nil {
		// Queued but not persisted; surface the degradation without failing
		c.JSON(200, gin.H{"success": true, "job_id": job.ID, "degraded": true})
		return
	}

	c.JSON(200, gin.H{"success": true, "job_id": job.ID})
}

func (s *Server) resolvePrinter(printerID, stationID string) *config.PrinterConfig {
	if printerID != "" {
		return s.configs.Get(printerID)
	}
	return s.configs.Default(stationID)
}

// handleGetJobs returns the queue in insertion order
func (s *Server) handleGetJobs(c *gin.Context) {
	c.JSON(200, gin.H{"jobs": s.queue.List(), "degraded": s.queue.Degraded()})
}

// handleGetJob returns a specific print job
func (s *Server) handleGetJob(c *gin.Context) {
	job := s.queue.Get(c.Param("id"))
	if job == nil {
		c.JSON(404, gin.H{"error": "job not found"})
		return
	}
	c.JSON(200, job)
}

// handleResubmitJob clones a failed job as a fresh pending one
func (s *Server) handleResubmitJob(c *gin.Context) {
	job, err := s.dispatcher.Resubmit(c.Param("id"))
	if err != nil {
		c.JSON(statusForFault(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true, "job_id": job.ID})
}

// handleCancelJob cancels a pending job. An in-flight job gets a best-effort
// abort and reports 409 so the browser can tell the difference.
func (s *Server) handleCancelJob(c *gin.Context) {
	err := s.dispatcher.Cancel(c.Param("id"))
	if err == queue.ErrJobInFlight {
		c.JSON(409, gin.H{"error": "job is transmitting, abort requested"})
		return
	}
	if err != nil {
		c.JSON(statusForFault(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true})
}

// handleClearJobs empties the whole queue
func (s *Server) handleClearJobs(c *gin.Context) {
	if err := s.queue.Clear(); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true})
}

// handleGetPrinters lists configured printers, optionally for one station
func (s *Server) handleGetPrinters(c *gin.Context) {
	c.JSON(200, gin.H{
		"printers": s.configs.List(c.Query("station_id")),
		"backends": driver.ListAvailableBackends(),
	})
}

// handleSavePrinter creates or updates a printer configuration
func (s *Server) handleSavePrinter(c *gin.Context) {
	var cfg config.PrinterConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	saved, err := s.configs.Save(cfg)
	if err != nil {
		c.JSON(statusForFault(err), gin.H{"error": err.Error()})
		return
	}

	// Old driver settings no longer apply
	s.registry.Invalidate(saved.ID)

	c.JSON(200, gin.H{"success": true, "printer": saved})
}

// handleRemovePrinter deletes a printer configuration
func (s *Server) handleRemovePrinter(c *gin.Context) {
	id := c.Param("id")
	if err := s.configs.Remove(id); err != nil {
		c.JSON(404, gin.H{"error": err.Error()})
		return
	}
	s.registry.Invalidate(id)
	c.JSON(200, gin.H{"success": true})
}

// handleSetDefaultPrinter marks a printer as its station's default
func (s *Server) handleSetDefaultPrinter(c *gin.Context) {
	if err := s.configs.SetDefault(c.Param("id")); err != nil {
		c.JSON(404, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true})
}

// handleDiscover scans the local network, USB bus and paired bluetooth
// devices for candidate printers
func (s *Server) handleDiscover(c *gin.Context) {
	found := []connection.DiscoveredPrinter{}

	network, err := s.manager.ScanSubnet(c.Request.Context())
	if err == nil {
		found = append(found, network...)
	}
	if usb, err := connection.ScanUSB(); err == nil {
		found = append(found, usb...)
	}
	if bt, err := connection.ScanBluetooth(connection.RFCOMMScanner{}); err == nil {
		found = append(found, bt...)
	}

	c.JSON(200, gin.H{"printers": found})
}

// handleGetStats returns per-printer rolling counters
func (s *Server) handleGetStats(c *gin.Context) {
	c.JSON(200, gin.H{"printers": s.stats.Snapshot()})
}

// Run starts the relay server
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func statusForFault(err error) int {
	switch fault.KindOf(err) {
	case fault.Validation, fault.Configuration:
		return 400
	case fault.Connectivity:
		return 502
	case fault.Persistence:
		return 500
	default:
		return 500
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

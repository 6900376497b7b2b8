package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prepdeck/label-engine/internal/config"
	"github.com/prepdeck/label-engine/internal/connection"
	"github.com/prepdeck/label-engine/internal/driver"
	"github.com/prepdeck/label-engine/internal/queue"
	"github.com/prepdeck/label-engine/pkg/labelformat"
)

// countingDialer accepts every dial, drains writes into a shared buffer and
// counts connection attempts
type countingDialer struct {
	mu       sync.Mutex
	attempts []string
	received bytes.Buffer
	refuse   bool
}

func (d *countingDialer) dial(ctx context.Context, addr string) (net.Conn, error) {
	d.mu.Lock()
	d.attempts = append(d.attempts, addr)
	refuse := d.refuse
	d.mu.Unlock()

	if refuse {
		return nil, &net.OpError{Op: "dial", Err: context.DeadlineExceeded}
	}

	client, server := net.Pipe()
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := server.Read(buf)
			if n > 0 {
				d.mu.Lock()
				d.received.Write(buf[:n])
				d.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return client, nil
}

func (d *countingDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attempts)
}

func (d *countingDialer) payload() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.received.String()
}

func newTestServer(t *testing.T, dialer *countingDialer) (*Server, *config.Store, *queue.Store) {
	t.Helper()

	dir := t.TempDir()
	configs, err := config.NewStore(filepath.Join(dir, "printers.json"))
	if err != nil {
		t.Fatal(err)
	}
	q := queue.NewStore(filepath.Join(dir, "queue.json"))
	stats := queue.NewStatsBook()
	manager := connection.NewManager(connection.WithDialer(dialer.dial))
	registry := driver.NewRegistry(configs, manager, nil)
	dispatcher := queue.NewDispatcher(q, registry, stats)

	return NewServer("10.0.0.50", configs, q, dispatcher, stats, manager, registry), configs, q
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestPrint_CopiesShareOneConnection(t *testing.T) {
	dialer := &countingDialer{}
	srv, _, _ := newTestServer(t, dialer)

	w := doJSON(t, srv, http.MethodPost, "/print", map[string]interface{}{
		"zpl":    "^XA^FDHOLLANDAISE^FS^XZ",
		"copies": 3,
	})

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := dialer.attemptCount(); got != 1 {
		t.Errorf("expected a single connection, got %d attempts", got)
	}
	want := "^XA^FDHOLLANDAISE^FS^XZ^XA^FDHOLLANDAISE^FS^XZ^XA^FDHOLLANDAISE^FS^XZ"
	if dialer.payload() != want {
		t.Errorf("expected 3 repeated copies, got %q", dialer.payload())
	}

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["copies"] != float64(3) || resp["method"] != "raw" {
		t.Errorf("unexpected response: %v", resp)
	}
}

func TestPrint_MissingZPLRejectedBeforeDialing(t *testing.T) {
	dialer := &countingDialer{}
	srv, _, _ := newTestServer(t, dialer)

	w := doJSON(t, srv, http.MethodPost, "/print", map[string]interface{}{"copies": 2})

	if w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if dialer.attemptCount() != 0 {
		t.Error("validation must happen before any connection attempt")
	}
}

func TestPrint_StalledPrinterIsBounded(t *testing.T) {
	// The printer accepts the socket but never drains: without a write
	// deadline the handler would block forever.
	stalled := func(ctx context.Context, addr string) (net.Conn, error) {
		client, _ := net.Pipe()
		return client, nil
	}

	dir := t.TempDir()
	configs, err := config.NewStore(filepath.Join(dir, "printers.json"))
	if err != nil {
		t.Fatal(err)
	}
	q := queue.NewStore(filepath.Join(dir, "queue.json"))
	stats := queue.NewStatsBook()
	manager := connection.NewManager(
		connection.WithDialer(stalled),
		connection.WithAttemptTimeout(100*time.Millisecond),
	)
	registry := driver.NewRegistry(configs, manager, nil)
	dispatcher := queue.NewDispatcher(q, registry, stats)
	srv := NewServer("10.0.0.50", configs, q, dispatcher, stats, manager, registry)

	start := time.Now()
	w := doJSON(t, srv, http.MethodPost, "/print", map[string]interface{}{"zpl": "^XA^XZ"})
	elapsed := time.Since(start)

	if w.Code != 502 {
		t.Fatalf("expected 502 from a stalled printer, got %d: %s", w.Code, w.Body.String())
	}
	if elapsed > 2*time.Second {
		t.Errorf("handler took %v, the write must be deadline-bounded", elapsed)
	}
}

func TestPrint_UnreachablePrinter(t *testing.T) {
	dialer := &countingDialer{refuse: true}
	srv, _, _ := newTestServer(t, dialer)

	w := doJSON(t, srv, http.MethodPost, "/print", map[string]interface{}{"zpl": "^XA^XZ"})

	if w.Code != 502 {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	// All fallback ports were tried before giving up
	if got := dialer.attemptCount(); got != 3 {
		t.Errorf("expected 3 fallback attempts, got %d", got)
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, &countingDialer{})

	w := doJSON(t, srv, http.MethodGet, "/health", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "online" || resp["printer_ip"] != "10.0.0.50" {
		t.Errorf("unexpected health payload: %v", resp)
	}
}

func TestPrinterStatus(t *testing.T) {
	dialer := &countingDialer{}
	srv, _, _ := newTestServer(t, dialer)

	w := doJSON(t, srv, http.MethodGet, "/printer-status", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["online"] != true {
		t.Errorf("expected online, got %v", resp)
	}
	if resp["printer_ip"] != "10.0.0.50" {
		t.Errorf("expected printer_ip key mirroring /health, got %v", resp)
	}
}

func TestSubmitLabel_EnqueuesForDefaultPrinter(t *testing.T) {
	srv, configs, q := newTestServer(t, &countingDialer{})

	if _, err := configs.Save(config.PrinterConfig{
		Name:      "Pass printer",
		StationID: "pass-1",
		Type:      config.ConnNetwork,
		Host:      "10.0.0.60",
		IsDefault: true,
	}); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, srv, http.MethodPost, "/labels", map[string]interface{}{
		"station_id": "pass-1",
		"quantity":   2,
		"label": map[string]interface{}{
			"productName":  "Hollandaise",
			"categoryName": "Sauces",
		},
	})

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	jobs := q.List()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(jobs))
	}
	if jobs[0].Quantity != 2 || jobs[0].ProductName != "Hollandaise" {
		t.Errorf("unexpected job: %+v", jobs[0])
	}
	if len(jobs[0].Payload) == 0 {
		t.Error("expected a rendered payload on the job")
	}
}

func TestSubmitLabel_Validation(t *testing.T) {
	srv, _, q := newTestServer(t, &countingDialer{})

	// No label at all
	w := doJSON(t, srv, http.MethodPost, "/labels", map[string]interface{}{"quantity": 1})
	if w.Code != 400 {
		t.Errorf("expected 400 for missing label, got %d", w.Code)
	}

	// Invalid label content
	w = doJSON(t, srv, http.MethodPost, "/labels", map[string]interface{}{
		"label": map[string]interface{}{"productName": ""},
	})
	if w.Code != 400 {
		t.Errorf("expected 400 for blank product, got %d", w.Code)
	}

	// No printer configured
	w = doJSON(t, srv, http.MethodPost, "/labels", map[string]interface{}{
		"label": map[string]interface{}{"productName": "Hollandaise"},
	})
	if w.Code != 404 {
		t.Errorf("expected 404 without a configured printer, got %d", w.Code)
	}

	if len(q.List()) != 0 {
		t.Error("rejected submissions must not reach the queue")
	}
}

func TestJobEndpoints(t *testing.T) {
	srv, _, q := newTestServer(t, &countingDialer{})

	job, _ := q.Enqueue(&queue.Item{
		PrinterID: "p1",
		LabelData: &labelformat.Label{Version: labelformat.CurrentVersion, ProductName: "Aioli"},
		Payload:   []byte("^XA^XZ"),
		Quantity:  1,
	})

	w := doJSON(t, srv, http.MethodGet, "/job/"+job.ID, nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodGet, "/job/nope", nil)
	if w.Code != 404 {
		t.Errorf("expected 404 for unknown job, got %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodDelete, "/job/"+job.ID, nil)
	if w.Code != 200 {
		t.Fatalf("cancel failed: %d %s", w.Code, w.Body.String())
	}
	if q.Get(job.ID) != nil {
		t.Error("expected cancelled job removed from the queue")
	}
}

func TestPrinterEndpoints(t *testing.T) {
	srv, configs, _ := newTestServer(t, &countingDialer{})

	w := doJSON(t, srv, http.MethodPost, "/printers", map[string]interface{}{
		"name":           "Grill printer",
		"stationId":      "grill-1",
		"connectionType": "network",
		"host":           "10.0.0.61",
	})
	if w.Code != 200 {
		t.Fatalf("save failed: %d %s", w.Code, w.Body.String())
	}

	// Missing host is a configuration error
	w = doJSON(t, srv, http.MethodPost, "/printers", map[string]interface{}{
		"name":           "Broken",
		"connectionType": "network",
	})
	if w.Code != 400 {
		t.Errorf("expected 400 for invalid config, got %d", w.Code)
	}

	printers := configs.List("")
	if len(printers) != 1 {
		t.Fatalf("expected 1 saved printer, got %d", len(printers))
	}

	w = doJSON(t, srv, http.MethodPost, "/printer/"+printers[0].ID+"/default", nil)
	if w.Code != 200 {
		t.Fatalf("set default failed: %d", w.Code)
	}
	if def := configs.Default("grill-1"); def == nil || def.ID != printers[0].ID {
		t.Error("expected the printer to become its station default")
	}

	w = doJSON(t, srv, http.MethodDelete, "/printer/"+printers[0].ID, nil)
	if w.Code != 200 {
		t.Fatalf("remove failed: %d", w.Code)
	}
	if len(configs.List("")) != 0 {
		t.Error("expected printer removed")
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, &countingDialer{})

	w := doJSON(t, srv, http.MethodGet, "/stats", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

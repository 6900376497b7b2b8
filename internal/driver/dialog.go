package driver

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/prepdeck/label-engine/internal/config"
	"github.com/prepdeck/label-engine/internal/fault"
	"github.com/prepdeck/label-engine/internal/render"
	"github.com/prepdeck/label-engine/pkg/labelformat"
)

// Spooler hands a rendered PNG to the system print dialog/queue. Injected so
// tests can observe spooled jobs without a print system.
type Spooler func(ctx context.Context, queueName string, copies int, pngData []byte) error

func lpSpooler(ctx context.Context, queueName string, copies int, pngData []byte) error {
	tmp, err := os.CreateTemp("", "label-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pngData); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	args := []string{"-n", fmt.Sprintf("%d", copies)}
	if queueName != "" {
		args = append(args, "-d", queueName)
	}
	args = append(args, filepath.Clean(tmp.Name()))

	return exec.CommandContext(ctx, "lp", args...).Run()
}

// DialogDriver prints via the system print dialog/spooler. It has no network
// failure modes: the job is considered delivered once spooled.
type DialogDriver struct {
	cfg   config.PrinterConfig
	spool Spooler
	mu    sync.Mutex
}

// NewDialogDriver creates a driver that spools through the system queue
func NewDialogDriver(cfg config.PrinterConfig) *DialogDriver {
	return &DialogDriver{
		cfg:   cfg,
		spool: lpSpooler,
	}
}

// Print rasterizes the label and spools it
func (d *DialogDriver) Print(ctx context.Context, req Request) (*Outcome, error) {
	if req.Label == nil {
		err := fault.Validationf("dialog printing requires structured label data")
		return &Outcome{Method: "dialog", Error: err.Error()}, err
	}

	media := req.Media
	if media.WidthMM == 0 {
		media = d.cfg.Media
	}
	if media.WidthMM == 0 {
		media = labelformat.DefaultMedia
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()

	img, err := render.Raster(req.Label, media)
	if err != nil {
		verr := fault.Validationf("failed to rasterize label: %v", err)
		return &Outcome{Method: "dialog", Latency: time.Since(start), Error: verr.Error()}, verr
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return &Outcome{Method: "dialog", Latency: time.Since(start), Error: err.Error()}, err
	}

	if err := d.spool(ctx, d.cfg.QueueName, copiesOr1(req.Copies), buf.Bytes()); err != nil {
		ferr := fault.Protocolf(err, "system spooler rejected the job")
		return &Outcome{Method: "dialog", Latency: time.Since(start), Error: ferr.Error()}, ferr
	}

	return &Outcome{
		Success: true,
		Method:  "dialog",
		Latency: time.Since(start),
	}, nil
}

// PrintBatch attempts every label and reports per-item outcomes
func (d *DialogDriver) PrintBatch(ctx context.Context, reqs []Request) *BatchOutcome {
	return printEach(ctx, d, reqs)
}

// Abort is a no-op: once spooled, the job belongs to the system queue
func (d *DialogDriver) Abort() error { return nil }

// Close is a no-op: the driver holds no channel
func (d *DialogDriver) Close() error { return nil }

// Package driver transmits rendered labels to printers over their transports
package driver

import (
	"context"
	"time"

	"github.com/prepdeck/label-engine/internal/fault"
	"github.com/prepdeck/label-engine/internal/zpl"
	"github.com/prepdeck/label-engine/pkg/labelformat"
)

// Request is one label to transmit. Payload is the pre-rendered command
// stream; when nil it is rendered from Label. Dialog-based printing requires
// the structured Label since it rasterizes instead of sending commands.
type Request struct {
	Label   *labelformat.Label
	Media   labelformat.Media
	Payload []byte
	Copies  int
}

// Outcome reports one transmission attempt
type Outcome struct {
	Success bool          `json:"success"`
	Method  string        `json:"method,omitempty"`
	Port    int           `json:"port,omitempty"`
	Latency time.Duration `json:"latencyMs"`
	Error   string        `json:"error,omitempty"`
}

// BatchOutcome aggregates a best-effort batch. Every item is attempted;
// callers needing atomic batches must check the per-item outcomes.
type BatchOutcome struct {
	Total     int        `json:"total"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Outcomes  []*Outcome `json:"outcomes"`
	FirstErr  error      `json:"-"`
}

// Driver transmits labels to one class of printer transport. Implementations
// serialize concurrent Print calls against the same printer: interleaved
// byte streams corrupt the device's receive buffer.
type Driver interface {
	Print(ctx context.Context, req Request) (*Outcome, error)
	PrintBatch(ctx context.Context, reqs []Request) *BatchOutcome

	// Abort is the best-effort channel teardown used when a caller cancels a
	// job that is already transmitting. It may still leave a partial label.
	Abort() error
	Close() error
}

// payloadFor resolves the command stream for a request, rendering from the
// structured label if no pre-rendered payload was supplied
func payloadFor(req Request) ([]byte, error) {
	if len(req.Payload) > 0 {
		return req.Payload, nil
	}
	if req.Label == nil {
		return nil, fault.Validationf("print request has neither payload nor label")
	}
	media := req.Media
	if media.WidthMM == 0 {
		media = labelformat.DefaultMedia
	}
	return zpl.Render(req.Label, media)
}

// printEach implements best-effort batch semantics on top of Print
func printEach(ctx context.Context, d Driver, reqs []Request) *BatchOutcome {
	batch := &BatchOutcome{
		Total:    len(reqs),
		Outcomes: make([]*Outcome, 0, len(reqs)),
	}

	for _, req := range reqs {
		outcome, err := d.Print(ctx, req)
		if outcome == nil {
			outcome = &Outcome{}
		}
		if err != nil {
			outcome.Success = false
			if outcome.Error == "" {
				outcome.Error = err.Error()
			}
			batch.Failed++
			if batch.FirstErr == nil {
				batch.FirstErr = err
			}
		} else {
			batch.Succeeded++
		}
		batch.Outcomes = append(batch.Outcomes, outcome)
	}

	return batch
}

func copiesOr1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

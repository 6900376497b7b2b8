// Package queue holds the durable print job queue and its dispatcher
package queue

import (
	"time"

	"github.com/prepdeck/label-engine/pkg/labelformat"
)

// Status is a print job's lifecycle state
type Status string

const (
	StatusPending   Status = "pending"
	StatusPrinting  Status = "printing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// validTransitions encodes the monotonic lifecycle:
// pending -> printing -> {completed | failed}, pending -> cancelled.
// Terminal states never transition; a resubmission is a new job id.
var validTransitions = map[Status][]Status{
	StatusPending:  {StatusPrinting, StatusCancelled},
	StatusPrinting: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether moving from s to next is legal
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status is final
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Item is one queued print job plus its queue metadata. The queue store
// exclusively owns Item lifetime.
type Item struct {
	ID            string             `json:"id"`
	SourceLabelID string             `json:"labelId,omitempty"`
	PrinterID     string             `json:"printerId"`
	LabelData     *labelformat.Label `json:"labelData,omitempty"`
	Payload       []byte             `json:"payload,omitempty"`
	Quantity      int                `json:"quantity"`
	Priority      int                `json:"priority,omitempty"`
	Status        Status             `json:"status"`

	AddedAt     time.Time  `json:"addedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Error    string `json:"error,omitempty"`
	Attempts int    `json:"attempts,omitempty"`

	// Display fields shown in queue listings without unpacking the label
	ProductName  string `json:"productName,omitempty"`
	CategoryName string `json:"categoryName,omitempty"`
}

func (i *Item) clone() *Item {
	c := *i
	if i.LabelData != nil {
		labelCopy := *i.LabelData
		c.LabelData = &labelCopy
	}
	if i.Payload != nil {
		c.Payload = append([]byte(nil), i.Payload...)
	}
	return &c
}

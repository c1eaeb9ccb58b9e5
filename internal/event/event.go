// Package event carries the typed domain events the approval and request
// services publish after their transactions commit. Delivery (notification
// rows, websocket push) happens in a separate consumer; publishing never
// blocks and never fails the committed action.
package event

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Kind constants double as the persisted notification type.
const (
	RequestSubmitted       = "request_submitted"
	RequestApproved        = "request_approved"
	RequestRejected        = "request_rejected"
	QuoteSelected          = "quote_selected"
	ProjectMarkedDone      = "project_marked_done"
	ClientPaymentConfirmed = "client_payment_confirmed"
	FundsTransferred       = "funds_transferred"
	CheckoutDecided        = "checkout_decided"
)

// Event describes one committed workflow fact. Request fields are snapshots
// taken at publish time; consumers must not reach back into the aggregate.
type Event struct {
	Kind          string
	RequestID     uint
	RequestNumber string // human id, e.g. PR-2025-001
	RequestType   string
	RequestTitle  string
	RequestState  string
	RequesterID   uuid.UUID
	RequesterName string
	ActorID       uuid.UUID
	ActorName     string
	Stage         string
	Comment       string
	// Pinned direct manager, when the request names one.
	DirectManagerID *uuid.UUID
	// Quote selection details.
	VendorName string
	QuoteTotal string
	// Payment details.
	PayoutReference string
}

// Bus is a buffered fan-in of events. Publish drops on a full buffer rather
// than block a request handler; dropped events only cost a notification.
type Bus struct {
	ch chan Event
}

func NewBus(buffer int) *Bus {
	return &Bus{ch: make(chan Event, buffer)}
}

func (b *Bus) Publish(e Event) {
	select {
	case b.ch <- e:
	default:
		log.Warn().Str("kind", e.Kind).Str("request", e.RequestNumber).
			Msg("event bus full, dropping notification event")
	}
}

func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close stops the consumer after draining.
func (b *Bus) Close() {
	close(b.ch)
}

package domain

import "time"

const (
	EventBookingCreated       = "booking.created"
	EventBookingDeleted       = "booking.deleted"
	EventBookingStatusChanged = "booking.status_changed"
	EventTicketUsed           = "ticket.used"
	EventTicketCancelled      = "ticket.cancelled"
	EventTicketScanRejected   = "ticket.scan_rejected"
)

// Event is a lifecycle or audit record published for downstream consumers.
// Key groups related events on the same partition.
type Event struct {
	ID        string         `json:"event_id"`
	Type      string         `json:"event_type"`
	Key       string         `json:"key"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

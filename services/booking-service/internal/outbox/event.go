package outbox

import (
	"context"
	"time"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	TypeBookingConfirmed = "booking.confirmed.v1"
	TypeBookingCancelled = "booking.cancelled.v1"
)

// Record is a stored event awaiting or past delivery.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

// Source hands unpublished records to deliver, oldest first. Records are
// marked published only when deliver returns nil. It returns how many
// records were delivered.
type Source interface {
	PublishPending(ctx context.Context, limit int, deliver func(context.Context, []Record) error) (int, error)
}

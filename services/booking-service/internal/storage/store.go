// Package storage persists bookings, blocks, the schedule config and outbox
// events. Store has a Postgres implementation here and embedded
// implementations in memstore and sqlstore.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/schedule"
)

var (
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned when a write would leave two confirmed bookings overlapping.
	ErrConflict = errors.New("storage: overlapping confirmed booking")
	// ErrStaleVersion is returned when a config save names a version that is no longer current.
	ErrStaleVersion = errors.New("storage: config version moved")
)

type Store interface {
	outbox.Source

	// LoadConfig returns ErrNotFound until a config has been saved.
	LoadConfig(ctx context.Context) (schedule.Config, error)
	// SaveConfig stores cfg if cfg.Version is the stored version (0 before the
	// first save) and returns it with Version incremented. Otherwise it returns
	// ErrStaleVersion and writes nothing.
	SaveConfig(ctx context.Context, cfg schedule.Config) (schedule.Config, error)

	ListBlocks(ctx context.Context) ([]model.Block, error)
	InsertBlock(ctx context.Context, b model.Block) error
	DeleteBlock(ctx context.Context, id string) error

	// ConfirmedBetween lists confirmed bookings intersecting [from,to).
	ConfirmedBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error)
	// ListBookings returns every booking, latest start first.
	ListBookings(ctx context.Context) ([]model.Booking, error)

	// InTx runs fn in one transaction. Calls sharing a non-empty lockKey are
	// serialised. fn must only use the Tx it is given.
	InTx(ctx context.Context, lockKey string, fn func(ctx context.Context, tx Tx) error) error

	Ping(ctx context.Context) error
}

type Tx interface {
	ConfirmedOverlapping(ctx context.Context, start, end time.Time) ([]model.Booking, error)
	InsertBooking(ctx context.Context, b model.Booking) error
	// GetBookingForUpdate locks the booking row for the rest of the transaction.
	GetBookingForUpdate(ctx context.Context, id string) (model.Booking, error)
	CancelBooking(ctx context.Context, id string, at time.Time) error
	AppendEvent(ctx context.Context, evt outbox.Event) error
}

// DayLockKey is the InTx key that serialises bookings on one UTC day.
func DayLockKey(t time.Time) string {
	return "booking-day:" + schedule.Midnight(t).Format(time.DateOnly)
}

// BookingLockKey serialises transitions of one booking.
func BookingLockKey(id string) string {
	return "booking:" + id
}

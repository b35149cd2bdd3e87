package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/validation"
)

type BookRequest struct {
	StartISO       string `json:"startIso" validate:"required"`
	ClientName     string `json:"clientName" validate:"required,max=200"`
	ClientEmail    string `json:"clientEmail" validate:"required,max=254,strictemail"`
	ClientTimezone string `json:"clientTimezone" validate:"required,max=64"`
	Message        string `json:"message" validate:"max=2000"`
}

func (r *BookRequest) normalize() {
	r.StartISO = strings.TrimSpace(r.StartISO)
	r.ClientName = strings.TrimSpace(r.ClientName)
	r.ClientEmail = strings.TrimSpace(r.ClientEmail)
	r.ClientTimezone = strings.TrimSpace(r.ClientTimezone)
	r.Message = strings.TrimSpace(r.Message)
}

type Confirmation struct {
	BookingID   string
	Start       time.Time
	End         time.Time
	MeetingLink string
}

// Book reserves the slot starting at req.StartISO. The overlap check and the
// insert run in one transaction serialised per UTC day, so concurrent requests
// for the same slot confirm at most one booking.
func (s *Service) Book(ctx context.Context, req BookRequest) (conf Confirmation, err error) {
	req.normalize()
	ctx, span := s.tracer.Start(ctx, "booking.book", trace.WithAttributes(attribute.String("start", req.StartISO)))
	defer span.End()

	logger := serviceLogger(ctx, s.logger, "Book", "start", req.StartISO)
	defer func() {
		switch {
		case err == nil:
			logger.InfoContext(ctx, "booking confirmed", "booking_id", conf.BookingID)
		case apperror.IsValidation(err), errors.Is(err, apperror.ErrConflict):
			logger.InfoContext(ctx, "booking rejected", "err", err, "error_kind", apperror.Kind(err))
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "book failed")
			logger.ErrorContext(ctx, "booking failed", "err", err, "error_kind", apperror.Kind(err))
		}
	}()

	if err = validation.Struct(s.validate, req); err != nil {
		return Confirmation{}, err
	}
	start, err := time.Parse(time.RFC3339, req.StartISO)
	if err != nil {
		return Confirmation{}, apperror.Field("startIso", "must be an ISO-8601 timestamp")
	}
	start = start.UTC()
	if start.Second() != 0 || start.Nanosecond() != 0 {
		return Confirmation{}, apperror.Field("startIso", "must fall on a whole minute")
	}

	cfg, err := s.GetConfig(ctx)
	if err != nil {
		return Confirmation{}, err
	}
	end := start.Add(cfg.SlotDuration())
	day := schedule.Midnight(start)

	// Any other start the day view does not offer went stale between listing
	// and booking: taken, blocked, past the notice or horizon, or laid out
	// under a config that has since changed.
	snap, err := s.snapshot(ctx, cfg, day, day.Add(24*time.Hour))
	if err != nil {
		return Confirmation{}, err
	}
	now := s.now()
	if !s.calc.Offers(ctx, start, snap, now) {
		return Confirmation{}, apperror.ErrConflict
	}

	b := model.Booking{
		ID:             s.newID(),
		ClientName:     req.ClientName,
		ClientEmail:    req.ClientEmail,
		ClientTimezone: req.ClientTimezone,
		Message:        req.Message,
		StartUTC:       start,
		EndUTC:         end,
		Status:         model.BookingConfirmed,
		CreatedAt:      now.UTC(),
	}
	err = s.store.InTx(ctx, storage.DayLockKey(start), func(ctx context.Context, tx storage.Tx) error {
		existing, err := tx.ConfirmedOverlapping(ctx, start, end)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if len(existing) > 0 {
			return apperror.ErrConflict
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		return s.appendEvent(ctx, tx, outbox.TypeBookingConfirmed, b)
	})
	if err != nil {
		return Confirmation{}, mapStoreError(err)
	}

	s.cache.Bump(ctx, cache.ScopeBookings)
	span.SetAttributes(attribute.String("booking_id", b.ID))
	return Confirmation{BookingID: b.ID, Start: start, End: end, MeetingLink: s.meetingLink}, nil
}

// Cancel marks a confirmed booking cancelled. A second cancel reports
// apperror.ErrAlreadyCancelled and changes nothing.
func (s *Service) Cancel(ctx context.Context, id string) (err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.Field("id", "is required")
	}
	ctx, span := s.tracer.Start(ctx, "booking.cancel", trace.WithAttributes(attribute.String("booking_id", id)))
	defer span.End()

	logger := serviceLogger(ctx, s.logger, "Cancel", "booking_id", id)
	defer func() {
		switch {
		case err == nil:
			logger.InfoContext(ctx, "booking cancelled")
		case errors.Is(err, apperror.ErrNotFound), errors.Is(err, apperror.ErrAlreadyCancelled):
			logger.InfoContext(ctx, "cancel rejected", "error_kind", apperror.Kind(err))
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancel failed")
			logger.ErrorContext(ctx, "cancel failed", "err", err, "error_kind", apperror.Kind(err))
		}
	}()

	err = s.store.InTx(ctx, storage.BookingLockKey(id), func(ctx context.Context, tx storage.Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == model.BookingCancelled {
			return apperror.ErrAlreadyCancelled
		}
		at := s.now().UTC()
		if err := tx.CancelBooking(ctx, id, at); err != nil {
			return err
		}
		b.Status = model.BookingCancelled
		b.CancelledAt = &at
		return s.appendEvent(ctx, tx, outbox.TypeBookingCancelled, b)
	})
	if err != nil {
		return mapStoreError(err)
	}
	s.cache.Bump(ctx, cache.ScopeBookings)
	return nil
}

// ListBookings returns bookings matching filter (upcoming, past, cancelled or
// all), latest start first.
func (s *Service) ListBookings(ctx context.Context, filter string) ([]model.Booking, error) {
	f, ok := model.ParseBookingFilter(filter)
	if !ok {
		return nil, apperror.Field("filter", "must be one of upcoming, past, cancelled, all")
	}
	all, err := s.store.ListBookings(ctx)
	if err != nil {
		serviceLogger(ctx, s.logger, "ListBookings").ErrorContext(ctx, "list bookings failed", "err", err)
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	now := s.now()
	out := make([]model.Booking, 0, len(all))
	for _, b := range all {
		if f.Match(b, now) {
			out = append(out, b)
		}
	}
	return out, nil
}

// EventPayload is the JSON body of booking.confirmed.v1 and booking.cancelled.v1.
type EventPayload struct {
	BookingID      string     `json:"booking_id"`
	ClientName     string     `json:"client_name"`
	ClientEmail    string     `json:"client_email"`
	ClientTimezone string     `json:"client_timezone"`
	Message        string     `json:"message"`
	StartUTC       time.Time  `json:"start_utc"`
	EndUTC         time.Time  `json:"end_utc"`
	MeetingLink    string     `json:"meeting_link"`
	Status         string     `json:"status"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

func (s *Service) appendEvent(ctx context.Context, tx storage.Tx, eventType string, b model.Booking) error {
	payload, err := json.Marshal(EventPayload{
		BookingID:      b.ID,
		ClientName:     b.ClientName,
		ClientEmail:    b.ClientEmail,
		ClientTimezone: b.ClientTimezone,
		Message:        b.Message,
		StartUTC:       b.StartUTC,
		EndUTC:         b.EndUTC,
		MeetingLink:    s.meetingLink,
		Status:         string(b.Status),
		CancelledAt:    b.CancelledAt,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	if err := tx.AppendEvent(ctx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("append %s: %w", eventType, err)
	}
	return nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, storage.ErrConflict):
		return apperror.ErrConflict
	case errors.Is(err, storage.ErrNotFound):
		return apperror.ErrNotFound
	}
	return err
}

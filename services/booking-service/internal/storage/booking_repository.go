package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/meetslot/libs/db"
	otelx "github.com/md-rashed-zaman/meetslot/libs/otel"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/outbox"
)

// PgStore is the Postgres Store. The bookings_confirmed_no_overlap exclusion
// constraint backs up the per-day advisory lock taken by InTx.
type PgStore struct {
	pool *db.Pool
}

var _ Store = (*PgStore)(nil)

func NewPgStore(pool *db.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Ping(ctx context.Context) error {
	return db.ReadyCheck(s.pool)(ctx)
}

func (s *PgStore) InTx(ctx context.Context, lockKey string, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if lockKey != "" {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}
	}
	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

const bookingColumns = `id::text, client_name, client_email, client_timezone, message,
	start_utc, end_utc, status, created_at, cancelled_at`

func (t *pgTx) ConfirmedOverlapping(ctx context.Context, start, end time.Time) ([]model.Booking, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'confirmed'
			AND start_utc < $2
			AND end_utc > $1
		ORDER BY start_utc ASC
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (t *pgTx) InsertBooking(ctx context.Context, b model.Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings
			(id, client_name, client_email, client_timezone, message, start_utc, end_utc, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, b.ID, b.ClientName, b.ClientEmail, b.ClientTimezone, b.Message,
		b.StartUTC.UTC(), b.EndUTC.UTC(), string(b.Status), b.CreatedAt.UTC())
	return mapPgError(err)
}

func (t *pgTx) GetBookingForUpdate(ctx context.Context, id string) (model.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Booking{}, ErrNotFound
	}
	row := t.tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, id)
	b, err := scanBooking(row)
	if err != nil {
		return model.Booking{}, mapPgError(err)
	}
	return b, nil
}

func (t *pgTx) CancelBooking(ctx context.Context, id string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
			cancelled_at = $2
		WHERE id = $1 AND status = 'confirmed'
	`, id, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	tc := otelx.CaptureTraceContext(ctx)
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, tc.Parent, tc.State)
	return err
}

func (s *PgStore) ConfirmedBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'confirmed'
			AND start_utc < $2
			AND end_utc > $1
		ORDER BY start_utc ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *PgStore) ListBookings(ctx context.Context) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		ORDER BY start_utc DESC
	`)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var status string
	var cancelledAt *time.Time
	err := row.Scan(
		&b.ID,
		&b.ClientName,
		&b.ClientEmail,
		&b.ClientTimezone,
		&b.Message,
		&b.StartUTC,
		&b.EndUTC,
		&status,
		&b.CreatedAt,
		&cancelledAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = model.BookingStatus(status)
	b.StartUTC = b.StartUTC.UTC()
	b.EndUTC = b.EndUTC.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	if cancelledAt != nil {
		at := cancelledAt.UTC()
		b.CancelledAt = &at
	}
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// mapPgError translates constraint and no-row errors to the package sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23P01", "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}

// Package sqlstore is a single-node storage.Store on SQLite through gorm.
// The DSN opens write transactions with BEGIN IMMEDIATE, so the check and
// insert of a booking run under SQLite's write lock. A partial unique index on
// confirmed start times backs that up.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	otelx "github.com/md-rashed-zaman/meetslot/libs/otel"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/storage"
)

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" gives a private in-memory database on a single connection.
func Open(path string) (*Store, error) {
	memory := path == "" || path == ":memory:"
	dsn := "file:" + path
	if memory {
		dsn = "file::memory:"
	}
	dsn += "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if memory {
		sqlDB.SetMaxOpenConns(1)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&configRow{}, &blockRow{}, &bookingRow{}, &outboxRow{}); err != nil {
		return err
	}
	return s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS bookings_confirmed_start
		ON bookings (start_unix) WHERE status = 'confirmed'`).Error
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) LoadConfig(ctx context.Context) (schedule.Config, error) {
	var row configRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", 1).Error; err != nil {
		return schedule.Config{}, mapError(err)
	}
	return row.toConfig(), nil
}

func (s *Store) SaveConfig(ctx context.Context, cfg schedule.Config) (schedule.Config, error) {
	var saved configRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current configRow
		err := tx.First(&current, "id = ?", 1).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if current.Version != cfg.Version {
			return storage.ErrStaleVersion
		}
		version := current.Version + 1
		saved = configRow{
			ID:                 1,
			WorkingDays:        encodeDays(cfg.WorkingDays),
			StartHourUTC:       cfg.StartHourUTC,
			EndHourUTC:         cfg.EndHourUTC,
			SlotMinutes:        cfg.SlotMinutes,
			AdvanceNoticeHours: cfg.AdvanceNoticeHours,
			MaxDaysAhead:       cfg.MaxDaysAhead,
			AdminTimezone:      cfg.AdminTimezone,
			Version:            version,
			UpdatedAt:          s.now().UTC(),
		}
		return tx.Save(&saved).Error
	})
	if err != nil {
		return schedule.Config{}, err
	}
	return saved.toConfig(), nil
}

func (s *Store) ListBlocks(ctx context.Context) ([]model.Block, error) {
	var rows []blockRow
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	blocks := make([]model.Block, 0, len(rows))
	for _, r := range rows {
		blocks = append(blocks, r.toBlock())
	}
	return blocks, nil
}

func (s *Store) InsertBlock(ctx context.Context, b model.Block) error {
	row := blockToRow(b)
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) DeleteBlock(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&blockRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ConfirmedBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	return confirmedOverlapping(s.db.WithContext(ctx), from, to)
}

func (s *Store) ListBookings(ctx context.Context) ([]model.Booking, error) {
	var rows []bookingRow
	if err := s.db.WithContext(ctx).Order("start_unix DESC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Booking, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toBooking())
	}
	return out, nil
}

// InTx ignores lockKey: BEGIN IMMEDIATE already serialises writers.
func (s *Store) InTx(ctx context.Context, _ string, fn func(ctx context.Context, tx storage.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &sqlTx{db: tx, now: s.now})
	})
	return mapError(err)
}

func (s *Store) PublishPending(ctx context.Context, limit int, deliver func(context.Context, []outbox.Record) error) (int, error) {
	var n int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []outboxRow
		if err := tx.Where("published_at IS NULL").Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		records := make([]outbox.Record, 0, len(rows))
		ids := make([]int64, 0, len(rows))
		for _, r := range rows {
			records = append(records, outbox.Record{
				ID:            r.ID,
				EventID:       r.EventID,
				AggregateType: r.AggregateType,
				AggregateID:   r.AggregateID,
				EventType:     r.EventType,
				Payload:       r.Payload,
				Traceparent:   r.Traceparent,
				Tracestate:    r.Tracestate,
				CreatedAt:     r.CreatedAt.UTC(),
			})
			ids = append(ids, r.ID)
		}
		if err := deliver(ctx, records); err != nil {
			return err
		}
		n = len(records)
		return tx.Model(&outboxRow{}).Where("id IN ?", ids).Update("published_at", s.now().UTC()).Error
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

type sqlTx struct {
	db  *gorm.DB
	now func() time.Time
}

func (t *sqlTx) ConfirmedOverlapping(_ context.Context, start, end time.Time) ([]model.Booking, error) {
	return confirmedOverlapping(t.db, start, end)
}

func (t *sqlTx) InsertBooking(_ context.Context, b model.Booking) error {
	row := bookingToRow(b)
	return mapError(t.db.Create(&row).Error)
}

func (t *sqlTx) GetBookingForUpdate(_ context.Context, id string) (model.Booking, error) {
	var row bookingRow
	if err := t.db.First(&row, "id = ?", id).Error; err != nil {
		return model.Booking{}, mapError(err)
	}
	return row.toBooking(), nil
}

func (t *sqlTx) CancelBooking(_ context.Context, id string, at time.Time) error {
	res := t.db.Model(&bookingRow{}).
		Where("id = ? AND status = ?", id, string(model.BookingConfirmed)).
		Updates(map[string]any{
			"status":       string(model.BookingCancelled),
			"cancelled_at": at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *sqlTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	tc := otelx.CaptureTraceContext(ctx)
	row := outboxRow{
		EventID:       uuid.NewString(),
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.EventType,
		Payload:       evt.Payload,
		Traceparent:   tc.Parent,
		Tracestate:    tc.State,
		CreatedAt:     t.now().UTC(),
	}
	return t.db.Create(&row).Error
}

func confirmedOverlapping(db *gorm.DB, start, end time.Time) ([]model.Booking, error) {
	var rows []bookingRow
	err := db.
		Where("status = ? AND start_unix < ? AND end_unix > ?", string(model.BookingConfirmed), end.Unix(), start.Unix()).
		Order("start_unix ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.Booking, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toBooking())
	}
	return out, nil
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	}
	return err
}

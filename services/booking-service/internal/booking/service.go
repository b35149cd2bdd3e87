// Package booking runs the public availability and reservation flows and the
// admin booking and config operations on top of a storage.Store.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/validation"
)

type Options struct {
	// Seed is served until a config has been saved.
	Seed        schedule.Config
	MeetingLink string
	Cache       cache.MonthCache
	Now         func() time.Time
	NewID       func() string
}

type Service struct {
	store       storage.Store
	calc        *availability.Calculator
	cache       cache.MonthCache
	seed        schedule.Config
	meetingLink string
	validate    *validator.Validate
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger
	tracer      trace.Tracer
}

func NewService(store storage.Store, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{
		store:       store,
		calc:        availability.NewCalculator(logger),
		cache:       opts.Cache,
		seed:        opts.Seed,
		meetingLink: opts.MeetingLink,
		validate:    validation.New(),
		now:         opts.Now,
		newID:       opts.NewID,
		logger:      logger.With("component", "booking"),
		tracer:      otel.Tracer("booking-service/booking"),
	}
}

// GetConfig returns the stored schedule config, or the seed before one is saved.
func (s *Service) GetConfig(ctx context.Context) (schedule.Config, error) {
	cfg, err := s.store.LoadConfig(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return s.seed, nil
	}
	if err != nil {
		return schedule.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (s *Service) UpdateConfig(ctx context.Context, cfg schedule.Config) (saved schedule.Config, err error) {
	logger := serviceLogger(ctx, s.logger, "UpdateConfig")
	defer func() {
		switch {
		case err == nil:
			logger.InfoContext(ctx, "config updated", "config_version", saved.Version)
		case errors.Is(err, apperror.ErrStaleConfig):
			logger.InfoContext(ctx, "config update rejected", "err", err, "error_kind", apperror.Kind(err))
		case !apperror.IsValidation(err):
			logger.ErrorContext(ctx, "config update failed", "err", err, "error_kind", apperror.Kind(err))
		}
	}()

	if cfg.AdminTimezone == "" {
		cfg.AdminTimezone = "UTC"
	}
	if err = cfg.Validate(); err != nil {
		return schedule.Config{}, err
	}
	saved, err = s.store.SaveConfig(ctx, cfg)
	if errors.Is(err, storage.ErrStaleVersion) {
		return schedule.Config{}, fmt.Errorf("save config at version %d: %w", cfg.Version, apperror.ErrStaleConfig)
	}
	if err != nil {
		return schedule.Config{}, fmt.Errorf("save config: %w", err)
	}
	return saved, nil
}

// MonthAvailability lists the dates of the month, formatted YYYY-MM-DD, that
// have at least one free slot.
func (s *Service) MonthAvailability(ctx context.Context, year int, month time.Month) ([]string, error) {
	if year < 1970 || year > 9999 {
		return nil, apperror.Field("year", "must be between 1970 and 9999")
	}
	if month < time.January || month > time.December {
		return nil, apperror.Field("month", "must be between 1 and 12")
	}
	logger := serviceLogger(ctx, s.logger, "MonthAvailability", "year", year, "month", int(month))
	now := s.now()

	// Counters are read before the snapshot so a concurrent write can only
	// leave an entry under a key that is already outdated.
	ttl := s.cache.TTL()
	versions, cacheable := cache.Versions{}, false
	if ttl > 0 {
		versions, cacheable = s.cache.Versions(ctx)
	}

	cfg, err := s.GetConfig(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "config load failed", "err", err, "error_kind", apperror.Kind(err))
		return nil, err
	}
	var key string
	if cacheable {
		key = cache.MonthKey(year, month, cfg.Version, versions)
		if dates, ok := s.cache.Get(ctx, key); ok {
			return trimHorizon(dates, cfg, now), nil
		}
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	snap, err := s.snapshot(ctx, cfg, first, first.AddDate(0, 1, 0))
	if err != nil {
		logger.ErrorContext(ctx, "availability snapshot failed", "err", err, "error_kind", apperror.Kind(err))
		return nil, err
	}

	// A cached answer is computed as of the end of its lifetime so it never
	// offers a date that has gone stale by the time it is served.
	evalAt := now
	if cacheable {
		evalAt = now.Add(ttl)
	}
	days := s.calc.MonthDates(ctx, year, month, snap, evalAt)
	dates := make([]string, 0, len(days))
	for _, d := range days {
		dates = append(dates, d.Format(time.DateOnly))
	}
	if cacheable {
		s.cache.Put(ctx, key, dates)
	}
	return trimHorizon(dates, snap.Config, now), nil
}

// trimHorizon drops dates past maxDaysAhead as seen from now.
func trimHorizon(dates []string, cfg schedule.Config, now time.Time) []string {
	out := make([]string, 0, len(dates))
	for _, raw := range dates {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			continue
		}
		if schedule.DaysBetween(now, d) <= cfg.MaxDaysAhead {
			out = append(out, raw)
		}
	}
	return out
}

// DaySlots lists the free slots of the UTC day containing day.
func (s *Service) DaySlots(ctx context.Context, day time.Time) ([]model.Slot, error) {
	day = schedule.Midnight(day)
	cfg, err := s.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, cfg, day, day.Add(24*time.Hour))
	if err != nil {
		serviceLogger(ctx, s.logger, "DaySlots", "date", day.Format(time.DateOnly)).
			ErrorContext(ctx, "availability snapshot failed", "err", err, "error_kind", apperror.Kind(err))
		return nil, err
	}
	return s.calc.DaySlots(ctx, day, snap, s.now()), nil
}

func (s *Service) snapshot(ctx context.Context, cfg schedule.Config, from, to time.Time) (availability.Snapshot, error) {
	blocks, err := s.store.ListBlocks(ctx)
	if err != nil {
		return availability.Snapshot{}, fmt.Errorf("list blocks: %w", err)
	}
	bookings, err := s.store.ConfirmedBetween(ctx, from, to)
	if err != nil {
		return availability.Snapshot{}, fmt.Errorf("list bookings: %w", err)
	}
	return availability.Snapshot{Config: cfg, Blocks: blocks, Bookings: bookings}, nil
}

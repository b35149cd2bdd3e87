// Package blocks manages the admin-defined exclusions that remove time from
// availability.
package blocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/md-rashed-zaman/meetslot/libs/httpx"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/validation"
)

// Store is the subset of storage.Store the registry needs.
type Store interface {
	ListBlocks(ctx context.Context) ([]model.Block, error)
	InsertBlock(ctx context.Context, b model.Block) error
	DeleteBlock(ctx context.Context, id string) error
}

// CreateRequest is the admin payload for a new block. Specific blocks use
// StartISO and EndISO. Recurring blocks use DayOfWeek and the hour and minute
// fields; the *UTC spellings win when both are sent. With Timezone set the
// recurring fields are local to that zone.
type CreateRequest struct {
	Type     string `json:"type" validate:"required,oneof=specific recurring"`
	Reason   string `json:"reason" validate:"max=500"`
	StartISO string `json:"startIso"`
	EndISO   string `json:"endIso"`

	DayOfWeek      *int   `json:"dayOfWeek"`
	StartHour      *int   `json:"startHour"`
	StartMinute    *int   `json:"startMinute"`
	EndHour        *int   `json:"endHour"`
	EndMinute      *int   `json:"endMinute"`
	StartHourUTC   *int   `json:"startHourUtc"`
	StartMinuteUTC *int   `json:"startMinuteUtc"`
	EndHourUTC     *int   `json:"endHourUtc"`
	EndMinuteUTC   *int   `json:"endMinuteUtc"`
	Timezone       string `json:"timezone" validate:"max=64"`
}

type Registry struct {
	store    Store
	cache    cache.MonthCache
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

func NewRegistry(store Store, monthCache cache.MonthCache, logger *slog.Logger) *Registry {
	if monthCache == nil {
		monthCache = cache.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:    store,
		cache:    monthCache,
		validate: validation.New(),
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logger.With("component", "blocks"),
	}
}

func (r *Registry) List(ctx context.Context) ([]model.Block, error) {
	blocks, err := r.store.ListBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	return blocks, nil
}

func (r *Registry) Create(ctx context.Context, req CreateRequest) (model.Block, error) {
	req.Type = strings.TrimSpace(req.Type)
	req.Reason = strings.TrimSpace(req.Reason)
	req.Timezone = strings.TrimSpace(req.Timezone)
	if err := validation.Struct(r.validate, req); err != nil {
		return model.Block{}, err
	}

	var (
		b   model.Block
		err error
	)
	if req.Type == string(model.BlockSpecific) {
		b, err = specificBlock(req)
	} else {
		b, err = r.recurringBlock(req)
	}
	if err != nil {
		return model.Block{}, err
	}
	b.ID = r.newID()
	b.Reason = req.Reason
	b.CreatedAt = r.now().UTC()

	logger := r.loggerWith(ctx, "CreateBlock", "block_id", b.ID, "kind", string(b.Kind))
	if err := r.store.InsertBlock(ctx, b); err != nil {
		logger.ErrorContext(ctx, "block insert failed", "err", err)
		return model.Block{}, fmt.Errorf("insert block: %w", err)
	}
	r.cache.Bump(ctx, cache.ScopeBlocks)
	logger.InfoContext(ctx, "block created")
	return b, nil
}

func specificBlock(req CreateRequest) (model.Block, error) {
	v := apperror.NewValidationError()
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartISO))
	if err != nil {
		v.Add("startIso", "must be an ISO-8601 timestamp")
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndISO))
	if err != nil {
		v.Add("endIso", "must be an ISO-8601 timestamp")
	}
	if !v.HasErrors() && !start.Before(end) {
		v.Add("endIso", "must be after startIso")
	}
	if err := v.OrNil(); err != nil {
		return model.Block{}, err
	}
	return model.Block{Kind: model.BlockSpecific, Start: start.UTC(), End: end.UTC()}, nil
}

func (r *Registry) recurringBlock(req CreateRequest) (model.Block, error) {
	v := apperror.NewValidationError()
	if req.DayOfWeek == nil {
		v.Add("dayOfWeek", "is required")
	} else if *req.DayOfWeek < 0 || *req.DayOfWeek > 6 {
		v.Add("dayOfWeek", "must be between 0 (Sunday) and 6 (Saturday)")
	}
	startHour := field(v, "startHourUtc", pick(req.StartHourUTC, req.StartHour), true, 24)
	startMinute := field(v, "startMinuteUtc", pick(req.StartMinuteUTC, req.StartMinute), false, 59)
	endHour := field(v, "endHourUtc", pick(req.EndHourUTC, req.EndHour), true, 24)
	endMinute := field(v, "endMinuteUtc", pick(req.EndMinuteUTC, req.EndMinute), false, 59)
	if startHour == 24 && startMinute > 0 {
		v.Add("startMinuteUtc", "must be 0 when the hour is 24")
	}
	if endHour == 24 && endMinute > 0 {
		v.Add("endMinuteUtc", "must be 0 when the hour is 24")
	}

	loc := time.UTC
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			v.Add("timezone", "unknown timezone")
		} else {
			loc = l
		}
	}
	if err := v.OrNil(); err != nil {
		return model.Block{}, err
	}

	w := schedule.WeeklyWindow{
		Day:         time.Weekday(*req.DayOfWeek),
		StartHour:   startHour,
		StartMinute: startMinute,
		EndHour:     endHour,
		EndMinute:   endMinute,
	}
	if loc != time.UTC {
		w = w.ToUTC(loc, r.now())
	}
	if w.StartHour == 24 {
		return model.Block{}, apperror.Field("startHourUtc", "must be before 24:00")
	}
	if w.StartHour*60+w.StartMinute == w.EndHour*60+w.EndMinute {
		return model.Block{}, apperror.Field("endHourUtc", "must differ from the start time")
	}
	return model.Block{
		Kind:        model.BlockRecurring,
		DayOfWeek:   w.Day,
		StartHour:   w.StartHour,
		StartMinute: w.StartMinute,
		EndHour:     w.EndHour,
		EndMinute:   w.EndMinute,
	}, nil
}

func pick(primary, fallback *int) *int {
	if primary != nil {
		return primary
	}
	return fallback
}

// field range-checks an hour or minute; minutes default to zero.
func field(v *apperror.ValidationError, name string, val *int, required bool, limit int) int {
	if val == nil {
		if required {
			v.Add(name, "is required")
		}
		return 0
	}
	if *val < 0 || *val > limit {
		v.Add(name, fmt.Sprintf("must be between 0 and %d", limit))
		return 0
	}
	return *val
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.Field("id", "is required")
	}
	logger := r.loggerWith(ctx, "DeleteBlock", "block_id", id)
	if err := r.store.DeleteBlock(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperror.ErrNotFound
		}
		logger.ErrorContext(ctx, "block delete failed", "err", err)
		return fmt.Errorf("delete block: %w", err)
	}
	r.cache.Bump(ctx, cache.ScopeBlocks)
	logger.InfoContext(ctx, "block deleted")
	return nil
}

func (r *Registry) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	pairs := []any{"operation", operation}
	if id := httpx.RequestIDFromContext(ctx); id != "" {
		pairs = append(pairs, "request_id", id)
	}
	return r.logger.With(append(pairs, attrs...)...)
}

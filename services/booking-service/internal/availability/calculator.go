// Package availability turns the schedule, blocks and confirmed bookings into
// bookable slots. Both the day and month views go through freeSlots so they
// cannot disagree about a date.
package availability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/schedule"
)

// Snapshot is everything the calculator reads. Bookings may include cancelled
// rows; only confirmed ones exclude time.
type Snapshot struct {
	Config   schedule.Config
	Blocks   []model.Block
	Bookings []model.Booking
}

type Calculator struct {
	logger *slog.Logger
	tracer trace.Tracer
}

func NewCalculator(logger *slog.Logger) *Calculator {
	return &Calculator{
		logger: logger.With("component", "availability"),
		tracer: otel.Tracer("booking-service/availability"),
	}
}

// DaySlots lists the free slots of the UTC calendar day containing day, earliest first.
func (c *Calculator) DaySlots(ctx context.Context, day time.Time, snap Snapshot, now time.Time) []model.Slot {
	ctx, span := c.tracer.Start(ctx, "availability.day", trace.WithAttributes(
		attribute.String("date", day.UTC().Format(time.DateOnly)),
	))
	defer span.End()

	if !c.usable(ctx, snap.Config) {
		return nil
	}
	slots := freeSlots(schedule.Midnight(day), snap, now, 0)
	span.SetAttributes(attribute.Int("slots", len(slots)))
	return slots
}

// MonthDates lists the UTC calendar days of the month with at least one free slot.
func (c *Calculator) MonthDates(ctx context.Context, year int, month time.Month, snap Snapshot, now time.Time) []time.Time {
	ctx, span := c.tracer.Start(ctx, "availability.month", trace.WithAttributes(
		attribute.Int("year", year),
		attribute.Int("month", int(month)),
	))
	defer span.End()

	if !c.usable(ctx, snap.Config) {
		return nil
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	var dates []time.Time
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		if len(freeSlots(d, snap, now, 1)) > 0 {
			dates = append(dates, d)
		}
	}
	span.SetAttributes(attribute.Int("dates", len(dates)))
	return dates
}

// Offers reports whether the day view at now includes a slot starting at start.
func (c *Calculator) Offers(ctx context.Context, start time.Time, snap Snapshot, now time.Time) bool {
	if !c.usable(ctx, snap.Config) {
		return false
	}
	if !snap.Config.WorksOn(start.Weekday()) || !snap.Config.OnGrid(start) {
		return false
	}
	for _, s := range freeSlots(schedule.Midnight(start), snap, now, 0) {
		if s.Start.Equal(start) {
			return true
		}
	}
	return false
}

func (c *Calculator) usable(ctx context.Context, cfg schedule.Config) bool {
	if err := cfg.Validate(); err != nil {
		c.logger.WarnContext(ctx, "schedule config unusable, offering no availability",
			"err", err,
			"error_kind", "invalid_config",
			"config_version", cfg.Version,
		)
		return false
	}
	return true
}

// freeSlots runs the day algorithm for the UTC midnight day. limit > 0 stops
// after that many slots.
func freeSlots(day time.Time, snap Snapshot, now time.Time, limit int) []model.Slot {
	cfg := snap.Config
	if !cfg.WorksOn(day.Weekday()) {
		return nil
	}
	ahead := schedule.DaysBetween(now, day)
	if ahead < 0 || ahead > cfg.MaxDaysAhead {
		return nil
	}

	winStart, winEnd := cfg.Window(day)
	minStart := now.Add(cfg.AdvanceNotice())
	duration := cfg.SlotDuration()

	starts := AvailableSlots(winStart, winEnd, duration, busyIntervals(day, snap), minStart, limit)
	slots := make([]model.Slot, 0, len(starts))
	for _, s := range starts {
		slots = append(slots, model.Slot{Start: s, End: s.Add(duration)})
	}
	return slots
}

// busyIntervals collects the exclusions that can touch the UTC day starting at day.
func busyIntervals(day time.Time, snap Snapshot) []Interval {
	dayEnd := day.Add(24 * time.Hour)
	var busy []Interval
	for _, b := range snap.Bookings {
		if b.Status != model.BookingConfirmed {
			continue
		}
		if b.StartUTC.Before(dayEnd) && day.Before(b.EndUTC) {
			busy = append(busy, Interval{Start: b.StartUTC, End: b.EndUTC})
		}
	}
	for _, blk := range snap.Blocks {
		busy = append(busy, blockIntervals(day, blk)...)
	}
	return busy
}

func blockIntervals(day time.Time, blk model.Block) []Interval {
	switch blk.Kind {
	case model.BlockSpecific:
		return []Interval{{Start: blk.Start, End: blk.End}}
	case model.BlockRecurring:
		var out []Interval
		wd := day.Weekday()
		if blk.DayOfWeek == wd {
			end := day.Add(blk.EndOffset())
			if blk.Wraps() {
				end = day.Add(24 * time.Hour)
			}
			out = append(out, Interval{Start: day.Add(blk.StartOffset()), End: end})
		}
		if blk.Wraps() && blk.DayOfWeek == (wd+6)%7 {
			out = append(out, Interval{Start: day, End: day.Add(blk.EndOffset())})
		}
		return out
	}
	return nil
}

package blocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/storage/memstore"
)

func intp(v int) *int { return &v }

func newTestRegistry() (*Registry, *cache.Memory) {
	mc := cache.NewMemory(time.Minute)
	r := NewRegistry(memstore.New(), mc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.now = func() time.Time { return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC) }
	return r, mc
}

func TestCreateSpecific(t *testing.T) {
	r, mc := newTestRegistry()
	ctx := context.Background()

	b, err := r.Create(ctx, CreateRequest{
		Type:     "specific",
		Reason:   " dentist ",
		StartISO: "2026-03-02T14:00:00+01:00",
		EndISO:   "2026-03-02T16:00:00+01:00",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.ID == "" || b.Kind != model.BlockSpecific || b.Reason != "dentist" {
		t.Fatalf("unexpected block: %+v", b)
	}
	if !b.Start.Equal(time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)) || b.Start.Location() != time.UTC {
		t.Fatalf("start should be stored in UTC, got %s", b.Start)
	}
	if v, _ := mc.Versions(ctx); v.Blocks != 1 {
		t.Fatalf("create should bump the block version, got %+v", v)
	}

	list, err := r.List(ctx)
	if err != nil || len(list) != 1 || list[0].ID != b.ID {
		t.Fatalf("unexpected list %v err=%v", list, err)
	}
}

func TestCreateSpecificRejectsEmptyRange(t *testing.T) {
	r, _ := newTestRegistry()
	_, err := r.Create(context.Background(), CreateRequest{
		Type:     "specific",
		StartISO: "2026-03-02T14:00:00Z",
		EndISO:   "2026-03-02T14:00:00Z",
	})
	var verr *apperror.ValidationError
	if !errors.As(err, &verr) || verr.FieldErrors["endIso"] == "" {
		t.Fatalf("expected endIso validation error, got %v", err)
	}
}

func TestCreateRecurringUTC(t *testing.T) {
	r, _ := newTestRegistry()
	b, err := r.Create(context.Background(), CreateRequest{
		Type:         "recurring",
		DayOfWeek:    intp(1),
		StartHourUTC: intp(18),
		EndHourUTC:   intp(19),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.DayOfWeek != time.Monday || b.StartHour != 18 || b.StartMinute != 0 || b.EndHour != 19 || b.EndMinute != 0 {
		t.Fatalf("unexpected block: %+v", b)
	}
}

func TestCreateRecurringLocalTime(t *testing.T) {
	r, _ := newTestRegistry()
	// Monday 20:00-21:30 in New York during winter is Tuesday 01:00-02:30 UTC.
	b, err := r.Create(context.Background(), CreateRequest{
		Type:        "recurring",
		Timezone:    "America/New_York",
		DayOfWeek:   intp(1),
		StartHour:   intp(20),
		EndHour:     intp(21),
		EndMinute:   intp(30),
		StartMinute: intp(0),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.DayOfWeek != time.Tuesday || b.StartHour != 1 || b.EndHour != 2 || b.EndMinute != 30 {
		t.Fatalf("unexpected conversion: %+v", b)
	}
}

func TestCreateRecurringValidation(t *testing.T) {
	r, _ := newTestRegistry()
	cases := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{"bad type", CreateRequest{Type: "weekly"}, "type"},
		{"missing day", CreateRequest{Type: "recurring", StartHourUTC: intp(9), EndHourUTC: intp(10)}, "dayOfWeek"},
		{"day out of range", CreateRequest{Type: "recurring", DayOfWeek: intp(7), StartHourUTC: intp(9), EndHourUTC: intp(10)}, "dayOfWeek"},
		{"missing end hour", CreateRequest{Type: "recurring", DayOfWeek: intp(1), StartHourUTC: intp(9)}, "endHourUtc"},
		{"hour out of range", CreateRequest{Type: "recurring", DayOfWeek: intp(1), StartHourUTC: intp(9), EndHourUTC: intp(25)}, "endHourUtc"},
		{"minute out of range", CreateRequest{Type: "recurring", DayOfWeek: intp(1), StartHourUTC: intp(9), StartMinuteUTC: intp(60), EndHourUTC: intp(10)}, "startMinuteUtc"},
		{"empty window", CreateRequest{Type: "recurring", DayOfWeek: intp(1), StartHourUTC: intp(18), StartMinuteUTC: intp(0), EndHourUTC: intp(18), EndMinuteUTC: intp(0)}, "endHourUtc"},
		{"empty local window", CreateRequest{Type: "recurring", Timezone: "America/New_York", DayOfWeek: intp(1), StartHour: intp(9), StartMinute: intp(15), EndHour: intp(9), EndMinute: intp(15)}, "endHourUtc"},
		{"unknown timezone", CreateRequest{Type: "recurring", Timezone: "Mars/Olympus", DayOfWeek: intp(1), StartHour: intp(9), EndHour: intp(10)}, "timezone"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Create(context.Background(), tc.req)
			var verr *apperror.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := verr.FieldErrors[tc.field]; !ok {
				t.Fatalf("expected error on %s, got %v", tc.field, verr.FieldErrors)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	r, mc := newTestRegistry()
	ctx := context.Background()
	b, err := r.Create(ctx, CreateRequest{Type: "recurring", DayOfWeek: intp(3), StartHourUTC: intp(9), EndHourUTC: intp(10)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Delete(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if v, _ := mc.Versions(ctx); v.Blocks != 2 {
		t.Fatalf("delete should bump the block version, got %+v", v)
	}
	if err := r.Delete(ctx, b.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
	if err := r.Delete(ctx, " "); !apperror.IsValidation(err) {
		t.Fatalf("blank id should be a validation error, got %v", err)
	}
}

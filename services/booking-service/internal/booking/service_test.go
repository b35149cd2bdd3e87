package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/storage/memstore"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/storage/sqlstore"
)

// Monday 2026-03-02 09:00 UTC.
var mondayMorning = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestService(store storage.Store, monthCache cache.MonthCache) (*Service, *clock) {
	clk := &clock{now: mondayMorning}
	svc := NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		Seed:        schedule.Default(),
		MeetingLink: "https://meet.example.com/room",
		Cache:       monthCache,
		Now:         clk.Now,
	})
	return svc, clk
}

func validRequest(start string) BookRequest {
	return BookRequest{
		StartISO:       start,
		ClientName:     "Ada Lovelace",
		ClientEmail:    "ada@example.com",
		ClientTimezone: "Europe/London",
		Message:        "intro call",
	}
}

func TestBookConfirmsAndRecordsEvent(t *testing.T) {
	store := memstore.New()
	svc, _ := newTestService(store, nil)
	ctx := context.Background()

	conf, err := svc.Book(ctx, validRequest("2026-03-02T15:00:00Z"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if conf.BookingID == "" || conf.MeetingLink != "https://meet.example.com/room" {
		t.Fatalf("unexpected confirmation: %+v", conf)
	}
	if !conf.End.Equal(conf.Start.Add(time.Hour)) {
		t.Fatalf("end should be start plus slot length: %s..%s", conf.Start, conf.End)
	}

	slots, err := svc.DaySlots(ctx, mondayMorning)
	if err != nil {
		t.Fatalf("day slots: %v", err)
	}
	if len(slots) != 8 {
		t.Fatalf("expected 8 slots after booking, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Start.Hour() == 15 {
			t.Fatalf("booked slot still offered")
		}
	}

	events := store.Events()
	if len(events) != 1 || events[0].EventType != outbox.TypeBookingConfirmed || events[0].AggregateID != conf.BookingID {
		t.Fatalf("unexpected events: %+v", events)
	}
	var payload EventPayload
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.ClientEmail != "ada@example.com" || payload.Status != "confirmed" || payload.CancelledAt != nil {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestBookConcurrentSameSlot(t *testing.T) {
	sqlite, err := sqlstore.Open(filepath.Join(t.TempDir(), "book.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	stores := map[string]storage.Store{
		"memory": memstore.New(),
		"sqlite": sqlite,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			svc, _ := newTestService(store, nil)
			const n = 10
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					req := validRequest("2026-03-02T15:00:00Z")
					req.ClientEmail = fmt.Sprintf("client%d@example.com", i)
					_, err := svc.Book(context.Background(), req)
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)

			var ok, conflicts int
			for err := range errs {
				switch {
				case err == nil:
					ok++
				case errors.Is(err, apperror.ErrConflict):
					conflicts++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if ok != 1 || conflicts != n-1 {
				t.Fatalf("expected exactly one confirmation, got ok=%d conflicts=%d", ok, conflicts)
			}

			confirmed, err := store.ConfirmedBetween(context.Background(), mondayMorning, mondayMorning.Add(24*time.Hour))
			if err != nil {
				t.Fatalf("confirmed: %v", err)
			}
			if len(confirmed) != 1 {
				t.Fatalf("expected 1 confirmed booking, got %d", len(confirmed))
			}
		})
	}
}

func TestBookValidation(t *testing.T) {
	svc, _ := newTestService(memstore.New(), nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		req   BookRequest
		field string
	}{
		{"bad email", func() BookRequest { r := validRequest("2026-03-02T15:00:00Z"); r.ClientEmail = "ada@example"; return r }(), "clientEmail"},
		{"missing name", func() BookRequest { r := validRequest("2026-03-02T15:00:00Z"); r.ClientName = "  "; return r }(), "clientName"},
		{"missing timezone", func() BookRequest { r := validRequest("2026-03-02T15:00:00Z"); r.ClientTimezone = ""; return r }(), "clientTimezone"},
		{"unparseable start", validRequest("next monday"), "startIso"},
		{"seconds", validRequest("2026-03-02T15:00:30Z"), "startIso"},
		{"fractional seconds", validRequest("2026-03-02T15:00:00.5Z"), "startIso"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Book(ctx, tc.req)
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

func TestBookStaleOfferConflicts(t *testing.T) {
	store := memstore.New()
	svc, clk := newTestService(store, nil)
	ctx := context.Background()

	clk.Set(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	if _, err := svc.Book(ctx, validRequest("2026-03-02T13:00:00Z")); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("slot inside advance notice should conflict, got %v", err)
	}
	if _, err := svc.Book(ctx, validRequest("2026-03-02T14:00:00Z")); err != nil {
		t.Fatalf("slot at the advance notice cutoff should book: %v", err)
	}
	if _, err := svc.Book(ctx, validRequest("2026-04-02T15:00:00Z")); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("slot beyond the horizon should conflict, got %v", err)
	}

	if err := store.InsertBlock(ctx, model.Block{
		ID: "blk", Kind: model.BlockRecurring, DayOfWeek: time.Monday, StartHour: 18, EndHour: 19,
	}); err != nil {
		t.Fatalf("insert block: %v", err)
	}
	if _, err := svc.Book(ctx, validRequest("2026-03-09T18:00:00Z")); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("blocked slot should conflict, got %v", err)
	}
}

func TestBookUnofferedStartConflicts(t *testing.T) {
	svc, _ := newTestService(memstore.New(), nil)
	ctx := context.Background()

	for name, start := range map[string]string{
		"off grid":      "2026-03-02T15:30:00Z",
		"outside hours": "2026-03-02T22:00:00Z",
		"weekend":       "2026-03-07T15:00:00Z",
	} {
		if _, err := svc.Book(ctx, validRequest(start)); !errors.Is(err, apperror.ErrConflict) {
			t.Fatalf("%s: expected conflict, got %v", name, err)
		}
	}
}

func TestBookAfterConfigChangeConflicts(t *testing.T) {
	svc, _ := newTestService(memstore.New(), nil)
	ctx := context.Background()

	slots, err := svc.DaySlots(ctx, mondayMorning)
	if err != nil || !containsStart(slots, "2026-03-02T15:00:00Z") {
		t.Fatalf("15:00 should be offered before the change, got %v err=%v", slots, err)
	}

	cfg, err := svc.GetConfig(ctx)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	cfg.SlotMinutes = 45
	if _, err := svc.UpdateConfig(ctx, cfg); err != nil {
		t.Fatalf("update config: %v", err)
	}

	if _, err := svc.Book(ctx, validRequest("2026-03-02T15:00:00Z")); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("start from the old grid should conflict, got %v", err)
	}
	if _, err := svc.Book(ctx, validRequest("2026-03-02T15:15:00Z")); err != nil {
		t.Fatalf("start on the new grid should book: %v", err)
	}
}

func containsStart(slots []model.Slot, iso string) bool {
	want, _ := time.Parse(time.RFC3339, iso)
	for _, s := range slots {
		if s.Start.Equal(want) {
			return true
		}
	}
	return false
}

func TestCancel(t *testing.T) {
	store := memstore.New()
	svc, _ := newTestService(store, nil)
	ctx := context.Background()

	conf, err := svc.Book(ctx, validRequest("2026-03-02T15:00:00Z"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if err := svc.Cancel(ctx, conf.BookingID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := svc.Cancel(ctx, conf.BookingID); !errors.Is(err, apperror.ErrAlreadyCancelled) {
		t.Fatalf("second cancel should report already cancelled, got %v", err)
	}
	if err := svc.Cancel(ctx, "does-not-exist"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("unknown id should be not found, got %v", err)
	}

	events := store.Events()
	if len(events) != 2 || events[1].EventType != outbox.TypeBookingCancelled {
		t.Fatalf("expected confirmed then cancelled events, got %+v", events)
	}

	slots, err := svc.DaySlots(ctx, mondayMorning)
	if err != nil {
		t.Fatalf("day slots: %v", err)
	}
	if len(slots) != 9 {
		t.Fatalf("cancelled slot should be offered again, got %d slots", len(slots))
	}
	if _, err := svc.Book(ctx, validRequest("2026-03-02T15:00:00Z")); err != nil {
		t.Fatalf("rebooking a cancelled slot: %v", err)
	}
}

func TestListBookingsFilters(t *testing.T) {
	svc, clk := newTestService(memstore.New(), nil)
	ctx := context.Background()

	first, err := svc.Book(ctx, validRequest("2026-03-02T13:00:00Z"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	second, err := svc.Book(ctx, validRequest("2026-03-03T13:00:00Z"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Book(ctx, validRequest("2026-03-04T13:00:00Z")); err != nil {
		t.Fatalf("book: %v", err)
	}
	if err := svc.Cancel(ctx, second.BookingID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	clk.Set(time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC))

	counts := map[string]int{"": 3, "all": 3, "upcoming": 1, "past": 1, "cancelled": 1}
	for filter, want := range counts {
		got, err := svc.ListBookings(ctx, filter)
		if err != nil {
			t.Fatalf("filter %q: %v", filter, err)
		}
		if len(got) != want {
			t.Fatalf("filter %q: expected %d bookings, got %d", filter, want, len(got))
		}
	}
	past, _ := svc.ListBookings(ctx, "past")
	if past[0].ID != first.BookingID {
		t.Fatalf("past should hold the first booking")
	}
	all, _ := svc.ListBookings(ctx, "all")
	if !all[0].StartUTC.After(all[1].StartUTC) {
		t.Fatalf("bookings should be listed latest first")
	}
	if _, err := svc.ListBookings(ctx, "soon"); !apperror.IsValidation(err) {
		t.Fatalf("unknown filter should be a validation error, got %v", err)
	}
}

func TestMonthAvailabilityUsesCache(t *testing.T) {
	store := memstore.New()
	mc := cache.NewMemory(time.Minute)
	svc, _ := newTestService(store, mc)
	ctx := context.Background()

	dates, err := svc.MonthAvailability(ctx, 2026, time.March)
	if err != nil {
		t.Fatalf("month: %v", err)
	}
	if len(dates) != 22 || dates[0] != "2026-03-02" || dates[len(dates)-1] != "2026-03-31" {
		t.Fatalf("unexpected dates: %v", dates)
	}

	// Written behind the registry's back, so the block counter is unchanged.
	if err := store.InsertBlock(ctx, model.Block{
		ID: "all-month", Kind: model.BlockSpecific,
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("insert block: %v", err)
	}
	cached, err := svc.MonthAvailability(ctx, 2026, time.March)
	if err != nil || len(cached) != 22 {
		t.Fatalf("expected cached answer, got %v err=%v", cached, err)
	}

	mc.Bump(ctx, cache.ScopeBlocks)
	fresh, err := svc.MonthAvailability(ctx, 2026, time.March)
	if err != nil || len(fresh) != 0 {
		t.Fatalf("expected no dates after bump, got %v err=%v", fresh, err)
	}
}

func TestMonthAvailabilityRejectsBadMonth(t *testing.T) {
	svc, _ := newTestService(memstore.New(), nil)
	if _, err := svc.MonthAvailability(context.Background(), 2026, 13); !apperror.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConfigSeedAndUpdate(t *testing.T) {
	svc, _ := newTestService(memstore.New(), nil)
	ctx := context.Background()

	cfg, err := svc.GetConfig(ctx)
	if err != nil || cfg.Version != 0 || cfg.StartHourUTC != 13 {
		t.Fatalf("expected seed config, got %+v err=%v", cfg, err)
	}

	bad := schedule.Default()
	bad.EndHourUTC = 10
	if _, err := svc.UpdateConfig(ctx, bad); !apperror.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	next := schedule.Default()
	next.SlotMinutes = 30
	next.AdminTimezone = ""
	saved, err := svc.UpdateConfig(ctx, next)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if saved.Version != 1 || saved.AdminTimezone != "UTC" {
		t.Fatalf("unexpected saved config: %+v", saved)
	}
	slots, err := svc.DaySlots(ctx, mondayMorning)
	if err != nil || len(slots) != 18 {
		t.Fatalf("expected 18 half-hour slots, got %d err=%v", len(slots), err)
	}
}

func TestUpdateConfigRejectsStaleVersion(t *testing.T) {
	svc, _ := newTestService(memstore.New(), nil)
	ctx := context.Background()

	// Two admins read the seed, then both save.
	first, _ := svc.GetConfig(ctx)
	second, _ := svc.GetConfig(ctx)
	first.SlotMinutes = 30
	second.MaxDaysAhead = 7

	if _, err := svc.UpdateConfig(ctx, first); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if _, err := svc.UpdateConfig(ctx, second); !errors.Is(err, apperror.ErrStaleConfig) {
		t.Fatalf("second update should be stale, got %v", err)
	}
	cfg, err := svc.GetConfig(ctx)
	if err != nil || cfg.Version != 1 || cfg.SlotMinutes != 30 || cfg.MaxDaysAhead != schedule.Default().MaxDaysAhead {
		t.Fatalf("first update should survive untouched, got %+v err=%v", cfg, err)
	}
}

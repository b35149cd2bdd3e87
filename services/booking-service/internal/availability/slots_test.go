package availability

import (
	"testing"
	"time"
)

func TestAvailableSlots_Basic(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	windowStart := time.Date(2026, 1, 28, 9, 0, 0, 0, loc)
	windowEnd := time.Date(2026, 1, 28, 10, 0, 0, 0, loc)

	busy := []Interval{
		{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)},
	}

	slots := AvailableSlots(windowStart, windowEnd, 15*time.Minute, busy, day, 0)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Format(time.RFC3339))
	}
	if !slots[1].Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected second slot 09:45, got %s", slots[1].Format(time.RFC3339))
	}
}

func TestAvailableSlots_SkipsBeforeMinStart(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	windowStart := day.Add(9 * time.Hour)
	windowEnd := day.Add(10 * time.Hour)

	minStart := day.Add(9*time.Hour + 31*time.Minute)
	slots := AvailableSlots(windowStart, windowEnd, 15*time.Minute, nil, minStart, 0)
	// 09:00, 09:15, 09:30 start before minStart. 09:45 is kept.
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if !slots[0].Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected slot 09:45, got %s", slots[0].Format(time.RFC3339))
	}
}

func TestAvailableSlots_DropsPartialTrailingSlot(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	slots := AvailableSlots(day.Add(9*time.Hour), day.Add(11*time.Hour), 45*time.Minute, nil, day, 0)
	// 09:00 and 09:45 fit; 10:30 would end at 11:15.
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
}

func TestAvailableSlots_Limit(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	busy := []Interval{{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}}
	slots := AvailableSlots(day.Add(9*time.Hour), day.Add(17*time.Hour), time.Hour, busy, day, 1)
	if len(slots) != 1 || !slots[0].Equal(day.Add(10*time.Hour)) {
		t.Fatalf("expected only the first free slot 10:00, got %v", slots)
	}
}

func TestAvailableSlots_AdjacentBusyDoesNotOverlap(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	busy := []Interval{{Start: day.Add(8 * time.Hour), End: day.Add(9 * time.Hour)}}
	slots := AvailableSlots(day.Add(9*time.Hour), day.Add(10*time.Hour), time.Hour, busy, day, 0)
	if len(slots) != 1 {
		t.Fatalf("busy interval ending at slot start must not exclude it, got %v", slots)
	}
}

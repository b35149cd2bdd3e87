// Package schedule holds the working-hours configuration that drives availability.
package schedule

import (
	"slices"
	"time"

	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/apperror"
)

// Config is the singleton schedule. Working days and hours are UTC referenced;
// AdminTimezone only affects how the admin views times.
type Config struct {
	WorkingDays        []time.Weekday
	StartHourUTC       int
	EndHourUTC         int
	SlotMinutes        int
	AdvanceNoticeHours int
	MaxDaysAhead       int
	AdminTimezone      string
	Version            int64
	UpdatedAt          time.Time
}

func Default() Config {
	return Config{
		WorkingDays:        []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		StartHourUTC:       13,
		EndHourUTC:         22,
		SlotMinutes:        60,
		AdvanceNoticeHours: 2,
		MaxDaysAhead:       30,
		AdminTimezone:      "UTC",
	}
}

// Validate returns a *apperror.ValidationError describing every broken field.
func (c Config) Validate() error {
	v := apperror.NewValidationError()

	if len(c.WorkingDays) == 0 {
		v.Add("workingDays", "at least one working day is required")
	}
	seen := map[time.Weekday]bool{}
	for _, d := range c.WorkingDays {
		if d < time.Sunday || d > time.Saturday {
			v.Add("workingDays", "days must be between 0 (Sunday) and 6 (Saturday)")
			continue
		}
		if seen[d] {
			v.Add("workingDays", "days must not repeat")
		}
		seen[d] = true
	}
	if c.StartHourUTC < 0 || c.StartHourUTC > 23 {
		v.Add("workingHoursStartUtc", "must be between 0 and 23")
	}
	if c.EndHourUTC < 1 || c.EndHourUTC > 24 {
		v.Add("workingHoursEndUtc", "must be between 1 and 24")
	}
	if c.EndHourUTC <= c.StartHourUTC {
		v.Add("workingHoursEndUtc", "must be after workingHoursStartUtc")
	}
	if c.SlotMinutes <= 0 {
		v.Add("slotDurationMinutes", "must be positive")
	} else if c.EndHourUTC > c.StartHourUTC && c.SlotMinutes > (c.EndHourUTC-c.StartHourUTC)*60 {
		v.Add("slotDurationMinutes", "must fit inside the working window")
	}
	if c.AdvanceNoticeHours < 0 {
		v.Add("advanceNoticeHours", "must not be negative")
	}
	if c.MaxDaysAhead < 0 {
		v.Add("maxDaysAhead", "must not be negative")
	}
	if c.AdminTimezone != "" {
		if _, err := time.LoadLocation(c.AdminTimezone); err != nil {
			v.Add("adminTimezone", "unknown timezone")
		}
	}
	return v.OrNil()
}

func (c Config) SlotDuration() time.Duration {
	return time.Duration(c.SlotMinutes) * time.Minute
}

func (c Config) AdvanceNotice() time.Duration {
	return time.Duration(c.AdvanceNoticeHours) * time.Hour
}

func (c Config) WorksOn(d time.Weekday) bool {
	return slices.Contains(c.WorkingDays, d)
}

// Window returns the bookable [start,end) interval for the UTC day containing day.
func (c Config) Window(day time.Time) (time.Time, time.Time) {
	midnight := Midnight(day)
	return midnight.Add(time.Duration(c.StartHourUTC) * time.Hour), midnight.Add(time.Duration(c.EndHourUTC) * time.Hour)
}

// OnGrid reports whether start is the beginning of a full slot in its day's window.
func (c Config) OnGrid(start time.Time) bool {
	if c.SlotMinutes <= 0 {
		return false
	}
	start = start.UTC()
	winStart, winEnd := c.Window(start)
	if start.Before(winStart) || start.Add(c.SlotDuration()).After(winEnd) {
		return false
	}
	return start.Sub(winStart)%c.SlotDuration() == 0
}

// Midnight truncates t to 00:00 UTC of its UTC calendar day.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole UTC calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Midnight(b).Sub(Midnight(a)).Hours() / 24)
}

func (c Config) Location() *time.Location {
	if c.AdminTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.AdminTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

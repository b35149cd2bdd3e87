package schedule

import (
	"time"
	_ "time/tzdata"
)

// WeeklyWindow is a recurring weekday window. End is exclusive; an end at or
// before start runs past midnight into the next day.
type WeeklyWindow struct {
	Day         time.Weekday
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
}

// ToUTC converts a window given in loc to UTC, using the first occurrence of
// the weekday on or after ref to pick the offset in effect.
func (w WeeklyWindow) ToUTC(loc *time.Location, ref time.Time) WeeklyWindow {
	if loc == nil {
		loc = time.UTC
	}
	local := ref.In(loc)
	shift := (int(w.Day) - int(local.Weekday()) + 7) % 7
	date := local.AddDate(0, 0, shift)

	start := time.Date(date.Year(), date.Month(), date.Day(), w.StartHour, w.StartMinute, 0, 0, loc)
	end := time.Date(date.Year(), date.Month(), date.Day(), w.EndHour, w.EndMinute, 0, 0, loc)
	if !end.After(start) {
		end = time.Date(date.Year(), date.Month(), date.Day()+1, w.EndHour, w.EndMinute, 0, 0, loc)
	}

	s := start.UTC()
	e := end.UTC()
	out := WeeklyWindow{
		Day:         s.Weekday(),
		StartHour:   s.Hour(),
		StartMinute: s.Minute(),
		EndHour:     e.Hour(),
		EndMinute:   e.Minute(),
	}
	// Ending exactly at the next UTC midnight is expressed as 24:00 rather than a wrap.
	if Midnight(e).After(Midnight(s)) && e.Hour() == 0 && e.Minute() == 0 {
		out.EndHour = 24
	}
	return out
}

package availability

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

// AvailableSlots returns the start of every contiguous slot of length duration
// laid from windowStart that ends by windowEnd, starts at or after minStart and
// does not overlap any busy interval. A positive limit stops the scan once that
// many slots are found.
func AvailableSlots(windowStart, windowEnd time.Time, duration time.Duration, busy []Interval, minStart time.Time, limit int) []time.Time {
	if duration <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(duration) {
		if t.Before(minStart) {
			continue
		}
		if overlapsAny(t, t.Add(duration), busy) {
			continue
		}
		slots = append(slots, t)
		if limit > 0 && len(slots) >= limit {
			break
		}
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}

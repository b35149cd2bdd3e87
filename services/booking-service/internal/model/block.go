package model

import "time"

type BlockKind string

const (
	BlockSpecific  BlockKind = "specific"
	BlockRecurring BlockKind = "recurring"
)

// Block excludes time from availability. Specific blocks use Start and End;
// recurring blocks use DayOfWeek and the hour/minute fields, all in UTC.
type Block struct {
	ID          string
	Kind        BlockKind
	Reason      string
	Start       time.Time
	End         time.Time
	DayOfWeek   time.Weekday
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
	CreatedAt   time.Time
}

// StartOffset and EndOffset are the recurring window bounds measured from UTC midnight.
func (b Block) StartOffset() time.Duration {
	return time.Duration(b.StartHour)*time.Hour + time.Duration(b.StartMinute)*time.Minute
}

func (b Block) EndOffset() time.Duration {
	return time.Duration(b.EndHour)*time.Hour + time.Duration(b.EndMinute)*time.Minute
}

// Wraps reports whether a recurring window runs past UTC midnight into the next weekday.
// A window whose end equals its start is empty, not a full day.
func (b Block) Wraps() bool {
	return b.Kind == BlockRecurring && b.EndOffset() < b.StartOffset()
}

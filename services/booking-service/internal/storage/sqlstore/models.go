package sqlstore

import (
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/schedule"
)

// Times are stored as unix seconds so range predicates compare integers.

type configRow struct {
	ID                 int    `gorm:"primaryKey"`
	WorkingDays        string `gorm:"not null"`
	StartHourUTC       int    `gorm:"not null"`
	EndHourUTC         int    `gorm:"not null"`
	SlotMinutes        int    `gorm:"not null"`
	AdvanceNoticeHours int    `gorm:"not null"`
	MaxDaysAhead       int    `gorm:"not null"`
	AdminTimezone      string `gorm:"not null;default:UTC"`
	Version            int64  `gorm:"not null"`
	UpdatedAt          time.Time
}

func (configRow) TableName() string { return "schedule_config" }

type blockRow struct {
	ID          string `gorm:"primaryKey"`
	Kind        string `gorm:"not null"`
	Reason      string `gorm:"not null;default:''"`
	StartUnix   int64
	EndUnix     int64
	DayOfWeek   int
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
	CreatedAt   time.Time `gorm:"not null;index"`
}

func (blockRow) TableName() string { return "blocked_slots" }

type bookingRow struct {
	ID             string `gorm:"primaryKey"`
	ClientName     string `gorm:"not null"`
	ClientEmail    string `gorm:"not null"`
	ClientTimezone string `gorm:"not null"`
	Message        string `gorm:"not null;default:''"`
	StartUnix      int64  `gorm:"not null;index"`
	EndUnix        int64  `gorm:"not null"`
	Status         string `gorm:"not null;index"`
	CreatedAt      time.Time
	CancelledAt    *time.Time
}

func (bookingRow) TableName() string { return "bookings" }

type outboxRow struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	EventID       string `gorm:"not null;uniqueIndex"`
	AggregateType string `gorm:"not null"`
	AggregateID   string `gorm:"not null"`
	EventType     string `gorm:"not null"`
	Payload       []byte `gorm:"not null"`
	Traceparent   string `gorm:"not null;default:''"`
	Tracestate    string `gorm:"not null;default:''"`
	CreatedAt     time.Time
	PublishedAt   *time.Time `gorm:"index"`
}

func (outboxRow) TableName() string { return "outbox_events" }

func encodeDays(days []time.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

func decodeDays(raw string) []time.Weekday {
	var out []time.Weekday
	for _, p := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		out = append(out, time.Weekday(n))
	}
	return out
}

func (r configRow) toConfig() schedule.Config {
	return schedule.Config{
		WorkingDays:        decodeDays(r.WorkingDays),
		StartHourUTC:       r.StartHourUTC,
		EndHourUTC:         r.EndHourUTC,
		SlotMinutes:        r.SlotMinutes,
		AdvanceNoticeHours: r.AdvanceNoticeHours,
		MaxDaysAhead:       r.MaxDaysAhead,
		AdminTimezone:      r.AdminTimezone,
		Version:            r.Version,
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
}

func blockToRow(b model.Block) blockRow {
	r := blockRow{
		ID:        b.ID,
		Kind:      string(b.Kind),
		Reason:    b.Reason,
		CreatedAt: b.CreatedAt.UTC(),
	}
	switch b.Kind {
	case model.BlockSpecific:
		r.StartUnix = b.Start.Unix()
		r.EndUnix = b.End.Unix()
	case model.BlockRecurring:
		r.DayOfWeek = int(b.DayOfWeek)
		r.StartHour, r.StartMinute = b.StartHour, b.StartMinute
		r.EndHour, r.EndMinute = b.EndHour, b.EndMinute
	}
	return r
}

func (r blockRow) toBlock() model.Block {
	b := model.Block{
		ID:        r.ID,
		Kind:      model.BlockKind(r.Kind),
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt.UTC(),
	}
	switch b.Kind {
	case model.BlockSpecific:
		b.Start = time.Unix(r.StartUnix, 0).UTC()
		b.End = time.Unix(r.EndUnix, 0).UTC()
	case model.BlockRecurring:
		b.DayOfWeek = time.Weekday(r.DayOfWeek)
		b.StartHour, b.StartMinute = r.StartHour, r.StartMinute
		b.EndHour, b.EndMinute = r.EndHour, r.EndMinute
	}
	return b
}

func bookingToRow(b model.Booking) bookingRow {
	return bookingRow{
		ID:             b.ID,
		ClientName:     b.ClientName,
		ClientEmail:    b.ClientEmail,
		ClientTimezone: b.ClientTimezone,
		Message:        b.Message,
		StartUnix:      b.StartUTC.Unix(),
		EndUnix:        b.EndUTC.Unix(),
		Status:         string(b.Status),
		CreatedAt:      b.CreatedAt.UTC(),
		CancelledAt:    b.CancelledAt,
	}
}

func (r bookingRow) toBooking() model.Booking {
	b := model.Booking{
		ID:             r.ID,
		ClientName:     r.ClientName,
		ClientEmail:    r.ClientEmail,
		ClientTimezone: r.ClientTimezone,
		Message:        r.Message,
		StartUTC:       time.Unix(r.StartUnix, 0).UTC(),
		EndUTC:         time.Unix(r.EndUnix, 0).UTC(),
		Status:         model.BookingStatus(r.Status),
		CreatedAt:      r.CreatedAt.UTC(),
	}
	if r.CancelledAt != nil {
		at := r.CancelledAt.UTC()
		b.CancelledAt = &at
	}
	return b
}

package model

import "time"

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type Booking struct {
	ID             string
	ClientName     string
	ClientEmail    string
	ClientTimezone string
	Message        string
	StartUTC       time.Time
	EndUTC         time.Time
	Status         BookingStatus
	CreatedAt      time.Time
	CancelledAt    *time.Time
}

// Overlaps reports whether [start,end) intersects the booking interval.
func (b Booking) Overlaps(start, end time.Time) bool {
	return start.Before(b.EndUTC) && b.StartUTC.Before(end)
}

// BookingFilter selects bookings for the admin listing.
type BookingFilter string

const (
	FilterAll       BookingFilter = "all"
	FilterUpcoming  BookingFilter = "upcoming"
	FilterPast      BookingFilter = "past"
	FilterCancelled BookingFilter = "cancelled"
)

func ParseBookingFilter(raw string) (BookingFilter, bool) {
	switch BookingFilter(raw) {
	case "", FilterAll:
		return FilterAll, true
	case FilterUpcoming, FilterPast, FilterCancelled:
		return BookingFilter(raw), true
	}
	return "", false
}

// Match applies the filter to a booking as of now. Upcoming and past only
// consider confirmed bookings.
func (f BookingFilter) Match(b Booking, now time.Time) bool {
	switch f {
	case FilterUpcoming:
		return b.Status == BookingConfirmed && !b.StartUTC.Before(now)
	case FilterPast:
		return b.Status == BookingConfirmed && b.StartUTC.Before(now)
	case FilterCancelled:
		return b.Status == BookingCancelled
	default:
		return true
	}
}

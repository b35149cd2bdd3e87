package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/blocks"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/schedule"
)

type bookingItem struct {
	ID             string  `json:"id"`
	ClientName     string  `json:"clientName"`
	ClientEmail    string  `json:"clientEmail"`
	ClientTimezone string  `json:"clientTimezone"`
	Message        string  `json:"message,omitempty"`
	StartISO       string  `json:"startIso"`
	EndISO         string  `json:"endIso"`
	StartLocal     string  `json:"startLocal"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"createdAt"`
	CancelledAt    *string `json:"cancelledAt,omitempty"`
}

// toBookingItem renders b; StartLocal is in the admin's display zone.
func toBookingItem(b model.Booking, loc *time.Location) bookingItem {
	item := bookingItem{
		ID:             b.ID,
		ClientName:     b.ClientName,
		ClientEmail:    b.ClientEmail,
		ClientTimezone: b.ClientTimezone,
		Message:        b.Message,
		StartISO:       isoUTC(b.StartUTC),
		EndISO:         isoUTC(b.EndUTC),
		StartLocal:     b.StartUTC.In(loc).Format(time.RFC3339),
		Status:         string(b.Status),
		CreatedAt:      isoUTC(b.CreatedAt),
	}
	if b.CancelledAt != nil {
		s := isoUTC(*b.CancelledAt)
		item.CancelledAt = &s
	}
	return item
}

// Bookings serves GET /bookings?filter= and DELETE /bookings?id=.
func (h *Handler) Bookings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		list, err := h.bookings.ListBookings(ctx, strings.TrimSpace(r.URL.Query().Get("filter")))
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		cfg, err := h.bookings.GetConfig(ctx)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		loc := cfg.Location()
		items := make([]bookingItem, 0, len(list))
		for _, b := range list {
			items = append(items, toBookingItem(b, loc))
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookings": items})
	case http.MethodDelete:
		if err := h.bookings.Cancel(ctx, r.URL.Query().Get("id")); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

type blockItem struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Reason         string `json:"reason,omitempty"`
	StartISO       string `json:"startIso,omitempty"`
	EndISO         string `json:"endIso,omitempty"`
	DayOfWeek      *int   `json:"dayOfWeek,omitempty"`
	StartHourUTC   *int   `json:"startHourUtc,omitempty"`
	StartMinuteUTC *int   `json:"startMinuteUtc,omitempty"`
	EndHourUTC     *int   `json:"endHourUtc,omitempty"`
	EndMinuteUTC   *int   `json:"endMinuteUtc,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

func toBlockItem(b model.Block) blockItem {
	item := blockItem{ID: b.ID, Type: string(b.Kind), Reason: b.Reason, CreatedAt: isoUTC(b.CreatedAt)}
	if b.Kind == model.BlockSpecific {
		item.StartISO = isoUTC(b.Start)
		item.EndISO = isoUTC(b.End)
		return item
	}
	dow := int(b.DayOfWeek)
	sh, sm, eh, em := b.StartHour, b.StartMinute, b.EndHour, b.EndMinute
	item.DayOfWeek, item.StartHourUTC, item.StartMinuteUTC, item.EndHourUTC, item.EndMinuteUTC = &dow, &sh, &sm, &eh, &em
	return item
}

// Blocks serves GET, POST and DELETE /block.
func (h *Handler) Blocks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		list, err := h.blocks.List(ctx)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		items := make([]blockItem, 0, len(list))
		for _, b := range list {
			items = append(items, toBlockItem(b))
		}
		writeJSON(w, http.StatusOK, map[string]any{"blocks": items})
	case http.MethodPost:
		var req blocks.CreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		b, err := h.blocks.Create(ctx, req)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": b.ID})
	case http.MethodDelete:
		if err := h.blocks.Delete(ctx, r.URL.Query().Get("id")); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

type configBody struct {
	WorkingDays          []int  `json:"workingDays"`
	WorkingHoursStartUTC int    `json:"workingHoursStartUtc"`
	WorkingHoursEndUTC   int    `json:"workingHoursEndUtc"`
	SlotDurationMinutes  int    `json:"slotDurationMinutes"`
	AdvanceNoticeHours   int    `json:"advanceNoticeHours"`
	MaxDaysAhead         int    `json:"maxDaysAhead"`
	AdminTimezone        string `json:"adminTimezone"`
	Version              int64  `json:"version"`
	UpdatedAt            string `json:"updatedAt,omitempty"`
}

// configPatch is the PUT /config body; omitted fields keep their current value.
// Version, when sent, must match the stored version or the save is rejected.
type configPatch struct {
	Version              *int64  `json:"version"`
	WorkingDays          *[]int  `json:"workingDays"`
	WorkingHoursStartUTC *int    `json:"workingHoursStartUtc"`
	WorkingHoursEndUTC   *int    `json:"workingHoursEndUtc"`
	SlotDurationMinutes  *int    `json:"slotDurationMinutes"`
	AdvanceNoticeHours   *int    `json:"advanceNoticeHours"`
	MaxDaysAhead         *int    `json:"maxDaysAhead"`
	AdminTimezone        *string `json:"adminTimezone"`
}

func toConfigBody(cfg schedule.Config) configBody {
	days := make([]int, 0, len(cfg.WorkingDays))
	for _, d := range cfg.WorkingDays {
		days = append(days, int(d))
	}
	body := configBody{
		WorkingDays:          days,
		WorkingHoursStartUTC: cfg.StartHourUTC,
		WorkingHoursEndUTC:   cfg.EndHourUTC,
		SlotDurationMinutes:  cfg.SlotMinutes,
		AdvanceNoticeHours:   cfg.AdvanceNoticeHours,
		MaxDaysAhead:         cfg.MaxDaysAhead,
		AdminTimezone:        cfg.AdminTimezone,
		Version:              cfg.Version,
	}
	if !cfg.UpdatedAt.IsZero() {
		body.UpdatedAt = isoUTC(cfg.UpdatedAt)
	}
	return body
}

func (p configPatch) apply(cfg schedule.Config) schedule.Config {
	if p.Version != nil {
		cfg.Version = *p.Version
	}
	if p.WorkingDays != nil {
		cfg.WorkingDays = make([]time.Weekday, 0, len(*p.WorkingDays))
		for _, d := range *p.WorkingDays {
			cfg.WorkingDays = append(cfg.WorkingDays, time.Weekday(d))
		}
	}
	if p.WorkingHoursStartUTC != nil {
		cfg.StartHourUTC = *p.WorkingHoursStartUTC
	}
	if p.WorkingHoursEndUTC != nil {
		cfg.EndHourUTC = *p.WorkingHoursEndUTC
	}
	if p.SlotDurationMinutes != nil {
		cfg.SlotMinutes = *p.SlotDurationMinutes
	}
	if p.AdvanceNoticeHours != nil {
		cfg.AdvanceNoticeHours = *p.AdvanceNoticeHours
	}
	if p.MaxDaysAhead != nil {
		cfg.MaxDaysAhead = *p.MaxDaysAhead
	}
	if p.AdminTimezone != nil {
		cfg.AdminTimezone = strings.TrimSpace(*p.AdminTimezone)
	}
	return cfg
}

// Config serves GET and PUT /config.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		cfg, err := h.bookings.GetConfig(ctx)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"config": toConfigBody(cfg)})
	case http.MethodPut:
		var patch configPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		current, err := h.bookings.GetConfig(ctx)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		saved, err := h.bookings.UpdateConfig(ctx, patch.apply(current))
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"config": toConfigBody(saved)})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut)
	}
}

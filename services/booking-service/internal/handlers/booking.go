package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/meetslot/libs/httpx"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/blocks"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/booking"
)

type Handler struct {
	bookings *booking.Service
	blocks   *blocks.Registry
	logger   *slog.Logger
}

func New(bookings *booking.Service, registry *blocks.Registry, logger *slog.Logger) *Handler {
	return &Handler{bookings: bookings, blocks: registry, logger: logger}
}

// RouteOptions carries the per-route middleware chosen at startup.
type RouteOptions struct {
	// Admin guards the admin routes. Nil rejects every admin request.
	Admin func(http.Handler) http.Handler
	// BookLimit throttles POST /book. Nil leaves it unthrottled.
	BookLimit httpx.Middleware
}

func (h *Handler) Register(mux *http.ServeMux, opts RouteOptions) {
	admin := opts.Admin
	if admin == nil {
		admin = func(http.Handler) http.Handler { return http.HandlerFunc(Unauthorized) }
	}
	book := http.Handler(http.HandlerFunc(h.Book))
	if opts.BookLimit != nil {
		book = opts.BookLimit(book)
	}

	mux.HandleFunc("/availability", h.Availability)
	mux.HandleFunc("/slots", h.Slots)
	mux.Handle("/book", book)
	mux.Handle("/bookings", admin(http.HandlerFunc(h.Bookings)))
	mux.Handle("/block", admin(http.HandlerFunc(h.Blocks)))
	mux.Handle("/config", admin(http.HandlerFunc(h.Config)))
}

type slotItem struct {
	StartISO string `json:"startIso"`
	EndISO   string `json:"endIso"`
}

type bookResponse struct {
	BookingID   string `json:"bookingId"`
	StartISO    string `json:"startIso"`
	EndISO      string `json:"endIso"`
	MeetingLink string `json:"meetingLink"`
}

func isoUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Availability serves GET /availability?year=&month=.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	q := r.URL.Query()
	verr := apperror.NewValidationError()
	year, err := strconv.Atoi(strings.TrimSpace(q.Get("year")))
	if err != nil {
		verr.Add("year", "must be an integer")
	}
	month, err := strconv.Atoi(strings.TrimSpace(q.Get("month")))
	if err != nil {
		verr.Add("month", "must be an integer")
	}
	if verr.HasErrors() {
		writeError(w, r, h.logger, verr)
		return
	}

	dates, err := h.bookings.MonthAvailability(r.Context(), year, time.Month(month))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"availableDates": dates})
}

// Slots serves GET /slots?date=YYYY-MM-DD.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	day, err := time.Parse(time.DateOnly, strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		writeError(w, r, h.logger, apperror.Field("date", "must be YYYY-MM-DD"))
		return
	}
	slots, err := h.bookings.DaySlots(r.Context(), day)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{StartISO: isoUTC(s.Start), EndISO: isoUTC(s.End)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": items})
}

// Book serves POST /book.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req booking.BookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	conf, err := h.bookings.Book(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, bookResponse{
		BookingID:   conf.BookingID,
		StartISO:    isoUTC(conf.Start),
		EndISO:      isoUTC(conf.End),
		MeetingLink: conf.MeetingLink,
	})
}

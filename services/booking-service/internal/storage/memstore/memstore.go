// Package memstore is a process-local storage.Store for development and tests.
// Bookings on one UTC day are serialised by a per-key mutex and every commit
// re-checks the no-overlap rule.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	otelx "github.com/md-rashed-zaman/meetslot/libs/otel"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/storage"
)

type Store struct {
	mu       sync.RWMutex
	config   *schedule.Config
	blocks   []model.Block
	bookings map[string]model.Booking
	events   []storedEvent
	nextID   int64

	locks     sync.Map // lock key -> *sync.Mutex
	publishMu sync.Mutex
	now       func() time.Time
}

type storedEvent struct {
	outbox.Record
	published bool
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		bookings: map[string]model.Booking{},
		now:      time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) LoadConfig(context.Context) (schedule.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return schedule.Config{}, storage.ErrNotFound
	}
	return cloneConfig(*s.config), nil
}

func (s *Store) SaveConfig(_ context.Context, cfg schedule.Config) (schedule.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current int64
	if s.config != nil {
		current = s.config.Version
	}
	if cfg.Version != current {
		return schedule.Config{}, storage.ErrStaleVersion
	}
	cfg = cloneConfig(cfg)
	cfg.Version = current + 1
	cfg.UpdatedAt = s.now().UTC()
	s.config = &cfg
	return cloneConfig(cfg), nil
}

func (s *Store) ListBlocks(context.Context) ([]model.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.blocks), nil
}

func (s *Store) InsertBlock(_ context.Context, b model.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, b)
	return nil
}

func (s *Store) DeleteBlock(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.blocks {
		if b.ID == id {
			s.blocks = slices.Delete(s.blocks, i, i+1)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) ConfirmedBetween(_ context.Context, from, to time.Time) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.confirmedOverlapping(from, to), nil
}

func (s *Store) ListBookings(context.Context) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartUTC.Equal(out[j].StartUTC) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartUTC.After(out[j].StartUTC)
	})
	return out, nil
}

// Events returns every outbox record written so far, oldest first.
func (s *Store) Events() []outbox.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]outbox.Record, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Record)
	}
	return out
}

func (s *Store) InTx(ctx context.Context, lockKey string, fn func(ctx context.Context, tx storage.Tx) error) error {
	if lockKey != "" {
		m, _ := s.locks.LoadOrStore(lockKey, &sync.Mutex{})
		mu := m.(*sync.Mutex)
		mu.Lock()
		defer mu.Unlock()
	}
	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) PublishPending(ctx context.Context, limit int, deliver func(context.Context, []outbox.Record) error) (int, error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.RLock()
	var batch []outbox.Record
	for _, e := range s.events {
		if e.published {
			continue
		}
		batch = append(batch, e.Record)
		if len(batch) >= limit {
			break
		}
	}
	s.mu.RUnlock()
	if len(batch) == 0 {
		return 0, nil
	}

	if err := deliver(ctx, batch); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delivered := map[int64]bool{}
	for _, r := range batch {
		delivered[r.ID] = true
	}
	for i := range s.events {
		if delivered[s.events[i].ID] {
			s.events[i].published = true
		}
	}
	return len(batch), nil
}

// confirmedOverlapping expects s.mu to be held.
func (s *Store) confirmedOverlapping(from, to time.Time) []model.Booking {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.Status == model.BookingConfirmed && b.Overlaps(from, to) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartUTC.Before(out[j].StartUTC) })
	return out
}

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := map[string]bool{}
	for _, c := range tx.cancels {
		b, ok := s.bookings[c.id]
		if !ok || b.Status != model.BookingConfirmed {
			return storage.ErrNotFound
		}
		cancelled[c.id] = true
	}
	for i, nb := range tx.inserts {
		if _, exists := s.bookings[nb.ID]; exists {
			return storage.ErrConflict
		}
		for _, b := range s.confirmedOverlapping(nb.StartUTC, nb.EndUTC) {
			if !cancelled[b.ID] {
				return storage.ErrConflict
			}
		}
		for _, other := range tx.inserts[:i] {
			if other.Overlaps(nb.StartUTC, nb.EndUTC) {
				return storage.ErrConflict
			}
		}
	}

	for _, c := range tx.cancels {
		b := s.bookings[c.id]
		at := c.at.UTC()
		b.Status = model.BookingCancelled
		b.CancelledAt = &at
		s.bookings[c.id] = b
	}
	for _, nb := range tx.inserts {
		s.bookings[nb.ID] = nb
	}
	for _, e := range tx.events {
		s.nextID++
		e.ID = s.nextID
		s.events = append(s.events, storedEvent{Record: e})
	}
	return nil
}

type pendingCancel struct {
	id string
	at time.Time
}

// memTx buffers writes until commit so a failed fn leaves no trace.
type memTx struct {
	s       *Store
	inserts []model.Booking
	cancels []pendingCancel
	events  []outbox.Record
}

func (t *memTx) ConfirmedOverlapping(_ context.Context, start, end time.Time) ([]model.Booking, error) {
	t.s.mu.RLock()
	out := t.s.confirmedOverlapping(start, end)
	t.s.mu.RUnlock()
	for _, b := range t.inserts {
		if b.Overlaps(start, end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memTx) InsertBooking(_ context.Context, b model.Booking) error {
	t.inserts = append(t.inserts, b)
	return nil
}

func (t *memTx) GetBookingForUpdate(_ context.Context, id string) (model.Booking, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	b, ok := t.s.bookings[id]
	if !ok {
		return model.Booking{}, storage.ErrNotFound
	}
	return b, nil
}

func (t *memTx) CancelBooking(_ context.Context, id string, at time.Time) error {
	t.cancels = append(t.cancels, pendingCancel{id: id, at: at})
	return nil
}

func (t *memTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	tc := otelx.CaptureTraceContext(ctx)
	t.events = append(t.events, outbox.Record{
		EventID:       uuid.NewString(),
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.EventType,
		Payload:       slices.Clone(evt.Payload),
		Traceparent:   tc.Parent,
		Tracestate:    tc.State,
		CreatedAt:     t.s.now().UTC(),
	})
	return nil
}

func cloneConfig(cfg schedule.Config) schedule.Config {
	cfg.WorkingDays = slices.Clone(cfg.WorkingDays)
	return cfg
}

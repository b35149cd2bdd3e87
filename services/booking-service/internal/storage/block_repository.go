package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/model"
)

func (s *PgStore) ListBlocks(ctx context.Context) ([]model.Block, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, kind, reason, start_utc, end_utc,
			COALESCE(day_of_week, 0), COALESCE(start_hour, 0), COALESCE(start_minute, 0),
			COALESCE(end_hour, 0), COALESCE(end_minute, 0), created_at
		FROM blocked_slots
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []model.Block
	for rows.Next() {
		var b model.Block
		var kind string
		var start, end *time.Time
		var dow, sh, sm, eh, em int16
		if err := rows.Scan(&b.ID, &kind, &b.Reason, &start, &end, &dow, &sh, &sm, &eh, &em, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Kind = model.BlockKind(kind)
		if start != nil {
			b.Start = start.UTC()
		}
		if end != nil {
			b.End = end.UTC()
		}
		b.DayOfWeek = time.Weekday(dow)
		b.StartHour, b.StartMinute = int(sh), int(sm)
		b.EndHour, b.EndMinute = int(eh), int(em)
		b.CreatedAt = b.CreatedAt.UTC()
		blocks = append(blocks, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return blocks, nil
}

func (s *PgStore) InsertBlock(ctx context.Context, b model.Block) error {
	var start, end *time.Time
	var dow, sh, sm, eh, em *int16
	switch b.Kind {
	case model.BlockSpecific:
		st, en := b.Start.UTC(), b.End.UTC()
		start, end = &st, &en
	case model.BlockRecurring:
		dow = int16Ptr(int(b.DayOfWeek))
		sh, sm = int16Ptr(b.StartHour), int16Ptr(b.StartMinute)
		eh, em = int16Ptr(b.EndHour), int16Ptr(b.EndMinute)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blocked_slots
			(id, kind, reason, start_utc, end_utc, day_of_week, start_hour, start_minute, end_hour, end_minute, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, b.ID, string(b.Kind), b.Reason, start, end, dow, sh, sm, eh, em, b.CreatedAt.UTC())
	return err
}

func (s *PgStore) DeleteBlock(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM blocked_slots WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func int16Ptr(v int) *int16 {
	n := int16(v)
	return &n
}

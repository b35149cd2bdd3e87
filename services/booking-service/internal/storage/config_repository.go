package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/schedule"
)

func (s *PgStore) LoadConfig(ctx context.Context) (schedule.Config, error) {
	var cfg schedule.Config
	var days []int16
	var startHour, endHour int16
	err := s.pool.QueryRow(ctx, `
		SELECT working_days, start_hour_utc, end_hour_utc, slot_minutes, advance_notice_hours,
			max_days_ahead, admin_timezone, version, updated_at
		FROM schedule_config
		WHERE id = 1
	`).Scan(&days, &startHour, &endHour, &cfg.SlotMinutes, &cfg.AdvanceNoticeHours,
		&cfg.MaxDaysAhead, &cfg.AdminTimezone, &cfg.Version, &cfg.UpdatedAt)
	if err != nil {
		return schedule.Config{}, mapPgError(err)
	}
	cfg.StartHourUTC = int(startHour)
	cfg.EndHourUTC = int(endHour)
	for _, d := range days {
		cfg.WorkingDays = append(cfg.WorkingDays, time.Weekday(d))
	}
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return cfg, nil
}

func (s *PgStore) SaveConfig(ctx context.Context, cfg schedule.Config) (schedule.Config, error) {
	days := make([]int16, 0, len(cfg.WorkingDays))
	for _, d := range cfg.WorkingDays {
		days = append(days, int16(d))
	}
	args := []any{days, int16(cfg.StartHourUTC), int16(cfg.EndHourUTC), cfg.SlotMinutes, cfg.AdvanceNoticeHours,
		cfg.MaxDaysAhead, cfg.AdminTimezone}

	// The first save inserts the singleton row; later saves only match the
	// version they were read at.
	query := `
		INSERT INTO schedule_config
			(id, working_days, start_hour_utc, end_hour_utc, slot_minutes, advance_notice_hours, max_days_ahead, admin_timezone, version, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, 1, now())
		ON CONFLICT (id) DO NOTHING
		RETURNING version, updated_at
	`
	if cfg.Version > 0 {
		query = `
			UPDATE schedule_config SET
				working_days = $1,
				start_hour_utc = $2,
				end_hour_utc = $3,
				slot_minutes = $4,
				advance_notice_hours = $5,
				max_days_ahead = $6,
				admin_timezone = $7,
				version = version + 1,
				updated_at = now()
			WHERE id = 1 AND version = $8
			RETURNING version, updated_at
		`
		args = append(args, cfg.Version)
	}
	err := s.pool.QueryRow(ctx, query, args...).Scan(&cfg.Version, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return schedule.Config{}, ErrStaleVersion
	}
	if err != nil {
		return schedule.Config{}, err
	}
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return cfg, nil
}

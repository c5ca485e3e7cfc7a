package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/entrenia/booking-engine/internal/availability"
)

// ScheduleRepo reads the inputs of the availability calculator: weekly rules,
// blocks, and confirmed appointment windows.
type ScheduleRepo struct {
	db DB
}

func NewScheduleRepo(db DB) *ScheduleRepo {
	if db == nil {
		panic("store: db required")
	}
	return &ScheduleRepo{db: db}
}

// ActiveRules returns the tenant's active weekly rules.
func (r *ScheduleRepo) ActiveRules(ctx context.Context, trainerID uuid.UUID) ([]availability.Rule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT day_of_week, start_time, end_time, is_active
		FROM availability_rules
		WHERE trainer_id = $1 AND is_active
		ORDER BY day_of_week, start_time
	`, trainerID)
	if err != nil {
		return nil, fmt.Errorf("store: list rules: %w", err)
	}
	defer rows.Close()

	var rules []availability.Rule
	for rows.Next() {
		var rule availability.Rule
		if err := rows.Scan(&rule.Weekday, &rule.Start, &rule.End, &rule.Active); err != nil {
			return nil, fmt.Errorf("store: scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rules: %w", err)
	}
	return rules, nil
}

// BlocksBetween returns block windows intersecting [from, to). The calculator
// only needs the interval; the reason stays on the Block record.
func (r *ScheduleRepo) BlocksBetween(ctx context.Context, trainerID uuid.UUID, from, to time.Time) ([]availability.Window, error) {
	blocks, err := r.blocksBetween(ctx, trainerID, from, to)
	if err != nil {
		return nil, err
	}
	windows := make([]availability.Window, 0, len(blocks))
	for _, b := range blocks {
		windows = append(windows, availability.Window{Start: b.StartAt, End: b.EndAt})
	}
	return windows, nil
}

func (r *ScheduleRepo) blocksBetween(ctx context.Context, trainerID uuid.UUID, from, to time.Time) ([]Block, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, trainer_id, start_at, end_at, reason
		FROM blocks
		WHERE trainer_id = $1 AND start_at < $3 AND end_at > $2
		ORDER BY start_at
	`, trainerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("store: list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []Block
	for rows.Next() {
		var b Block
		if err := rows.Scan(&b.ID, &b.TrainerID, &b.StartAt, &b.EndAt, &b.Reason); err != nil {
			return nil, fmt.Errorf("store: scan block: %w", err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list blocks: %w", err)
	}
	return blocks, nil
}

// ConfirmedBetween returns confirmed appointment windows intersecting
// [from, to). Cancelled appointments do not occupy time.
func (r *ScheduleRepo) ConfirmedBetween(ctx context.Context, trainerID uuid.UUID, from, to time.Time) ([]availability.Window, error) {
	return r.windows(ctx, `
		SELECT start_at, end_at
		FROM appointments
		WHERE trainer_id = $1 AND status = 'confirmed' AND start_at < $3 AND end_at > $2
		ORDER BY start_at
	`, "list confirmed appointments", trainerID, from, to)
}

func (r *ScheduleRepo) windows(ctx context.Context, query, verb string, args ...any) ([]availability.Window, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", verb, err)
	}
	defer rows.Close()

	var windows []availability.Window
	for rows.Next() {
		var w availability.Window
		if err := rows.Scan(&w.Start, &w.End); err != nil {
			return nil, fmt.Errorf("store: %s: %w", verb, err)
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: %s: %w", verb, err)
	}
	return windows, nil
}

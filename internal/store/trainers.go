package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TrainerRepo resolves tenant identities.
type TrainerRepo struct {
	db DB
}

func NewTrainerRepo(db DB) *TrainerRepo {
	if db == nil {
		panic("store: db required")
	}
	return &TrainerRepo{db: db}
}

// ResolveByWANumber returns the trainer owning the given WhatsApp number. If
// no trainer matches, the sole trainer is returned when exactly one exists,
// and a default one is lazily created when none exist at all.
func (r *TrainerRepo) ResolveByWANumber(ctx context.Context, waNumber string) (Trainer, error) {
	trainer, err := r.scanOne(ctx, `
		SELECT id, name, wa_number, mode, created_at
		FROM trainers
		WHERE wa_number = $1
	`, waNumber)
	if err == nil {
		return trainer, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Trainer{}, err
	}

	trainer, err = r.scanOne(ctx, `
		SELECT id, name, wa_number, mode, created_at
		FROM trainers
		ORDER BY created_at
		LIMIT 1
	`)
	if err == nil {
		return trainer, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Trainer{}, err
	}

	return r.createDefault(ctx, waNumber)
}

func (r *TrainerRepo) scanOne(ctx context.Context, query string, args ...any) (Trainer, error) {
	var t Trainer
	var mode string
	err := r.db.QueryRow(ctx, query, args...).Scan(&t.ID, &t.Name, &t.WANumber, &mode, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Trainer{}, ErrNotFound
	}
	if err != nil {
		return Trainer{}, fmt.Errorf("store: load trainer: %w", err)
	}
	t.Mode = TrainerMode(mode)
	return t, nil
}

func (r *TrainerRepo) createDefault(ctx context.Context, waNumber string) (Trainer, error) {
	t := Trainer{
		ID:        uuid.New(),
		Name:      "Entrenador",
		WANumber:  waNumber,
		Mode:      ModeAppointments,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO trainers (id, name, wa_number, mode, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.Name, t.WANumber, string(t.Mode), t.CreatedAt)
	if err != nil {
		return Trainer{}, fmt.Errorf("store: create default trainer: %w", err)
	}
	return t, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// AppointmentRepo writes bookings. The insert is conditional on no confirmed
// overlap existing at write time, so the storage layer rejects double
// bookings even when two confirmations race past the application pre-check.
type AppointmentRepo struct {
	db DB
}

func NewAppointmentRepo(db DB) *AppointmentRepo {
	if db == nil {
		panic("store: db required")
	}
	return &AppointmentRepo{db: db}
}

// HasOverlap reports whether any confirmed appointment intersects
// [start, end).
func (r *AppointmentRepo) HasOverlap(ctx context.Context, trainerID uuid.UUID, start, end time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE trainer_id = $1 AND status = 'confirmed'
			  AND start_at < $3 AND end_at > $2
		)
	`, trainerID, start, end).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: overlap check: %w", err)
	}
	return exists, nil
}

// InsertConfirmed atomically inserts a confirmed appointment unless a
// confirmed overlap already exists, in which case it returns ErrSlotTaken.
func (r *AppointmentRepo) InsertConfirmed(ctx context.Context, appt Appointment) error {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	appt.Status = AppointmentConfirmed

	tag, err := r.db.Exec(ctx, `
		INSERT INTO appointments (id, trainer_id, client_id, service_id, start_at, end_at, status, source, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
		WHERE NOT EXISTS (
			SELECT 1 FROM appointments
			WHERE trainer_id = $2 AND status = 'confirmed'
			  AND start_at < $6 AND end_at > $5
		)
	`, appt.ID, appt.TrainerID, appt.ClientID, appt.ServiceID, appt.StartAt, appt.EndAt,
		appt.Status, appt.Source, appt.CreatedAt)
	if err != nil {
		// The gist exclusion constraint catches the race the NOT EXISTS
		// guard cannot see; both paths mean the slot is gone.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
			return ErrSlotTaken
		}
		return fmt.Errorf("store: insert appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotTaken
	}
	return nil
}

package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ClientRepo persists end customers keyed by phone within a tenant.
type ClientRepo struct {
	db DB
}

func NewClientRepo(db DB) *ClientRepo {
	if db == nil {
		panic("store: db required")
	}
	return &ClientRepo{db: db}
}

// Upsert creates the client on first contact and refreshes the display name
// afterwards. It runs on every inbound message regardless of what the
// conversation does with it.
func (r *ClientRepo) Upsert(ctx context.Context, trainerID uuid.UUID, phone, name string) (Client, error) {
	c := Client{
		ID:        uuid.New(),
		TrainerID: trainerID,
		Phone:     phone,
		Name:      strings.TrimSpace(name),
		CreatedAt: time.Now().UTC(),
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO clients (id, trainer_id, phone, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (trainer_id, phone) DO UPDATE
		SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE clients.name END
		RETURNING id, name, created_at
	`, c.ID, c.TrainerID, c.Phone, c.Name, c.CreatedAt).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return Client{}, fmt.Errorf("store: upsert client: %w", err)
	}
	return c, nil
}

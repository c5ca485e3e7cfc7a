package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const defaultSystemPrompt = "Eres el asistente virtual de un entrenador personal. Responde de forma breve y amable, y orienta al cliente a agendar una sesión."

// AISettingsRepo reads the tenant's fallback-assistant configuration.
type AISettingsRepo struct {
	db DB
}

func NewAISettingsRepo(db DB) *AISettingsRepo {
	if db == nil {
		panic("store: db required")
	}
	return &AISettingsRepo{db: db}
}

// ForTrainer returns the tenant's AI settings, falling back to defaults when
// none are configured.
func (r *AISettingsRepo) ForTrainer(ctx context.Context, trainerID uuid.UUID) (AISettings, error) {
	s := AISettings{TrainerID: trainerID}
	err := r.db.QueryRow(ctx, `
		SELECT system_prompt, knowledge, temperature, scraped_content
		FROM ai_settings
		WHERE trainer_id = $1
	`, trainerID).Scan(&s.SystemPrompt, &s.Knowledge, &s.Temperature, &s.ScrapedContent)
	if errors.Is(err, pgx.ErrNoRows) {
		return AISettings{
			TrainerID:    trainerID,
			SystemPrompt: defaultSystemPrompt,
			Temperature:  0.7,
		}, nil
	}
	if err != nil {
		return AISettings{}, fmt.Errorf("store: load ai settings: %w", err)
	}
	if s.SystemPrompt == "" {
		s.SystemPrompt = defaultSystemPrompt
	}
	return s, nil
}

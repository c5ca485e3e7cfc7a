package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ConversationStore persists the one dialogue state record per phone number.
// Saves are compare-and-swap on the version column so a lost concurrent
// read-modify-write surfaces as ErrVersionConflict instead of silently
// overwriting the other writer.
type ConversationStore struct {
	db *sql.DB
}

// NewConversationStore creates a conversation store over a database/sql handle.
func NewConversationStore(db *sql.DB) *ConversationStore {
	if db == nil {
		panic("store: sql db required")
	}
	return &ConversationStore{db: db}
}

// LoadOrCreate returns the conversation for the phone, creating an idle one
// lazily on first contact. Conversations are never deleted; stale ones idle.
func (s *ConversationStore) LoadOrCreate(ctx context.Context, phone string, trainerID uuid.UUID) (*Conversation, error) {
	conv, err := s.load(ctx, phone)
	if err == nil {
		return conv, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("store: load conversation: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (phone, trainer_id, state, context, version, last_message_at)
		VALUES ($1, $2, 'idle', '{}', 1, $3)
	`, phone, trainerID, now)
	if err != nil {
		// Another handler may have created it between the read and the insert.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return s.LoadOrCreate(ctx, phone, trainerID)
		}
		return nil, fmt.Errorf("store: create conversation: %w", err)
	}

	return &Conversation{
		Phone:         phone,
		TrainerID:     trainerID,
		State:         "idle",
		Context:       []byte("{}"),
		Version:       1,
		LastMessageAt: now,
	}, nil
}

func (s *ConversationStore) load(ctx context.Context, phone string) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT phone, trainer_id, state, context, version, last_message_at
		FROM conversations
		WHERE phone = $1
	`, phone).Scan(&conv.Phone, &conv.TrainerID, &conv.State, &conv.Context, &conv.Version, &conv.LastMessageAt)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Save writes the new state and context if and only if the row still carries
// the version the conversation was loaded with, then bumps the version.
func (s *ConversationStore) Save(ctx context.Context, conv *Conversation) error {
	if conv == nil {
		return fmt.Errorf("store: nil conversation")
	}
	ctxPayload := conv.Context
	if len(ctxPayload) == 0 {
		ctxPayload = []byte("{}")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET state = $1, context = $2, last_message_at = $3, version = version + 1
		WHERE phone = $4 AND version = $5
	`, conv.State, ctxPayload, conv.LastMessageAt, conv.Phone, conv.Version)
	if err != nil {
		return fmt.Errorf("store: save conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: save conversation: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	conv.Version++
	return nil
}

package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	historyTTL = 24 * time.Hour
	maxHistory = 20
)

// historyStore keeps the rolling fallback chat transcript per conversation in
// Redis so follow-up questions carry context across messages.
type historyStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func newHistoryStore(redisClient *redis.Client, tracer trace.Tracer) *historyStore {
	if redisClient == nil {
		panic("ai: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("bookingengine.internal.ai.history")
	}
	return &historyStore{
		redis:  redisClient,
		tracer: tracer,
	}
}

func (s *historyStore) Save(ctx context.Context, convKey string, history []ChatMessage) error {
	ctx, span := s.tracer.Start(ctx, "ai.save_history")
	defer span.End()

	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("ai: failed to marshal history: %w", err)
	}
	if err := s.redis.Set(ctx, historyKey(convKey), data, historyTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("ai: failed to persist history: %w", err)
	}
	return nil
}

// Load returns the stored transcript, or nil when none exists yet.
func (s *historyStore) Load(ctx context.Context, convKey string) ([]ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "ai.load_history")
	defer span.End()

	data, err := s.redis.Get(ctx, historyKey(convKey)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("ai: failed to load history: %w", err)
	}

	var history []ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("ai: failed to decode history: %w", err)
	}
	return history, nil
}

func historyKey(convKey string) string {
	return fmt.Sprintf("ai:history:%s", convKey)
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/entrenia/booking-engine/internal/store"
	"github.com/entrenia/booking-engine/pkg/logging"
)

var tracer = otel.Tracer("bookingengine.internal.ai")

const (
	defaultMaxTokens = 512
	defaultTimeout   = 20 * time.Second
)

// Adapter answers free-text questions the deterministic flows did not
// consume. It assembles the tenant's configured prompt, keeps a short
// Redis-backed transcript per conversation, and delegates to the configured
// LLM provider.
type Adapter struct {
	llm     LLMClient
	model   string
	history *historyStore
	timeout time.Duration
	logger  *logging.Logger
}

// AdapterOption customizes the fallback adapter.
type AdapterOption func(*Adapter)

// WithTimeout bounds each LLM round trip.
func WithTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAdapter builds the fallback adapter. The model may be empty for
// providers that carry the model on the client itself (Gemini).
func NewAdapter(llm LLMClient, redisClient *redis.Client, model string, logger *logging.Logger, opts ...AdapterOption) *Adapter {
	if llm == nil {
		panic("ai: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	a := &Adapter{
		llm:     llm,
		model:   model,
		history: newHistoryStore(redisClient, tracer),
		timeout: defaultTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Respond generates a reply for the message. History persistence is
// best-effort; a Redis failure degrades to a single-turn exchange.
func (a *Adapter) Respond(ctx context.Context, convKey string, settings store.AISettings, servicesSummary, userMessage string) (string, error) {
	if strings.TrimSpace(userMessage) == "" {
		return "", errors.New("ai: empty message")
	}

	ctx, span := tracer.Start(ctx, "ai.respond")
	defer span.End()

	history, err := a.history.Load(ctx, convKey)
	if err != nil {
		a.logger.Warn("failed to load fallback history", "error", err, "conversation", convKey)
		history = nil
	}

	history = append(history, ChatMessage{Role: ChatRoleUser, Content: userMessage})

	req := LLMRequest{
		Model:       a.model,
		System:      a.systemBlocks(settings, servicesSummary),
		Messages:    history,
		MaxTokens:   defaultMaxTokens,
		Temperature: settings.Temperature,
	}

	llmCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.llm.Complete(llmCtx, req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("ai: completion failed: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", errors.New("ai: empty completion")
	}

	history = append(history, ChatMessage{Role: ChatRoleAssistant, Content: resp.Text})
	if err := a.history.Save(ctx, convKey, history); err != nil {
		a.logger.Warn("failed to save fallback history", "error", err, "conversation", convKey)
	}

	return resp.Text, nil
}

func (a *Adapter) systemBlocks(settings store.AISettings, servicesSummary string) []string {
	blocks := make([]string, 0, 4)
	if prompt := strings.TrimSpace(settings.SystemPrompt); prompt != "" {
		blocks = append(blocks, prompt)
	}
	if knowledge := strings.TrimSpace(settings.Knowledge); knowledge != "" {
		blocks = append(blocks, "Información del negocio:\n"+knowledge)
	}
	if summary := strings.TrimSpace(servicesSummary); summary != "" {
		blocks = append(blocks, "Servicios disponibles:\n"+summary)
	}
	if scraped := strings.TrimSpace(settings.ScrapedContent); scraped != "" {
		blocks = append(blocks, "Contenido del sitio web:\n"+scraped)
	}
	return blocks
}

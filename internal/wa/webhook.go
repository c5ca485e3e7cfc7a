package wa

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/entrenia/booking-engine/internal/engine"
	"github.com/entrenia/booking-engine/pkg/logging"
)

// InboundPublisher enqueues parsed messages for asynchronous processing.
type InboundPublisher interface {
	PublishInbound(ctx context.Context, msg engine.InboundMessage) (string, error)
}

// MessageDeduper filters webhook redeliveries.
type MessageDeduper interface {
	Claim(ctx context.Context, messageID string) (bool, error)
}

// Transcriber converts a voice note into text. Implementations download the
// media by its provider ID and run speech-to-text.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaID string) (string, error)
}

// NoopTranscriber drops audio messages.
type NoopTranscriber struct{}

func (NoopTranscriber) Transcribe(context.Context, string) (string, error) {
	return "", nil
}

// WebhookHandler receives WhatsApp Cloud API callbacks: the GET verification
// handshake and POST message notifications.
type WebhookHandler struct {
	publisher   InboundPublisher
	dedup       MessageDeduper
	transcriber Transcriber
	verifyToken string
	logger      *logging.Logger
}

type WebhookConfig struct {
	Publisher   InboundPublisher
	Dedup       MessageDeduper
	Transcriber Transcriber
	VerifyToken string
	Logger      *logging.Logger
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Publisher == nil {
		panic("wa: publisher cannot be nil")
	}
	if cfg.Transcriber == nil {
		cfg.Transcriber = NoopTranscriber{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		publisher:   cfg.Publisher,
		dedup:       cfg.Dedup,
		transcriber: cfg.Transcriber,
		verifyToken: cfg.VerifyToken,
		logger:      cfg.Logger,
	}
}

// HandleVerification answers Meta's subscription handshake.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// webhookEnvelope mirrors the Cloud API notification payload, trimmed to the
// fields the engine consumes.
type webhookEnvelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					DisplayPhoneNumber string `json:"display_phone_number"`
					PhoneNumberID      string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
					Audio struct {
						ID string `json:"id"`
					} `json:"audio"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// HandleInbound accepts message notifications, deduplicates them, and
// enqueues one job per message. It always acknowledges quickly; retryable
// failures surface as 500 so Meta redelivers.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		h.logger.Warn("failed to decode webhook payload", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	enqueued := 0
	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			value := change.Value

			names := make(map[string]string, len(value.Contacts))
			for _, contact := range value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}

			for _, msg := range value.Messages {
				text, ok := h.messageText(ctx, msg.Type, msg.Text.Body, msg.Audio.ID)
				if !ok {
					continue
				}

				if h.dedup != nil {
					fresh, err := h.dedup.Claim(ctx, msg.ID)
					if err != nil {
						h.logger.Error("dedup lookup failed", "error", err, "message_id", msg.ID)
						http.Error(w, "server error", http.StatusInternalServerError)
						return
					}
					if !fresh {
						h.logger.Debug("skipping duplicate webhook delivery", "message_id", msg.ID)
						continue
					}
				}

				inbound := engine.InboundMessage{
					MessageID:   msg.ID,
					From:        msg.From,
					To:          value.Metadata.DisplayPhoneNumber,
					Body:        text,
					ProfileName: names[msg.From],
				}
				jobID, err := h.publisher.PublishInbound(ctx, inbound)
				if err != nil {
					h.logger.Error("failed to enqueue inbound message", "error", err, "message_id", msg.ID)
					http.Error(w, "server error", http.StatusInternalServerError)
					return
				}
				h.logger.Info("inbound message enqueued", "job_id", jobID, "message_id", msg.ID, "from", msg.From)
				enqueued++
			}
		}
	}

	if enqueued == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// messageText resolves the text for one inbound message; voice notes go
// through the transcriber. Unsupported types are dropped.
func (h *WebhookHandler) messageText(ctx context.Context, msgType, textBody, audioID string) (string, bool) {
	switch msgType {
	case "text":
		body := strings.TrimSpace(textBody)
		return body, body != ""
	case "audio", "voice":
		if audioID == "" {
			return "", false
		}
		text, err := h.transcriber.Transcribe(ctx, audioID)
		if err != nil {
			h.logger.Warn("voice transcription failed", "error", err, "media_id", audioID)
			return "", false
		}
		text = strings.TrimSpace(text)
		return text, text != ""
	default:
		return "", false
	}
}

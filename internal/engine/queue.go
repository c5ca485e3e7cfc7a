package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/entrenia/booking-engine/pkg/logging"
)

// Queue is the transport between the webhook and the worker pool.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// QueueMessage is one raw message pulled off the queue.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobType string

const (
	jobTypeInbound jobType = "inbound"
)

type queuePayload struct {
	ID      string         `json:"id"`
	Kind    jobType        `json:"kind"`
	Inbound InboundMessage `json:"inbound"`
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("engine: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}

// Publisher enqueues inbound messages for asynchronous processing by the
// worker pool. The webhook handler uses it to keep the HTTP path fast.
type Publisher struct {
	queue  Queue
	jobs   JobRecorder
	logger *logging.Logger
}

// NewPublisher builds a Publisher. The job recorder is optional.
func NewPublisher(queue Queue, jobs JobRecorder, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("engine: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, jobs: jobs, logger: logger}
}

// PublishInbound records a pending job and enqueues the message. Returns the
// job ID assigned to the payload.
func (p *Publisher) PublishInbound(ctx context.Context, msg InboundMessage) (string, error) {
	payload, body, err := encodePayload(queuePayload{
		Kind:    jobTypeInbound,
		Inbound: msg,
	})
	if err != nil {
		return "", err
	}

	if p.jobs != nil {
		job := &JobRecord{
			JobID:       payload.ID,
			RequestType: payload.Kind,
			Phone:       msg.From,
			MessageID:   msg.MessageID,
		}
		if err := p.jobs.PutPending(ctx, job); err != nil {
			// Job tracking is best-effort; the message still gets processed.
			p.logger.Warn("failed to record pending job", "error", err, "job_id", payload.ID)
		}
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("engine: failed to enqueue inbound message: %w", err)
	}
	return payload.ID, nil
}

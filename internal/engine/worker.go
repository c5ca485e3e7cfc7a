package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrenia/booking-engine/pkg/logging"
)

// processor handles a decoded inbound message end to end.
type processor interface {
	HandleInbound(ctx context.Context, msg InboundMessage) error
}

// Worker consumes inbound message jobs from the queue and invokes the engine.
type Worker struct {
	processor processor
	queue     Queue
	jobs      JobUpdater
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// NewWorker constructs a queue consumer around the provided processor. The
// job updater is optional; when nil, job status tracking is skipped.
func NewWorker(p processor, queue Queue, jobs JobUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if p == nil {
		panic("engine: processor cannot be nil")
	}
	if queue == nil {
		panic("engine: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		processor: p,
		queue:     queue,
		jobs:      jobs,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("inbound worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("inbound worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive inbound jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg QueueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode inbound job", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	var err error
	switch payload.Kind {
	case jobTypeInbound:
		err = w.process(ctx, payload)
	default:
		err = fmt.Errorf("engine: unknown job type %q", payload.Kind)
	}

	if err != nil {
		w.logger.Error("inbound job failed", "error", err, "job_id", payload.ID)
		w.markFailed(ctx, payload.ID, err)
	} else {
		w.logger.Debug("inbound job processed", "job_id", payload.ID)
		w.markCompleted(ctx, payload.ID)
	}

	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

// process invokes the engine with panic containment so a single malformed
// message cannot take down the consumer goroutine.
func (w *Worker) process(ctx context.Context, payload queuePayload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine: panic while processing job %s: %v", payload.ID, r)
		}
	}()
	return w.processor.HandleInbound(ctx, payload.Inbound)
}

func (w *Worker) markCompleted(ctx context.Context, jobID string) {
	if w.jobs == nil || jobID == "" {
		return
	}
	if err := w.jobs.MarkCompleted(ctx, jobID); err != nil {
		w.logger.Error("failed to update job status", "error", err, "job_id", jobID)
	}
}

func (w *Worker) markFailed(ctx context.Context, jobID string, cause error) {
	if w.jobs == nil || jobID == "" {
		return
	}
	if err := w.jobs.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		w.logger.Error("failed to update job status", "error", err, "job_id", jobID)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete inbound job", "error", err)
	}
}

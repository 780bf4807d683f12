package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/clinic-desk/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

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

// WithReceiveWaitSeconds sets the long-poll wait duration.
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

// Worker consumes assistant jobs from the queue and records their outcome.
type Worker struct {
	processor Processor
	queue     Queue
	jobs      JobUpdater
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

// NewWorker builds a worker pool. Call Start to begin consuming.
func NewWorker(processor Processor, queue Queue, jobs JobUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("assistant: processor cannot be nil")
	}
	if queue == nil {
		panic("assistant: queue cannot be nil")
	}
	if jobs == nil {
		panic("assistant: job updater cannot be nil")
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
		processor: processor,
		queue:     queue,
		jobs:      jobs,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches the consumer goroutines. They stop when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all consumers have returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("assistant worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("assistant worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive assistant jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
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

func (w *Worker) handleMessage(ctx context.Context, msg Message) {
	payload, err := decodePayload(msg.Body)
	if err != nil {
		w.logger.Error("failed to decode assistant job", "error", err, "msg_id", msg.ID)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}
	w.logger.Info("worker processing job", "job_id", payload.JobID, "kind", payload.Kind, "msg_id", msg.ID)

	result, err := w.process(ctx, payload)
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down; leave the message for redelivery.
			return
		}
		w.logger.Warn("assistant job failed", "job_id", payload.JobID, "kind", payload.Kind, "error", err)
		if storeErr := w.jobs.MarkFailed(ctx, payload.JobID, err.Error()); storeErr != nil {
			w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.JobID)
		}
	} else if storeErr := w.jobs.MarkCompleted(ctx, payload.JobID, result); storeErr != nil {
		w.logger.Error("failed to store job result", "error", storeErr, "job_id", payload.JobID)
	}
	w.deleteMessage(msg.ReceiptHandle)
}

func (w *Worker) process(ctx context.Context, payload queuePayload) (*JobResult, error) {
	switch payload.Kind {
	case KindSummary:
		if payload.Summary == nil {
			return nil, fmt.Errorf("%w: summary payload missing", ErrEmptyInput)
		}
		req := *payload.Summary
		req.Patient = payload.Patient
		resp, err := w.processor.Summarize(ctx, req)
		if err != nil {
			return nil, err
		}
		return &JobResult{Summary: resp}, nil
	case KindTriage:
		if payload.Triage == nil {
			return nil, fmt.Errorf("%w: triage payload missing", ErrEmptyInput)
		}
		req := *payload.Triage
		req.Patient = payload.Patient
		resp, err := w.processor.Triage(ctx, req)
		if err != nil {
			return nil, err
		}
		return &JobResult{Triage: resp}, nil
	default:
		return nil, fmt.Errorf("assistant: unknown job kind %q", payload.Kind)
	}
}

func (w *Worker) deleteMessage(receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete assistant job message", "error", err)
	}
}

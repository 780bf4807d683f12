package assistant

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinic-desk/pkg/logging"
)

// Publisher enqueues assistant jobs for asynchronous processing.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("assistant: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueSummary publishes a summary job.
func (p *Publisher) EnqueueSummary(ctx context.Context, jobID string, req SummaryRequest) error {
	return p.enqueue(ctx, queuePayload{JobID: jobID, Kind: KindSummary, Summary: &req, Patient: req.Patient})
}

// EnqueueTriage publishes a triage job.
func (p *Publisher) EnqueueTriage(ctx context.Context, jobID string, req TriageRequest) error {
	return p.enqueue(ctx, queuePayload{JobID: jobID, Kind: KindTriage, Triage: &req, Patient: req.Patient})
}

func (p *Publisher) enqueue(ctx context.Context, payload queuePayload) error {
	body, err := encodePayload(payload)
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("assistant: failed to enqueue job: %w", err)
	}
	p.logger.Debug("assistant job enqueued", "job_id", payload.JobID, "kind", payload.Kind)
	return nil
}

package assistant

import (
	"context"
	"errors"
	"sync"
	"time"
)

const jobTTL = 24 * time.Hour

// JobStatus represents the lifecycle of an assistant job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobResult holds the output of a completed job. Exactly one field is set.
type JobResult struct {
	Summary *SummaryResponse `dynamodbav:"summary,omitempty" json:"summary,omitempty"`
	Triage  *TriageResult    `dynamodbav:"triage,omitempty" json:"triage,omitempty"`
}

// JobRecord captures the persisted state of an assistant request.
type JobRecord struct {
	JobID        string          `dynamodbav:"jobId" json:"job_id"`
	Status       JobStatus       `dynamodbav:"status" json:"status"`
	Kind         string          `dynamodbav:"kind" json:"kind"`
	Summary      *SummaryRequest `dynamodbav:"summaryRequest,omitempty" json:"-"`
	Triage       *TriageRequest  `dynamodbav:"triageRequest,omitempty" json:"-"`
	Result       *JobResult      `dynamodbav:"result,omitempty" json:"result,omitempty"`
	ErrorMessage string          `dynamodbav:"errorMessage,omitempty" json:"error,omitempty"`
	CreatedAt    string          `dynamodbav:"createdAt" json:"created_at"`
	UpdatedAt    string          `dynamodbav:"updatedAt" json:"updated_at"`
	ExpiresAt    int64           `dynamodbav:"expiresAt,omitempty" json:"-"`
}

type JobRecorder interface {
	PutPending(ctx context.Context, job *JobRecord) error
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
}

type JobUpdater interface {
	MarkCompleted(ctx context.Context, jobID string, result *JobResult) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
}

// JobStore is the full job lifecycle.
type JobStore interface {
	JobRecorder
	JobUpdater
}

// stampPending prepares a new record for insertion.
func stampPending(job *JobRecord, now time.Time) {
	job.Status = JobStatusPending
	job.CreatedAt = now.UTC().Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	job.Result = nil
	job.ErrorMessage = ""
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}
}

// MemoryJobStore keeps jobs in process memory. Expired jobs are reported as
// missing and dropped lazily.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]JobRecord
	now  func() time.Time
}

var _ JobStore = (*MemoryJobStore)(nil)

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]JobRecord),
		now:  time.Now,
	}
}

func (s *MemoryJobStore) PutPending(_ context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("assistant: job cannot be nil")
	}
	if job.JobID == "" {
		return errors.New("assistant: jobID required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.JobID]; exists {
		return errors.New("assistant: job already exists")
	}
	stampPending(job, s.now())
	s.jobs[job.JobID] = *job
	return nil
}

func (s *MemoryJobStore) GetJob(_ context.Context, jobID string) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.ExpiresAt > 0 && s.now().Unix() >= job.ExpiresAt {
		delete(s.jobs, jobID)
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (s *MemoryJobStore) MarkCompleted(_ context.Context, jobID string, result *JobResult) error {
	if result == nil {
		result = &JobResult{}
	}
	return s.update(jobID, func(job *JobRecord) {
		job.Status = JobStatusCompleted
		job.Result = result
		job.ErrorMessage = ""
	})
}

func (s *MemoryJobStore) MarkFailed(_ context.Context, jobID string, errMsg string) error {
	return s.update(jobID, func(job *JobRecord) {
		job.Status = JobStatusFailed
		job.Result = nil
		job.ErrorMessage = errMsg
	})
}

func (s *MemoryJobStore) update(jobID string, fn func(*JobRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	fn(&job)
	job.UpdatedAt = s.now().UTC().Format(time.RFC3339Nano)
	s.jobs[jobID] = job
	return nil
}

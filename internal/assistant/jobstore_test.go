package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

type mockDynamo struct {
	putInput     *dynamodb.PutItemInput
	updateInputs []*dynamodb.UpdateItemInput
	getItem      map[string]types.AttributeValue
	updateErr    error
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = in
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInputs = append(m.updateInputs, in)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: m.getItem}, nil
}

func TestDynamoJobStore_PutPendingPersistsDefaults(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoJobStore(mock, "assistant_jobs", logging.Default())

	job := &JobRecord{JobID: "job-123", Kind: KindSummary, Summary: &SummaryRequest{PatientID: "1"}}
	if err := store.PutPending(context.Background(), job); err != nil {
		t.Fatalf("PutPending returned error: %v", err)
	}
	if mock.putInput == nil {
		t.Fatal("expected PutItem to be called")
	}

	var stored JobRecord
	if err := attributevalue.UnmarshalMap(mock.putInput.Item, &stored); err != nil {
		t.Fatalf("failed to unmarshal stored job: %v", err)
	}
	if stored.Status != JobStatusPending {
		t.Fatalf("expected status pending, got %s", stored.Status)
	}
	if stored.CreatedAt == "" || stored.UpdatedAt == "" {
		t.Fatal("expected timestamps to be populated")
	}
	if stored.ExpiresAt <= time.Now().Unix() {
		t.Fatal("expected TTL to be in the future")
	}
	if stored.Summary == nil || stored.Summary.PatientID != "1" {
		t.Fatalf("expected summary request to round trip, got %+v", stored.Summary)
	}
	if expr := mock.putInput.ConditionExpression; expr == nil || *expr != "attribute_not_exists(jobId)" {
		t.Fatalf("expected condition expression to prevent overwrites, got %v", expr)
	}
}

func TestDynamoJobStore_MarkCompletedUsesReservedAttributeNames(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoJobStore(mock, "assistant_jobs", nil)

	result := &JobResult{Summary: &SummaryResponse{Summary: "ok"}}
	if err := store.MarkCompleted(context.Background(), "job-123", result); err != nil {
		t.Fatalf("MarkCompleted returned error: %v", err)
	}
	if len(mock.updateInputs) != 1 {
		t.Fatalf("expected 1 update call, got %d", len(mock.updateInputs))
	}
	update := mock.updateInputs[0]
	if got := update.ExpressionAttributeNames["#status"]; got != "status" {
		t.Fatalf("expected #status alias, got %q", got)
	}
	if got := update.ExpressionAttributeNames["#result"]; got != "result" {
		t.Fatalf("expected #result alias, got %q", got)
	}
	if status, ok := update.ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS); !ok || status.Value != string(JobStatusCompleted) {
		t.Fatalf("unexpected status value %#v", update.ExpressionAttributeValues[":status"])
	}
	if expr := update.ConditionExpression; expr == nil || *expr != "attribute_exists(jobId)" {
		t.Fatalf("expected existence condition, got %v", expr)
	}
}

func TestDynamoJobStore_MarkFailedMissingJob(t *testing.T) {
	mock := &mockDynamo{updateErr: &types.ConditionalCheckFailedException{}}
	store := NewDynamoJobStore(mock, "assistant_jobs", nil)

	if err := store.MarkFailed(context.Background(), "gone", "boom"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestDynamoJobStore_GetJob(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoJobStore(mock, "assistant_jobs", nil)

	if _, err := store.GetJob(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	item, err := attributevalue.MarshalMap(JobRecord{
		JobID:     "job-1",
		Status:    JobStatusCompleted,
		Kind:      KindTriage,
		Result:    &JobResult{Triage: &TriageResult{Urgency: UrgencyLow, Rationale: "mild", Recommendations: []string{"rest"}}},
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	mock.getItem = item

	job, err := store.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetJob returned error: %v", err)
	}
	if job.Result == nil || job.Result.Triage == nil || job.Result.Triage.Urgency != UrgencyLow {
		t.Fatalf("unexpected job %+v", job)
	}

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := store.GetJob(context.Background(), "job-1"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected expired job to be reported missing, got %v", err)
	}
}

func TestMemoryJobStore_Lifecycle(t *testing.T) {
	store := NewMemoryJobStore()
	ctx := context.Background()

	if err := store.PutPending(ctx, &JobRecord{JobID: "j1", Kind: KindSummary}); err != nil {
		t.Fatalf("PutPending: %v", err)
	}
	if err := store.PutPending(ctx, &JobRecord{JobID: "j1", Kind: KindSummary}); err == nil {
		t.Fatal("expected duplicate job id to be rejected")
	}

	job, err := store.GetJob(ctx, "j1")
	if err != nil || job.Status != JobStatusPending {
		t.Fatalf("expected pending job, got %+v (%v)", job, err)
	}

	if err := store.MarkCompleted(ctx, "j1", &JobResult{Summary: &SummaryResponse{Summary: "s"}}); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	job, _ = store.GetJob(ctx, "j1")
	if job.Status != JobStatusCompleted || job.Result.Summary.Summary != "s" {
		t.Fatalf("unexpected completed job %+v", job)
	}

	if err := store.MarkFailed(ctx, "nope", "x"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	store.now = func() time.Time { return time.Now().Add(jobTTL + time.Minute) }
	if _, err := store.GetJob(ctx, "j1"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected expired job to be missing, got %v", err)
	}
}

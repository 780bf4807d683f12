package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

func TestMemoryQueue_SendReceive(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()
	for _, body := range []string{"a", "b", "c"} {
		if err := q.Send(ctx, body); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	msgs, err := q.Receive(ctx, 2, 1)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "a" || msgs[1].Body != "b" {
		t.Fatalf("unexpected batch %+v", msgs)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 buffered message, got %d", q.Len())
	}
}

func TestMemoryQueue_ReceiveTimesOut(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Receive(ctx, 1, 5)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

type fakeSQS struct {
	sent     []string
	deleted  []string
	messages []sqstypes.Message
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	n := int(in.MaxNumberOfMessages)
	if n > len(f.messages) {
		n = len(f.messages)
	}
	out := f.messages[:n]
	f.messages = f.messages[n:]
	return &sqs.ReceiveMessageOutput{Messages: out}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue_RoundTrip(t *testing.T) {
	fake := &fakeSQS{messages: []sqstypes.Message{
		{MessageId: aws.String("m-1"), Body: aws.String(`{"job_id":"j"}`), ReceiptHandle: aws.String("rh-1")},
	}}
	q := NewSQSQueue(fake, "https://sqs.local/queue")
	ctx := context.Background()

	if err := q.Send(ctx, "payload"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fake.sent) != 1 || fake.sent[0] != "payload" {
		t.Fatalf("unexpected sent bodies %v", fake.sent)
	}

	msgs, err := q.Receive(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ReceiptHandle != "rh-1" || msgs[0].ID != "m-1" {
		t.Fatalf("unexpected messages %+v", msgs)
	}

	if err := q.Delete(ctx, ""); err != nil {
		t.Fatalf("Delete empty handle: %v", err)
	}
	if err := q.Delete(ctx, "rh-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fake.deleted) != 1 {
		t.Fatalf("expected a single delete, got %v", fake.deleted)
	}
}

func TestPublisher_EncodesPayload(t *testing.T) {
	q := NewMemoryQueue(2)
	pub := NewPublisher(q, nil)

	if err := pub.EnqueueTriage(context.Background(), "job-7", TriageRequest{Symptoms: "fever"}); err != nil {
		t.Fatalf("EnqueueTriage: %v", err)
	}
	msgs, err := q.Receive(context.Background(), 1, 1)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("expected one message, got %v (%v)", msgs, err)
	}
	payload, err := decodePayload(msgs[0].Body)
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	if payload.JobID != "job-7" || payload.Kind != KindTriage || payload.Triage == nil || payload.Triage.Symptoms != "fever" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.Summary != nil {
		t.Fatal("summary payload should be omitted")
	}
}

func TestPublisher_CarriesPatientFacts(t *testing.T) {
	q := NewMemoryQueue(2)
	pub := NewPublisher(q, nil)

	facts := &PatientFacts{PatientID: "p-1", Context: "Patient: Ada\n", History: "Migraine"}
	if err := pub.EnqueueSummary(context.Background(), "job-8", SummaryRequest{PatientID: "p-1", Patient: facts}); err != nil {
		t.Fatalf("EnqueueSummary: %v", err)
	}
	msgs, err := q.Receive(context.Background(), 1, 1)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("expected one message, got %v (%v)", msgs, err)
	}
	payload, err := decodePayload(msgs[0].Body)
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	if payload.Patient == nil || *payload.Patient != *facts {
		t.Fatalf("expected patient facts in payload, got %+v", payload.Patient)
	}
	if payload.Summary == nil || payload.Summary.Patient != nil {
		t.Fatalf("facts travel beside the request, got %+v", payload.Summary)
	}
}

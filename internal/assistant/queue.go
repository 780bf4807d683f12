package assistant

import (
	"context"
	"encoding/json"
	"fmt"
)

// Queue carries job payloads from publishers to workers.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type queuePayload struct {
	JobID   string          `json:"job_id"`
	Kind    string          `json:"kind"`
	Summary *SummaryRequest `json:"summary,omitempty"`
	Triage  *TriageRequest  `json:"triage,omitempty"`
	Patient *PatientFacts   `json:"patient,omitempty"`
}

func encodePayload(payload queuePayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("assistant: failed to encode payload: %w", err)
	}
	return string(body), nil
}

func decodePayload(body string) (queuePayload, error) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return queuePayload{}, fmt.Errorf("assistant: failed to decode payload: %w", err)
	}
	return payload, nil
}

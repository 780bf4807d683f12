package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/clinic-desk/internal/patients"
	"github.com/wolfman30/clinic-desk/internal/persistence"
)

func serve(t *testing.T, h *Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return rec, decoded
}

func TestHandler_Summary(t *testing.T) {
	h := NewHandler(newTestService(&stubLLM{text: "Short summary."}, newTestDirectory()), nil)

	rec, body := serve(t, h, http.MethodPost, "/summary", `{"patientId":"1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", rec.Code, body)
	}
	if body["summary"] != "Short summary." {
		t.Fatalf("unexpected body %v", body)
	}

	rec, _ = serve(t, h, http.MethodPost, "/summary", `{"patientHistory":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty input, got %d", rec.Code)
	}

	rec, _ = serve(t, h, http.MethodPost, "/summary", `{"patientId":"missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown patient, got %d", rec.Code)
	}
}

func TestHandler_UpstreamAndNotReady(t *testing.T) {
	h := NewHandler(newTestService(&stubLLM{err: errors.New("quota exceeded")}, nil), nil)
	rec, body := serve(t, h, http.MethodPost, "/triage", `{"symptoms":"headache"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if body["retryable"] != true || !strings.Contains(body["error"].(string), "quota exceeded") {
		t.Fatalf("unexpected body %v", body)
	}

	h = NewHandler(newTestService(&stubLLM{text: "x"}, &stubDirectory{err: patients.ErrNotReady}), nil)
	rec, _ = serve(t, h, http.MethodPost, "/summary", `{"patientId":"1"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHandler_Jobs(t *testing.T) {
	queue := NewMemoryQueue(4)
	store := NewMemoryJobStore()
	h := NewHandler(&stubProcessor{}, nil,
		WithJobs(store, NewPublisher(queue, nil)),
		WithJobIDGenerator(func() string { return "job-1" }),
	)

	rec, body := serve(t, h, http.MethodPost, "/jobs", `{"kind":"summary","summary":{"patientHistory":"h"}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%v)", rec.Code, body)
	}
	if body["job_id"] != "job-1" || body["status"] != "pending" {
		t.Fatalf("unexpected body %v", body)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected job to be enqueued, queue len %d", queue.Len())
	}

	rec, body = serve(t, h, http.MethodGet, "/jobs/job-1", "")
	if rec.Code != http.StatusOK || body["status"] != "pending" || body["kind"] != "summary" {
		t.Fatalf("unexpected job lookup %d %v", rec.Code, body)
	}

	rec, _ = serve(t, h, http.MethodGet, "/jobs/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec, _ = serve(t, h, http.MethodPost, "/jobs", `{"kind":"triage","triage":{"symptoms":" "}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty triage, got %d", rec.Code)
	}
	rec, _ = serve(t, h, http.MethodPost, "/jobs", `{"kind":"poem"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", rec.Code)
	}
}

func TestHandler_JobRoutesDisabledWithoutStore(t *testing.T) {
	h := NewHandler(&stubProcessor{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected job routes to be absent, got %d", rec.Code)
	}
}

func TestHandler_JobForPatientCreatedAfterWorkerStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := persistence.NewMemoryBridge()
	writes := persistence.NewWriteQueue(bridge)
	t.Cleanup(func() { _ = writes.Close(context.Background()) })
	store := patients.NewStore(bridge, writes, patients.WithSeedData(false))
	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	directory := patients.NewService(store)

	queue := NewMemoryQueue(4)
	jobs := NewMemoryJobStore()
	llm := &stubLLM{text: "Asthma, well controlled."}

	// Like the standalone worker process, this worker has no patient directory.
	worker := NewWorker(newTestService(llm, nil), queue, jobs, nil, WithReceiveWaitSeconds(1))
	worker.Start(ctx)
	defer func() {
		cancel()
		worker.Wait()
	}()

	created, _, err := directory.AddPatient(patients.NewPatient{
		Name:           "Late Arrival",
		DOB:            "1990-04-04",
		Gender:         patients.GenderFemale,
		Contact:        "late@example.com",
		MedicalHistory: "Asthma since childhood.",
	})
	if err != nil {
		t.Fatalf("AddPatient: %v", err)
	}

	h := NewHandler(newTestService(llm, directory), nil,
		WithJobs(jobs, NewPublisher(queue, nil)),
		WithJobIDGenerator(func() string { return "job-late" }),
	)
	rec, body := serve(t, h, http.MethodPost, "/jobs", fmt.Sprintf(`{"kind":"summary","summary":{"patientId":%q}}`, created.ID))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%v)", rec.Code, body)
	}

	job := waitForStatus(t, jobs, "job-late", JobStatusCompleted)
	if job.Result == nil || job.Result.Summary.Summary != "Asthma, well controlled." {
		t.Fatalf("unexpected result %+v", job.Result)
	}
	prompt := llm.lastPrompt(t)
	if !strings.Contains(prompt, "Late Arrival") || !strings.Contains(prompt, "Asthma since childhood.") {
		t.Fatalf("prompt missing patient data: %q", prompt)
	}

	rec, _ = serve(t, h, http.MethodPost, "/jobs", `{"kind":"triage","triage":{"symptoms":"cough","patientId":"missing"}}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown patient, got %d", rec.Code)
	}
	if queue.Len() != 0 {
		t.Fatalf("rejected job must not be enqueued, queue len %d", queue.Len())
	}
}

func TestHandler_ClientCannotSupplyPatientFacts(t *testing.T) {
	llm := &stubLLM{text: "ok"}
	h := NewHandler(newTestService(llm, newTestDirectory()), nil)

	rec, _ := serve(t, h, http.MethodPost, "/summary",
		`{"patientId":"1","patient":{"patientId":"1","context":"Patient: Forged","history":"forged"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	prompt := llm.lastPrompt(t)
	if strings.Contains(prompt, "Forged") || !strings.Contains(prompt, "John Doe") {
		t.Fatalf("prompt should come from the directory: %q", prompt)
	}
}

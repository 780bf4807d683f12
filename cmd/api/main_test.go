package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/wolfman30/clinic-desk/internal/config"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		LogLevel:        "error",
		StoreBackend:    "memory",
		PersistTimeout:  time.Second,
		PersistWait:     time.Second,
		SeedDefaultData: true,
		ClinicName:      "Test Clinic",
		ClinicTimezone:  "UTC",
		LLMProvider:     "auto",
		EmailProvider:   "stub",
		UseMemoryQueue:  true,
		WorkerCount:     1,
	}
}

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, storeMetrics, assistantMetrics := setupMetrics()
	if handler == nil || storeMetrics == nil || assistantMetrics == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	storeMetrics.ObserveMutation("add_patient")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "clinic_store_mutations_total") {
		t.Fatalf("expected mutation counter to be exported")
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("expected runtime collectors to be registered")
	}
}

func TestBuildApplicationServesAfterInitialize(t *testing.T) {
	logger := logging.New("error")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApplication(ctx, testConfig(), aws.Config{Region: "us-east-1"}, logger)
	if err != nil {
		t.Fatalf("buildApplication: %v", err)
	}
	if app.worker != nil {
		t.Fatalf("expected no worker without an LLM configured")
	}

	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/patients", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before initialization, got %d", rr.Code)
	}

	initializeStore(ctx, app.store, logger)

	rr = httptest.NewRecorder()
	app.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/patients", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after initialization, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	app.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/assistant/summary", strings.NewReader(`{}`)))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected assistant routes to be absent, got %d", rr.Code)
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
	defer closeCancel()
	app.Close(closeCtx, logger)
}

func TestBuildApplicationRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = "tape"
	if _, err := buildApplication(context.Background(), cfg, aws.Config{}, logging.New("error")); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestSetupAssistantStartsInlineWorker(t *testing.T) {
	logger := logging.New("error")
	cfg := testConfig()
	cfg.BedrockModelID = "anthropic.claude-3-haiku"
	ctx, cancel := context.WithCancel(context.Background())

	handler, worker, closeLLM, err := setupAssistant(ctx, cfg, aws.Config{Region: "us-east-1"}, logger, nil, nil)
	if err != nil {
		t.Fatalf("setupAssistant: %v", err)
	}
	if handler == nil || worker == nil {
		t.Fatalf("expected handler and inline worker")
	}

	cancel()
	waitForInlineWorker(worker, logger)
	if err := closeLLM(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestSetupAssistantDisabledWithoutProvider(t *testing.T) {
	handler, worker, closeLLM, err := setupAssistant(context.Background(), testConfig(), aws.Config{}, logging.New("error"), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if handler != nil || worker != nil {
		t.Fatalf("expected assistant to be disabled")
	}
	if closeLLM == nil {
		t.Fatalf("expected non-nil close func")
	}
}

func TestWaitForInlineWorkerNil(t *testing.T) {
	waitForInlineWorker(nil, logging.New("error"))
}

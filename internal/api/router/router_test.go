package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/clinic-desk/internal/assistant"
	"github.com/wolfman30/clinic-desk/internal/clinic"
	httpmiddleware "github.com/wolfman30/clinic-desk/internal/http/middleware"
	"github.com/wolfman30/clinic-desk/internal/patients"
	"github.com/wolfman30/clinic-desk/internal/persistence"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

type echoLLM struct{}

func (echoLLM) Complete(context.Context, assistant.LLMRequest) (assistant.LLMResponse, error) {
	return assistant.LLMResponse{Text: "Stable patient."}, nil
}

type testEnv struct {
	handler http.Handler
	service *patients.Service
}

func newTestRouter(t *testing.T, initialize bool) testEnv {
	t.Helper()
	logger := logging.Default()

	bridge := persistence.NewMemoryBridge()
	store := patients.NewStore(bridge, persistence.NewWriteQueue(bridge))
	if initialize {
		if err := store.Initialize(context.Background()); err != nil {
			t.Fatalf("initialize: %v", err)
		}
	}
	service := patients.NewService(store)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	clinicStore := clinic.NewStore(rdb, clinic.DefaultConfig("Router Clinic", "UTC"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "router_test_total", Help: "test"}))

	cfg := &Config{
		Logger:           logger,
		PatientsHandler:  patients.NewHandler(service, logger),
		AssistantHandler: assistant.NewHandler(assistant.NewService(echoLLM{}, service, logger), logger),
		ClinicHandler: clinic.NewHandler(clinicStore, logger, func(c *clinic.Config) {
			service.SetLocation(c.Location())
		}),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: []string{"https://desk.example.com"},
		AssistantLimiter:   httpmiddleware.NewRateLimiter(0.001, 2),
	}
	return testEnv{handler: New(cfg), service: service}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoint(t *testing.T) {
	env := newTestRouter(t, false)
	rr := do(t, env.handler, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterReadyBeforeInitialize(t *testing.T) {
	env := newTestRouter(t, false)
	if rr := do(t, env.handler, http.MethodGet, "/ready", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before initialization, got %d", rr.Code)
	}
	if rr := do(t, env.handler, http.MethodGet, "/api/patients", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from api before initialization, got %d", rr.Code)
	}
}

func TestRouterPatientsAndDashboard(t *testing.T) {
	env := newTestRouter(t, true)

	rr := do(t, env.handler, http.MethodPost, "/api/patients", map[string]string{
		"name": "Router Test", "dob": "1990-01-01", "gender": "Female", "contact": "router@example.com",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, env.handler, http.MethodGet, "/api/dashboard", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var dash map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&dash); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if dash["totalPatients"] != float64(3) {
		t.Fatalf("expected 3 patients, got %v", dash["totalPatients"])
	}
}

func TestRouterClinicSettingsUpdateLocation(t *testing.T) {
	env := newTestRouter(t, true)

	rr := do(t, env.handler, http.MethodPut, "/api/clinic/settings", map[string]string{"timezone": "Asia/Tokyo"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := env.service.Location().String(); got != "Asia/Tokyo" {
		t.Fatalf("expected service location to follow settings, got %s", got)
	}
}

func TestRouterAssistantIsRateLimited(t *testing.T) {
	env := newTestRouter(t, true)
	body := map[string]string{"patientId": "1"}

	for i := 0; i < 2; i++ {
		if rr := do(t, env.handler, http.MethodPost, "/api/assistant/summary", body); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i, rr.Code, rr.Body.String())
		}
	}
	if rr := do(t, env.handler, http.MethodPost, "/api/assistant/summary", body); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	// Other routes are not limited.
	if rr := do(t, env.handler, http.MethodGet, "/api/patients", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRouterMetricsAndCORS(t *testing.T) {
	env := newTestRouter(t, true)

	rr := do(t, env.handler, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK || !bytes.Contains(rr.Body.Bytes(), []byte("router_test_total")) {
		t.Fatalf("unexpected metrics response %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/patients", nil)
	req.Header.Set("Origin", "https://desk.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://desk.example.com" {
		t.Fatal("expected allow origin header")
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-desk/cmd/mainconfig"
	"github.com/wolfman30/clinic-desk/internal/api/router"
	"github.com/wolfman30/clinic-desk/internal/app/bootstrap"
	"github.com/wolfman30/clinic-desk/internal/assistant"
	"github.com/wolfman30/clinic-desk/internal/clinic"
	appconfig "github.com/wolfman30/clinic-desk/internal/config"
	httpmiddleware "github.com/wolfman30/clinic-desk/internal/http/middleware"
	"github.com/wolfman30/clinic-desk/internal/notify"
	"github.com/wolfman30/clinic-desk/internal/observability/metrics"
	"github.com/wolfman30/clinic-desk/internal/patients"
	"github.com/wolfman30/clinic-desk/internal/persistence"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-desk API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"store_backend", cfg.StoreBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	app, err := buildApplication(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	// The server answers 503 on data routes until the load completes.
	go initializeStore(ctx, app.store, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AssistantTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	app.Close(shutdownCtx, logger)

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// application is the fully wired API process.
type application struct {
	handler http.Handler
	store   *patients.Store
	writes  *persistence.WriteQueue
	mailer  *notify.AppointmentMailer
	worker  *assistant.Worker
	closers []func()
}

// Close drains pending writes and background work. The context bounds the drain.
func (a *application) Close(ctx context.Context, logger *logging.Logger) {
	waitForInlineWorker(a.worker, logger)
	if a.mailer != nil {
		a.mailer.Wait()
	}
	if err := a.writes.Close(ctx); err != nil {
		logger.Error("pending writes not persisted", "error", err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApplication(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*application, error) {
	app := &application{}
	metricsHandler, storeMetrics, assistantMetrics := setupMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
	}

	bridge, err := bootstrap.BuildBridge(ctx, cfg, awsCfg, redisClient, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, bridge.Close)

	app.writes = persistence.NewWriteQueue(bridge,
		persistence.WithSaveTimeout(cfg.PersistTimeout),
		persistence.WithLogger(logger),
		persistence.WithObserver(storeMetrics.ObservePersist),
	)

	defaults := bootstrap.DefaultClinicConfig(cfg)
	clinicStore := bootstrap.BuildClinicStore(redisClient, cfg)
	current := currentClinic(ctx, clinicStore, defaults, logger)

	app.store = patients.NewStore(bridge, app.writes,
		patients.WithStoreLogger(logger),
		patients.WithStoreMetrics(storeMetrics),
		patients.WithSeedData(cfg.SeedDefaultData),
		patients.WithStoreLocation(current.Load().Location()),
	)

	app.mailer = setupMailer(cfg, awsCfg, clinicStore, defaults, logger)
	service := patients.NewService(app.store,
		patients.WithLogger(logger),
		patients.WithMetrics(storeMetrics),
		patients.WithLocation(current.Load().Location()),
		patients.WithAppointmentListener(app.mailer.AppointmentBooked),
	)

	patientsHandler := patients.NewHandler(service, logger,
		patients.WithPersistWait(cfg.PersistWait),
		patients.WithOpenFunc(func(t time.Time) bool { return current.Load().IsOpenAt(t) }),
	)

	var clinicHandler *clinic.Handler
	if clinicStore != nil {
		clinicHandler = clinic.NewHandler(clinicStore, logger, func(updated *clinic.Config) {
			current.Store(updated)
			service.SetLocation(updated.Location())
		})
	} else {
		logger.Warn("clinic settings API disabled; REDIS_ADDR not reachable")
	}

	assistantHandler, worker, closeLLM, err := setupAssistant(ctx, cfg, awsCfg, logger, service, assistantMetrics)
	if err != nil {
		return nil, err
	}
	app.worker = worker
	app.closers = append(app.closers, func() { _ = closeLLM() })

	var limiter *httpmiddleware.RateLimiter
	if assistantHandler != nil && cfg.AssistantRateLimit > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.AssistantRateLimit, cfg.AssistantRateBurst)
		go limiter.Run(ctx)
	}

	app.handler = router.New(&router.Config{
		Logger:             logger,
		PatientsHandler:    patientsHandler,
		AssistantHandler:   assistantHandler,
		ClinicHandler:      clinicHandler,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AssistantLimiter:   limiter,
	})
	return app, nil
}

func setupMetrics() (http.Handler, *metrics.StoreMetrics, *metrics.AssistantMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	return handler, metrics.NewStoreMetrics(reg), metrics.NewAssistantMetrics(reg)
}

// currentClinic holds the live clinic settings for the dashboard open flag.
func currentClinic(ctx context.Context, store *clinic.Store, defaults *clinic.Config, logger *logging.Logger) *atomic.Pointer[clinic.Config] {
	current := &atomic.Pointer[clinic.Config]{}
	current.Store(defaults)
	if store == nil {
		return current
	}
	settings, err := store.Get(ctx)
	if err != nil {
		logger.Warn("failed to load clinic settings; using defaults", "error", err)
		return current
	}
	current.Store(settings)
	return current
}

func setupMailer(cfg *appconfig.Config, awsCfg aws.Config, clinicStore *clinic.Store, defaults *clinic.Config, logger *logging.Logger) *notify.AppointmentMailer {
	sender := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	var opts []notify.MailerOption
	if clinicStore != nil {
		opts = append(opts, notify.WithClinicSettings(clinicStore))
	}
	return notify.NewAppointmentMailer(sender, defaults, logger, opts...)
}

// setupAssistant wires the summarizer. A missing LLM configuration disables the
// assistant routes instead of failing startup.
func setupAssistant(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger, directory assistant.PatientDirectory, m *metrics.AssistantMetrics) (*assistant.Handler, *assistant.Worker, func() error, error) {
	noop := func() error { return nil }
	client, closeLLM, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, logger)
	if errors.Is(err, bootstrap.ErrNoLLMConfigured) {
		logger.Warn("assistant disabled; set GEMINI_API_KEY or BEDROCK_MODEL_ID to enable")
		return nil, nil, noop, nil
	}
	if err != nil {
		return nil, nil, noop, err
	}

	service := assistant.NewService(client, directory, logger,
		assistant.WithConfig(assistant.Config{
			Model:       bootstrap.AssistantModel(cfg),
			MaxTokens:   int32(cfg.AssistantMaxTokens),
			Temperature: 0.2,
			Timeout:     cfg.AssistantTimeout,
		}),
		assistant.WithServiceMetrics(m),
	)

	jobs, err := bootstrap.BuildAssistantJobs(cfg, awsCfg, logger)
	if err != nil {
		_ = closeLLM()
		return nil, nil, noop, err
	}
	handler := assistant.NewHandler(service, logger,
		assistant.WithJobs(jobs.Store, assistant.NewPublisher(jobs.Queue, logger)),
	)

	var worker *assistant.Worker
	if jobs.InProcess {
		worker = setupInlineWorker(ctx, cfg, service, jobs, logger)
	}
	return handler, worker, closeLLM, nil
}

// setupInlineWorker runs the job worker inside the API when the queue is in memory.
func setupInlineWorker(ctx context.Context, cfg *appconfig.Config, processor assistant.Processor, jobs *bootstrap.AssistantJobs, logger *logging.Logger) *assistant.Worker {
	if jobs == nil || !jobs.InProcess {
		return nil
	}
	worker := assistant.NewWorker(processor, jobs.Queue, jobs.Store, logger,
		assistant.WithWorkerCount(cfg.WorkerCount),
		assistant.WithReceiveWaitSeconds(1),
	)
	worker.Start(ctx)
	logger.Info("inline assistant worker started", "workers", cfg.WorkerCount)
	return worker
}

func waitForInlineWorker(worker *assistant.Worker, logger *logging.Logger) {
	if worker == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline assistant worker stopped")
	case <-time.After(15 * time.Second):
		logger.Error("inline assistant worker shutdown timed out")
	}
}

// initializeStore retries the initial load until it succeeds or ctx ends.
func initializeStore(ctx context.Context, store *patients.Store, logger *logging.Logger) {
	backoff := time.Second
	for {
		err := store.Initialize(ctx)
		if err == nil {
			logger.Info("patient store ready")
			return
		}
		logger.Error("patient store load failed", "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/clinic-desk/cmd/mainconfig"
	"github.com/wolfman30/clinic-desk/internal/app/bootstrap"
	"github.com/wolfman30/clinic-desk/internal/assistant"
	appconfig "github.com/wolfman30/clinic-desk/internal/config"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

var errMemoryQueue = errors.New("assistant worker requires ASSISTANT_QUEUE_URL and USE_MEMORY_QUEUE=false")

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	if cfg.UseMemoryQueue || cfg.AssistantQueueURL == "" {
		logger.Error(errMemoryQueue.Error())
		os.Exit(1)
	}

	client, closeLLM, err := bootstrap.BuildLLMClient(ctx, cfg, awsConfig, logger)
	if err != nil {
		logger.Error("failed to configure LLM client", "error", err)
		os.Exit(1)
	}
	defer func() { _ = closeLLM() }()

	jobs, err := bootstrap.BuildAssistantJobs(cfg, awsConfig, logger)
	if err != nil {
		logger.Error("failed to configure assistant jobs", "error", err)
		os.Exit(1)
	}

	worker := newWorker(cfg, client, jobs, logger)
	worker.Start(ctx)
	logger.Info("assistant worker started", "workers", cfg.WorkerCount, "queue_url", cfg.AssistantQueueURL)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down assistant worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("assistant worker stopped")
	case <-doneCtx.Done():
		logger.Error("assistant worker shutdown timed out", "error", doneCtx.Err())
	}
}

// newWorker builds the job worker. It has no patient store: jobs carry the
// patient facts the API resolved when they were queued, so this process
// never reads or writes clinic data.
func newWorker(cfg *appconfig.Config, client assistant.LLMClient, jobs *bootstrap.AssistantJobs, logger *logging.Logger) *assistant.Worker {
	processor := assistant.NewService(client, nil, logger,
		assistant.WithConfig(assistant.Config{
			Model:       bootstrap.AssistantModel(cfg),
			MaxTokens:   int32(cfg.AssistantMaxTokens),
			Temperature: 0.2,
			Timeout:     cfg.AssistantTimeout,
		}),
	)
	return assistant.NewWorker(
		processor,
		jobs.Queue,
		jobs.Store,
		logger,
		assistant.WithWorkerCount(cfg.WorkerCount),
	)
}

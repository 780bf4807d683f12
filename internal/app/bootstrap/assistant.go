package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/clinic-desk/internal/assistant"
	appconfig "github.com/wolfman30/clinic-desk/internal/config"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

// ErrNoLLMConfigured is returned when neither Gemini nor Bedrock is configured.
var ErrNoLLMConfigured = errors.New("bootstrap: no LLM provider configured")

// LLM provider names accepted by LLM_PROVIDER.
const (
	ProviderAuto    = "auto"
	ProviderGemini  = "gemini"
	ProviderBedrock = "bedrock"
)

// BuildLLMClient constructs the summarizer's model client. In auto mode Gemini is
// primary and Bedrock, when also configured, serves as fallback. The returned
// close func is never nil.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (assistant.LLMClient, func() error, error) {
	noop := func() error { return nil }
	if cfg == nil {
		return nil, noop, errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	hasGemini := strings.TrimSpace(cfg.GeminiAPIKey) != ""
	hasBedrock := strings.TrimSpace(cfg.BedrockModelID) != ""

	buildGemini := func() (*assistant.GeminiLLMClient, error) {
		client, err := assistant.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		return client, nil
	}
	buildBedrock := func() *assistant.BedrockLLMClient {
		return assistant.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case ProviderGemini:
		if !hasGemini {
			return nil, noop, errors.New("bootstrap: gemini provider requires GEMINI_API_KEY")
		}
		client, err := buildGemini()
		if err != nil {
			return nil, noop, err
		}
		logger.Info("llm client configured", "provider", ProviderGemini, "model", cfg.GeminiModelID)
		return client, client.Close, nil
	case ProviderBedrock:
		if !hasBedrock {
			return nil, noop, errors.New("bootstrap: bedrock provider requires BEDROCK_MODEL_ID")
		}
		logger.Info("llm client configured", "provider", ProviderBedrock, "model", cfg.BedrockModelID)
		return buildBedrock(), noop, nil
	case ProviderAuto, "":
		switch {
		case hasGemini && hasBedrock:
			gemini, err := buildGemini()
			if err != nil {
				return nil, noop, err
			}
			logger.Info("llm client configured", "provider", "gemini+bedrock", "primary", cfg.GeminiModelID, "fallback", cfg.BedrockModelID)
			return assistant.NewFallbackLLMClient(gemini, buildBedrock(), logger), gemini.Close, nil
		case hasGemini:
			gemini, err := buildGemini()
			if err != nil {
				return nil, noop, err
			}
			logger.Info("llm client configured", "provider", ProviderGemini, "model", cfg.GeminiModelID)
			return gemini, gemini.Close, nil
		case hasBedrock:
			logger.Info("llm client configured", "provider", ProviderBedrock, "model", cfg.BedrockModelID)
			return buildBedrock(), noop, nil
		default:
			return nil, noop, ErrNoLLMConfigured
		}
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown llm provider %q", cfg.LLMProvider)
	}
}

// AssistantModel returns the model id requests should name for the configured provider.
func AssistantModel(cfg *appconfig.Config) string {
	if cfg == nil {
		return ""
	}
	if strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) == ProviderBedrock || strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return cfg.BedrockModelID
	}
	return cfg.GeminiModelID
}

// AssistantJobs holds the async job plumbing shared by the API and the worker.
type AssistantJobs struct {
	Store assistant.JobStore
	Queue assistant.Queue
	// InProcess is true when the queue lives in memory and the API must run the worker itself.
	InProcess bool
}

// BuildAssistantJobs picks the job store and queue. The in-memory pair is used when
// USE_MEMORY_QUEUE is set or no SQS queue is configured.
func BuildAssistantJobs(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*AssistantJobs, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	if cfg.UseMemoryQueue || strings.TrimSpace(cfg.AssistantQueueURL) == "" {
		logger.Info("assistant jobs use in-memory queue")
		return &AssistantJobs{
			Store:     assistant.NewMemoryJobStore(),
			Queue:     assistant.NewMemoryQueue(256),
			InProcess: true,
		}, nil
	}

	if strings.TrimSpace(cfg.AssistantJobsTable) == "" {
		return nil, errors.New("bootstrap: sqs queue requires ASSISTANT_JOBS_TABLE")
	}
	logger.Info("assistant jobs use sqs", "queue_url", cfg.AssistantQueueURL, "table", cfg.AssistantJobsTable)
	return &AssistantJobs{
		Store: assistant.NewDynamoJobStore(dynamodb.NewFromConfig(awsCfg), cfg.AssistantJobsTable, logger),
		Queue: assistant.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.AssistantQueueURL),
	}, nil
}

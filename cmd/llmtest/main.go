package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/clinic-desk/cmd/mainconfig"
	"github.com/wolfman30/clinic-desk/internal/app/bootstrap"
	"github.com/wolfman30/clinic-desk/internal/assistant"
	appconfig "github.com/wolfman30/clinic-desk/internal/config"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

const sampleHistory = "58-year-old male with type 2 diabetes on metformin. " +
	"Reports increased thirst and fatigue over three weeks. Last HbA1c 8.1%. " +
	"No chest pain. Missed two follow-up visits this year."

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	history := flag.String("history", sampleHistory, "free-text patient history to summarize")
	symptoms := flag.String("symptoms", "", "if set, run triage on these symptoms instead of a summary")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.AssistantTimeout+5*time.Second)
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("load AWS config: %v", err)
	}

	client, closeLLM, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, logger)
	if errors.Is(err, bootstrap.ErrNoLLMConfigured) {
		fmt.Println("Set GEMINI_API_KEY and/or BEDROCK_MODEL_ID to run this check.")
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("build LLM client: %v", err)
	}
	defer func() { _ = closeLLM() }()

	svc := assistant.NewService(client, nil, logger, assistant.WithConfig(assistant.Config{
		Model:       bootstrap.AssistantModel(cfg),
		MaxTokens:   int32(cfg.AssistantMaxTokens),
		Temperature: 0.2,
		Timeout:     cfg.AssistantTimeout,
	}))

	start := time.Now()
	if *symptoms != "" {
		result, err := svc.Triage(ctx, assistant.TriageRequest{Symptoms: *symptoms})
		if err != nil {
			log.Fatalf("triage failed after %v: %v", time.Since(start).Round(time.Millisecond), err)
		}
		fmt.Printf("Urgency: %s (%v)\n", result.Urgency, time.Since(start).Round(time.Millisecond))
		fmt.Printf("Rationale: %s\n", result.Rationale)
		for _, rec := range result.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
		return
	}

	resp, err := svc.Summarize(ctx, assistant.SummaryRequest{PatientHistory: *history})
	if err != nil {
		log.Fatalf("summary failed after %v: %v", time.Since(start).Round(time.Millisecond), err)
	}
	fmt.Printf("Summary (%v):\n%s\n", time.Since(start).Round(time.Millisecond), resp.Summary)
}

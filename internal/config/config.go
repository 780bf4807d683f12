package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Persistence bridge
	StoreBackend     string
	StoreFileDir     string
	StoreKeyPrefix   string
	StoreDynamoTable string
	StoreS3Bucket    string
	DatabaseURL      string
	PersistTimeout   time.Duration
	PersistWait      time.Duration
	SeedDefaultData  bool

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Clinic defaults (overridden by stored clinic settings)
	ClinicName     string
	ClinicTimezone string

	// Assistant
	LLMProvider        string
	GeminiAPIKey       string
	GeminiModelID      string
	BedrockModelID     string
	AssistantMaxTokens int
	AssistantTimeout   time.Duration
	UseMemoryQueue     bool
	AssistantQueueURL  string
	AssistantJobsTable string
	WorkerCount        int
	AssistantRateLimit float64
	AssistantRateBurst int

	// Email
	EmailProvider    string
	SendGridAPIKey   string
	EmailFromAddress string
	EmailFromName    string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreBackend:     strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", "memory"))),
		StoreFileDir:     getEnv("STORE_FILE_DIR", "data"),
		StoreKeyPrefix:   getEnv("STORE_KEY_PREFIX", "clinic"),
		StoreDynamoTable: getEnv("STORE_DYNAMO_TABLE", "clinic_collections"),
		StoreS3Bucket:    getEnv("STORE_S3_BUCKET", ""),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		PersistTimeout:   getEnvAsDuration("PERSIST_TIMEOUT", 5*time.Second),
		PersistWait:      getEnvAsDuration("PERSIST_WAIT", 2*time.Second),
		SeedDefaultData:  getEnvAsBool("SEED_DEFAULT_DATA", true),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ClinicName:     getEnv("CLINIC_NAME", "Clinic"),
		ClinicTimezone: getEnv("CLINIC_TIMEZONE", "UTC"),

		LLMProvider:        strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "auto"))),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:      getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", ""),
		AssistantMaxTokens: getEnvAsInt("ASSISTANT_MAX_TOKENS", 800),
		AssistantTimeout:   getEnvAsDuration("ASSISTANT_TIMEOUT", 45*time.Second),
		UseMemoryQueue:     getEnvAsBool("USE_MEMORY_QUEUE", true),
		AssistantQueueURL:  getEnv("ASSISTANT_QUEUE_URL", ""),
		AssistantJobsTable: getEnv("ASSISTANT_JOBS_TABLE", ""),
		WorkerCount:        getEnvAsInt("WORKER_COUNT", 2),
		AssistantRateLimit: getEnvAsFloat("ASSISTANT_RATE_LIMIT", 1),
		AssistantRateBurst: getEnvAsInt("ASSISTANT_RATE_BURST", 5),

		EmailProvider:    strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Clinic Desk"),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blank entries.
func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

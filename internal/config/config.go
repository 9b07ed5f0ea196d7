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

	// Postgres (Supabase) user store.
	DatabaseURL string

	// Redis live call-state mirror.
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Voice gateway (outbound call initiation + webhook transport).
	VoiceGatewayAPIKey      string
	VoiceGatewayBaseURL     string
	VoiceGatewayFromNumber  string
	VoiceGatewayAssistantID string
	DefaultVoiceID          string

	// Primary (speaker) LLM.
	OpenAIAPIKey   string
	SpeakerModelID string
	AdvanceModelID string

	// Analyzer LLM.
	GeminiAPIKey    string
	AnalyzerModelID string

	// Bedrock fallback provider.
	BedrockEnabled bool
	BedrockModelID string
	AWSRegion      string

	// Backend promise reporting.
	BackendBaseURL    string
	BackendServiceKey string

	// Admin surface.
	AdminToken string

	// Call engine tuning.
	MaxCallDuration  time.Duration
	IdleTimeout      time.Duration
	GracePeriod      time.Duration
	SpeakerTimeout   time.Duration
	AnalyzerTimeout  time.Duration
	AdvanceTimeout   time.Duration
	SpeakerMaxTokens int
	QuoteThreshold   float64
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		VoiceGatewayAPIKey:      getEnv("VOICE_GATEWAY_API_KEY", ""),
		VoiceGatewayBaseURL:     getEnv("VOICE_GATEWAY_BASE_URL", ""),
		VoiceGatewayFromNumber:  getEnv("VOICE_GATEWAY_FROM_NUMBER", ""),
		VoiceGatewayAssistantID: getEnv("VOICE_GATEWAY_ASSISTANT_ID", ""),
		DefaultVoiceID:          getEnv("DEFAULT_VOICE_ID", ""),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		SpeakerModelID: getEnv("SPEAKER_MODEL_ID", "gpt-4o"),
		AdvanceModelID: getEnv("ADVANCE_MODEL_ID", "gpt-4o-mini"),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		AnalyzerModelID: getEnv("ANALYZER_MODEL_ID", "gemini-2.5-flash"),

		BedrockEnabled: getEnvAsBool("BEDROCK_FALLBACK_ENABLED", false),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),

		BackendBaseURL:    getEnv("BACKEND_BASE_URL", ""),
		BackendServiceKey: getEnv("BACKEND_SERVICE_KEY", ""),

		AdminToken: getEnv("ADMIN_TOKEN", ""),

		MaxCallDuration:  getEnvAsDuration("MAX_CALL_DURATION", 3*time.Minute),
		IdleTimeout:      getEnvAsDuration("CALL_IDLE_TIMEOUT", 30*time.Second),
		GracePeriod:      getEnvAsDuration("CALL_GRACE_PERIOD", 5*time.Second),
		SpeakerTimeout:   getEnvAsDuration("SPEAKER_LLM_TIMEOUT", 30*time.Second),
		AnalyzerTimeout:  getEnvAsDuration("ANALYZER_LLM_TIMEOUT", 10*time.Second),
		AdvanceTimeout:   getEnvAsDuration("ADVANCE_CHECK_TIMEOUT", 5*time.Second),
		SpeakerMaxTokens: getEnvAsInt("SPEAKER_MAX_TOKENS", 150),
		QuoteThreshold:   getEnvAsFloat("QUOTE_WEIGHT_THRESHOLD", 0.6),
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

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

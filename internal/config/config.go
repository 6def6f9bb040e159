package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	PredictionURL   string
	PredictionToken string

	// Model versions passed to the prediction service.
	TTSVersion        string
	TranscribeVersion string
	CloneVersion      string

	// Per-kind dispatch call timeouts. Clone payloads are large base64 blobs
	// and need the longer budget.
	DispatchTimeout      time.Duration
	CloneDispatchTimeout time.Duration

	// Polling budgets.
	PollMaxAttempts      int
	PollBudget           time.Duration
	ClonePollMaxAttempts int
	ClonePollBudget      time.Duration

	DatabaseURL string
	OpenAIKey   string

	// Credits granted when a user is first seen in DB-less mode.
	SignupCredits int64
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PredictionURL:        getEnv("PREDICTION_API_URL", "https://api.replicate.com/v1"),
		PredictionToken:      os.Getenv("PREDICTION_API_TOKEN"),
		TTSVersion:           getEnv("TTS_MODEL_VERSION", "tts-v2"),
		TranscribeVersion:    getEnv("TRANSCRIBE_MODEL_VERSION", "whisper-v3"),
		CloneVersion:         getEnv("CLONE_MODEL_VERSION", "clone-v1"),
		DispatchTimeout:      getEnvDuration("DISPATCH_TIMEOUT", 60*time.Second),
		CloneDispatchTimeout: getEnvDuration("CLONE_DISPATCH_TIMEOUT", 120*time.Second),
		PollMaxAttempts:      getEnvInt("POLL_MAX_ATTEMPTS", 40),
		PollBudget:           getEnvDuration("POLL_BUDGET", 2*time.Minute),
		ClonePollMaxAttempts: getEnvInt("CLONE_POLL_MAX_ATTEMPTS", 60),
		ClonePollBudget:      getEnvDuration("CLONE_POLL_BUDGET", 10*time.Minute),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		OpenAIKey:            os.Getenv("OPENAI_API_KEY"),
		SignupCredits:        int64(getEnvInt("SIGNUP_CREDITS", 1000)),
	}

	if cfg.PredictionToken == "" {
		return nil, fmt.Errorf("PREDICTION_API_TOKEN is required. Set it as an environment variable or in .env")
	}

	// OpenAI key is optional (only needed for transcript polish)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

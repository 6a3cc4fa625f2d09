// Package config centralizes the operator-visible environment knobs the
// core reads once at startup (spec.md §6 "CLI/env surface").
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/bhargavap21/tradeforge/logger"
)

// Config holds every env-derived setting consumed by the core at startup.
type Config struct {
	Environment string

	// Broker credentials (spec §6: "external broker API key and secret; a
	// paper/live flag").
	BrokerAPIKey    string
	BrokerSecretKey string
	BrokerPaper     bool

	// Sentiment/news provider credentials and endpoints, keyed by source
	// name.
	SentimentProviderKeys map[string]string
	SentimentProviderURLs map[string]string

	// LLM oracle (OpenAI-compatible chat endpoint).
	LLMAPIURL string
	LLMAPIKey string
	LLMModel  string

	// Database credentials.
	DatabasePath string

	HTTPAddr string

	// JWTSecret signs deployment tokens.
	JWTSecret string

	WorkflowMaxIterations int
	WorkflowMaxWallTime   time.Duration
}

// Load reads a local .env file (if present, via godotenv — a missing file
// is not an error) and then parses environment variables into a Config.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logger.Debugf("no .env file loaded: %v", err)
	}

	cfg := &Config{
		Environment:     os.Getenv("ENVIRONMENT"),
		BrokerAPIKey:    os.Getenv("BROKER_API_KEY"),
		BrokerSecretKey: os.Getenv("BROKER_SECRET_KEY"),
		BrokerPaper:     envBool("BROKER_PAPER", true),
		DatabasePath:    envString("DATABASE_PATH", "tradeforge.db"),
		HTTPAddr:        envString("HTTP_ADDR", ":8080"),
		JWTSecret:       envString("JWT_SECRET", "dev-only-secret"),

		LLMAPIURL: envString("LLM_API_URL", "https://api.openai.com/v1"),
		LLMAPIKey: os.Getenv("LLM_API_KEY"),
		LLMModel:  envString("LLM_MODEL", "gpt-4o-mini"),

		WorkflowMaxIterations: envInt("WORKFLOW_MAX_ITERATIONS", 5),
		WorkflowMaxWallTime:   envDuration("WORKFLOW_MAX_WALL_TIME", 10*time.Minute),

		SentimentProviderKeys: map[string]string{
			"reddit":  os.Getenv("REDDIT_API_KEY"),
			"twitter": os.Getenv("TWITTER_API_KEY"),
			"news":    os.Getenv("NEWS_API_KEY"),
		},
		SentimentProviderURLs: map[string]string{
			"reddit":  os.Getenv("REDDIT_API_URL"),
			"twitter": os.Getenv("TWITTER_API_URL"),
			"news":    os.Getenv("NEWS_API_URL"),
		},
	}

	return cfg
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL   string
	MigrationsDir string

	// Redis
	RedisURL string

	// JWT (tokens are issued by the auth service, we only verify them)
	JWTSecret string

	// Language model
	LLMProvider          string
	LLMAPIKey            string
	LLMBaseURL           string
	LLMModel             string
	LLMConcurrentReqs    int
	AnalysisTimeout      time.Duration
	CertificateAITimeout time.Duration

	// Workers
	RunWorkers    bool
	WorkerCount   int
	StaleJobAfter time.Duration

	// Session locking: "local" or "redis"
	SessionLock string

	// SMTP
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	provider := getEnvOrDefault("LLM_PROVIDER", "openai")

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		DatabaseURL:          mustGetEnv("DATABASE_URL"),
		MigrationsDir:        getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		RedisURL:             mustGetEnv("REDIS_URL"),
		JWTSecret:            mustGetEnv("JWT_SECRET"),
		LLMProvider:          provider,
		LLMAPIKey:            llmAPIKey(provider),
		LLMBaseURL:           getEnvOrDefault("LLM_BASE_URL", ""),
		LLMModel:             getEnvOrDefault("LLM_MODEL", ""),
		LLMConcurrentReqs:    getEnvAsIntOrDefault("LLM_CONCURRENT_REQUESTS", 5),
		AnalysisTimeout:      getEnvAsDurationOrDefault("ANALYSIS_TIMEOUT", 2*time.Minute),
		CertificateAITimeout: getEnvAsDurationOrDefault("CERTIFICATE_AI_TIMEOUT", 20*time.Second),
		RunWorkers:           getEnvAsBoolOrDefault("RUN_WORKERS", true),
		WorkerCount:          getEnvAsIntOrDefault("WORKER_COUNT", 5),
		StaleJobAfter:        getEnvAsDurationOrDefault("STALE_JOB_AFTER", 15*time.Minute),
		SessionLock:          getEnvOrDefault("SESSION_LOCK", "redis"),
		SMTPHost:             getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:             getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUser:             getEnvOrDefault("SMTP_USER", ""),
		SMTPPass:             getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom:             getEnvOrDefault("SMTP_FROM", "noreply@studygroup.app"),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

// llmAPIKey prefers LLM_API_KEY and falls back to the provider specific variable.
func llmAPIKey(provider string) string {
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		return key
	}
	switch provider {
	case "gemini":
		return mustGetEnv("GEMINI_API_KEY")
	default:
		return mustGetEnv("GROQ_API_KEY")
	}
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mailmind_server/pkg/apperr"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "mailmind"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Storage
	DatabaseURL string
	AutoMigrate bool
	RedisURL    string
	MongoDBURL  string
	MongoDBName string

	// Neo4j
	Neo4jURL      string
	Neo4jUsername string
	Neo4jPassword string

	// JWT (empty disables API auth)
	JWTSecret string

	// Requests per minute per caller on /agents (0 disables)
	AgentRateLimit int

	// LLM (OpenAI compatible endpoint)
	OpenAIAPIKey  string
	OpenAIBaseURL string
	LLMModel      string
	LLMTimeoutSec int

	// Skill library
	SnapshotBackend string // file | mongo
	SnapshotPath    string
	CompanyLabel    string
	LearnEmailCount int

	// Gmail
	GmailClientID     string
	GmailClientSecret string
	GmailRefreshToken string
	GmailQuery        string

	// Worker
	WorkerID       string
	WorkerMax      int
	WorkerGroup    string
	JobTimeout     time.Duration
	ClassifyTTL    time.Duration
	ShutdownWait   time.Duration
	AllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", "sqlite://./data/mailmind.db"),
		AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", true),
		RedisURL:    getEnv("REDIS_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "mailmind"),

		Neo4jURL:      getEnv("NEO4J_URL", ""),
		Neo4jUsername: getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		AgentRateLimit: getEnvInt("AGENT_RATE_LIMIT", 30),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeoutSec: getEnvInt("LLM_TIMEOUT_SEC", 120),

		SnapshotBackend: getEnv("SNAPSHOT_BACKEND", "file"),
		SnapshotPath:    getEnv("SNAPSHOT_PATH", "./data/skills.json"),
		CompanyLabel:    getEnv("COMPANY_LABEL", "We"),
		LearnEmailCount: getEnvInt("LEARN_EMAIL_COUNT", 100),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),
		GmailQuery:        getEnv("GMAIL_QUERY", "in:inbox"),

		WorkerID:       getEnv("WORKER_ID", generateWorkerID()),
		WorkerMax:      getEnvInt("WORKER_MAX", 4),
		WorkerGroup:    getEnv("WORKER_GROUP", "mailmind-workers"),
		JobTimeout:     getEnvDuration("JOB_TIMEOUT", 0),
		ClassifyTTL:    getEnvDuration("CLASSIFY_CACHE_TTL", 24*time.Hour),
		ShutdownWait:   getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every run mode depends on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return apperr.ConfigError("DATABASE_URL is required")
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 {
		return apperr.ConfigError(fmt.Sprintf("invalid PORT %q", c.Port))
	}
	switch c.SnapshotBackend {
	case "file", "mongo":
	default:
		return apperr.ConfigError(fmt.Sprintf("invalid SNAPSHOT_BACKEND %q", c.SnapshotBackend))
	}
	if c.SnapshotBackend == "mongo" && c.MongoDBURL == "" {
		return apperr.ConfigError("SNAPSHOT_BACKEND=mongo requires MONGODB_URL")
	}
	return nil
}

// GmailEnabled reports whether mailbox sync and sending are configured.
func (c *Config) GmailEnabled() bool {
	return c.GmailClientID != "" && c.GmailClientSecret != "" && c.GmailRefreshToken != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App      AppConfig
	Paths    PathsConfig
	Database DatabaseConfig
	Gateway  GatewayConfig
	AI       AIConfig
	Worker   WorkerConfig
	Campaign CampaignConfig
	Backfill BackfillConfig
	Security SecurityConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasicAuth          []string
	BasePath           string
	TrustedProxies     []string
	BaseUrl            string
	CorsAllowedOrigins []string
	ServerID           string
}

type PathsConfig struct {
	Storages string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

// GatewayConfig points at the external messaging gateway used as the
// outbound send channel. The inbound side arrives over the webhook surface.
type GatewayConfig struct {
	BaseURL      string
	APIKey       string
	WebhookToken string
	TypeUser     string
	TypeGroup    string
}

type AIConfig struct {
	Provider           string // "gemini" | "openai"
	APIKey             string
	Model              string
	GlobalSystemPrompt string
	Timezone           string
}

type WorkerConfig struct {
	Size           int
	QueueSize      int
	RatePerSecond  float64
	MaxAttempts    int
	RetryBaseDelay int // milliseconds
}

type CampaignConfig struct {
	MinDelayMs int
	MaxDelayMs int
}

type BackfillConfig struct {
	BatchSize int
}

type SecurityConfig struct {
	SecretKey string
}

// Global provides access to the loaded configuration globally.
var Global *Config

// LoadConfig loads configuration from environment variables or defaults.
func LoadConfig() (*Config, error) {
	debug := false
	if v := os.Getenv("APP_DEBUG"); v == "true" || v == "1" || v == "on" {
		debug = true
	}

	var basicAuth []string
	if v := os.Getenv("APP_BASIC_AUTH"); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := os.Getenv("APP_CORS_ALLOWED_ORIGINS"); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:            "v1.2.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              debug,
		Environment:        getEnv("APP_ENV", "development"),
		BasicAuth:          basicAuth,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		BaseUrl:            getEnv("APP_BASE_URL", "http://localhost:3000"),
		CorsAllowedOrigins: corsOrigins,
		ServerID:           getEnv("SERVER_ID", ""),
	}
	if v := os.Getenv("APP_TRUSTED_PROXIES"); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	pathsCfg := PathsConfig{
		Storages: getEnv("APP_BASE_DIR", "storages"),
	}

	dbCfg := DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", "sqlite"),
		Name:            getEnv("DB_NAME", filepath.Join(pathsCfg.Storages, "app.db")),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "azflow:"),
	}

	gatewayCfg := GatewayConfig{
		BaseURL:      getEnv("GATEWAY_BASE_URL", "http://localhost:8080"),
		APIKey:       getEnv("GATEWAY_API_KEY", ""),
		WebhookToken: getEnv("GATEWAY_WEBHOOK_TOKEN", ""),
		TypeUser:     "@s.whatsapp.net",
		TypeGroup:    "@g.us",
	}

	aiCfg := AIConfig{
		Provider:           getEnv("AI_PROVIDER", "gemini"),
		APIKey:             getEnv("AI_API_KEY", ""),
		Model:              getEnv("AI_MODEL", ""),
		GlobalSystemPrompt: getEnv("AI_GLOBAL_SYSTEM_PROMPT", ""),
		Timezone:           getEnv("AI_TIMEZONE", ""),
	}

	workerCfg := WorkerConfig{
		Size:           getEnvInt("MESSAGE_WORKER_POOL_SIZE", 5),
		QueueSize:      getEnvInt("MESSAGE_WORKER_QUEUE_SIZE", 1000),
		RatePerSecond:  getEnvFloat("MESSAGE_WORKER_RATE_PER_SECOND", 5),
		MaxAttempts:    getEnvInt("MESSAGE_WORKER_MAX_ATTEMPTS", 3),
		RetryBaseDelay: getEnvInt("MESSAGE_WORKER_RETRY_BASE_DELAY_MS", 1000),
	}

	campaignCfg := CampaignConfig{
		MinDelayMs: getEnvInt("CAMPAIGN_MIN_DELAY_MS", 1000),
		MaxDelayMs: getEnvInt("CAMPAIGN_MAX_DELAY_MS", 3000),
	}

	backfillCfg := BackfillConfig{
		BatchSize: getEnvInt("BACKFILL_BATCH_SIZE", 500),
	}

	cfg := &Config{
		App:      appCfg,
		Paths:    pathsCfg,
		Database: dbCfg,
		Gateway:  gatewayCfg,
		AI:       aiCfg,
		Worker:   workerCfg,
		Campaign: campaignCfg,
		Backfill: backfillCfg,
		Security: SecurityConfig{SecretKey: getEnv("APP_SECRET_KEY", "changeme_please_change_me_in_prod_12345")},
	}

	Global = cfg
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

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return fallback
}

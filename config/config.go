package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// S3Config holds the optional media offload target.
type S3Config struct {
	Enabled   bool
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PathStyle bool
	PublicURL string
}

// Config holds the static configuration loaded at process start. Values that
// are editable from the dashboard act as fallbacks; the settings table takes
// priority over them at read time (see Runtime).
type Config struct {
	Host       string
	Port       string
	InstanceID string

	DatabaseDSN string

	GatewayURL   string
	GatewayToken string

	DashboardToken string

	// Dashboard-editable fallbacks.
	WebhookURL         string
	WebhookToken       string
	APIToken           string
	WebhookEnabled     bool
	AutoReplyEnabled   bool
	AutoReplyMessage   string
	PauseDurationHours int

	QRToTerminal bool

	RabbitURL         string
	RabbitQueue       string
	RabbitQueuePrefix string

	S3 S3Config
}

// Load reads configuration from a .env file (if present) and the
// environment. Missing required values fail the load.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		Host:       envOr("APP_HOST", "0.0.0.0"),
		Port:       envOr("APP_PORT", "3000"),
		InstanceID: envOr("INSTANCE_ID", "wabridge"),

		DatabaseDSN: envOr("DATABASE_DSN", "file:data/wabridge.db?_pragma=busy_timeout(10000)"),

		GatewayURL:   os.Getenv("GATEWAY_URL"),
		GatewayToken: os.Getenv("GATEWAY_TOKEN"),

		DashboardToken: os.Getenv("DASHBOARD_TOKEN"),

		WebhookURL:         os.Getenv("WEBHOOK_URL"),
		WebhookToken:       os.Getenv("WEBHOOK_TOKEN"),
		APIToken:           os.Getenv("API_TOKEN"),
		WebhookEnabled:     envBool("WEBHOOK_ENABLED", true),
		AutoReplyEnabled:   envBool("AUTO_REPLY_ENABLED", false),
		AutoReplyMessage:   os.Getenv("AUTO_REPLY_MESSAGE"),
		PauseDurationHours: envInt("PAUSE_DURATION_HOURS", 4),

		QRToTerminal: envBool("QR_TERMINAL", false),

		RabbitURL:         os.Getenv("RABBITMQ_URL"),
		RabbitQueue:       envOr("RABBITMQ_QUEUE", "whatsapp_events"),
		RabbitQueuePrefix: envOr("RABBITMQ_QUEUE_PREFIX", "wabridge"),

		S3: S3Config{
			Enabled:   envBool("S3_ENABLED", false),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			Region:    envOr("S3_REGION", "us-east-1"),
			Bucket:    os.Getenv("S3_BUCKET"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			PathStyle: envBool("S3_PATH_STYLE", false),
			PublicURL: os.Getenv("S3_PUBLIC_URL"),
		},
	}

	if cfg.APIToken == "" {
		return nil, fmt.Errorf("API_TOKEN is required")
	}
	if cfg.S3.Enabled && cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required when S3_ENABLED is set")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

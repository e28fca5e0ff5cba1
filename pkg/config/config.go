package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseDSN string

	// OAuth client credentials, one pair per storage provider
	MicrosoftClientID     string
	MicrosoftClientSecret string
	GoogleClientID        string
	GoogleClientSecret    string

	// Secret used to derive the AES key for token encryption at rest
	TokenEncryptionSecret string

	// Outbound mail API
	MailAPIKey     string
	MailAPIBaseURL string
	MailFromEmail  string
	MailFromName   string

	// Optional path to the pandoc binary used by the primary converter.
	// Empty means "look it up on PATH".
	PandocPath     string
	ConvertTimeout time.Duration

	// Sanitizer tunables. These thresholds are empirical; keep them
	// configurable rather than baked in.
	HeaderDominanceRatio float64
	ContentLossRatio     float64
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	convertTimeout := 30 * time.Second
	if t := os.Getenv("CONVERT_TIMEOUT"); t != "" {
		if parsed, err := time.ParseDuration(t); err == nil {
			convertTimeout = parsed
		}
	}

	return &Config{
		Port:                  getEnv("PORT", "8080"),
		DatabaseDSN:           getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=mail2md port=5432 sslmode=disable"),
		MicrosoftClientID:     getEnv("MICROSOFT_CLIENT_ID", ""),
		MicrosoftClientSecret: getEnv("MICROSOFT_CLIENT_SECRET", ""),
		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		TokenEncryptionSecret: getEnv("TOKEN_ENCRYPTION_SECRET", ""),
		MailAPIKey:            getEnv("MAIL_API_KEY", ""),
		MailAPIBaseURL:        getEnv("MAIL_API_BASE_URL", "https://api.sendgrid.com"),
		MailFromEmail:         getEnv("MAIL_FROM_EMAIL", "convert@mail2md.app"),
		MailFromName:          getEnv("MAIL_FROM_NAME", "Mail2MD"),
		PandocPath:            getEnv("PANDOC_PATH", ""),
		ConvertTimeout:        convertTimeout,
		HeaderDominanceRatio:  getEnvFloat("HEADER_DOMINANCE_RATIO", 0.6),
		ContentLossRatio:      getEnvFloat("CONTENT_LOSS_RATIO", 0.1),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

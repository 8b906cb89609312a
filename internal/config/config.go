package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment           string
	HTTPPort              string
	ServiceName           string
	Namespaces            []string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	GoogleClientID        string
	GoogleJWKSURL         string
	AllowUnverifiedGoogle bool
	SMTPHost              string
	SMTPPort              int
	SMTPUser              string
	SMTPPass              string
	OTPTTL                time.Duration
	OTPSweepInterval      time.Duration
	SessionTokenBytes     int
	RateLimitRPM          int
	TelemetryEndpoint     string
	TelemetryInsecure     bool
	CORSAllowedOrigins    []string
	CORSAllowedMethods    []string
	CORSAllowedHeaders    []string
	CORSAllowCredentials  bool
}

// Load reads configuration from environment variables with sane defaults.
// Every value has a default so the service runs fully in-memory out of the
// box; DATABASE_URL and REDIS_ADDR opt into durable backends.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:           getEnv("APP_ENV", "development"),
		HTTPPort:              getEnv("HTTP_PORT", "5000"),
		ServiceName:           getEnv("SERVICE_NAME", "otk-auth"),
		Namespaces:            getList("NAMESPACES", []string{"hiring", "work"}),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getInt("REDIS_DB", 0),
		GoogleClientID:        strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		GoogleJWKSURL:         getEnv("GOOGLE_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs"),
		AllowUnverifiedGoogle: getBool("ALLOW_UNVERIFIED_GOOGLE", true),
		SMTPHost:              getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:              getInt("SMTP_PORT", 587),
		SMTPUser:              os.Getenv("SMTP_USER"),
		SMTPPass:              os.Getenv("SMTP_PASS"),
		OTPTTL:                getDuration("OTP_TTL", 10*time.Minute),
		OTPSweepInterval:      getDuration("OTP_SWEEP_INTERVAL", time.Minute),
		SessionTokenBytes:     getInt("SESSION_TOKEN_BYTES", 24),
		RateLimitRPM:          getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:     getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:    getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:    getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:    getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials:  getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.SessionTokenBytes < 24 {
		cfg.SessionTokenBytes = 24
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}

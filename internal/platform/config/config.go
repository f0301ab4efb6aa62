package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults that govern the verification lifecycle. The inquiry TTL is a
// provider-side fact (inquiries go stale after 7 days); the token TTL is our
// own signed-link window and is deliberately longer.
const (
	InquiryTTL          = 7 * 24 * time.Hour
	VerificationLinkTTL = 14 * 24 * time.Hour
	ReminderBatchCap    = 500
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	CronToken     string
}

// Provider configures the external identity-verification service.
type Provider struct {
	BaseURL       string
	APIKey        string
	KYCTemplateID string
	KYBTemplateID string
	Timeout       time.Duration
}

// Attestation configures the attestation signing service.
type Attestation struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Redis configures the optional provider-lookup cache.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the audit event pipeline.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Config is the full process configuration.
type Config struct {
	Server      Server
	DatabaseURL string
	Provider    Provider
	Attestation Attestation
	Redis       Redis
	Kafka       Kafka
}

// FromEnv builds the process config from environment variables so main stays
// lean. Template IDs intentionally have no default: engine operations fail
// with a configuration error when they are unset.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envOr("ATLAS_ADDR", ":8080"),
			JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			CronToken:     os.Getenv("CRON_ADMIN_TOKEN"),
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Provider: Provider{
			BaseURL:       os.Getenv("PROVIDER_BASE_URL"),
			APIKey:        os.Getenv("PROVIDER_API_KEY"),
			KYCTemplateID: os.Getenv("KYC_TEMPLATE_ID"),
			KYBTemplateID: os.Getenv("KYB_TEMPLATE_ID"),
			Timeout:       envDurationOr("PROVIDER_TIMEOUT", 10*time.Second),
		},
		Attestation: Attestation{
			BaseURL: os.Getenv("ATTESTATION_BASE_URL"),
			APIKey:  os.Getenv("ATTESTATION_API_KEY"),
			Timeout: envDurationOr("ATTESTATION_TIMEOUT", 15*time.Second),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envIntOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("AUDIT_TOPIC", "atlas.audit.events"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

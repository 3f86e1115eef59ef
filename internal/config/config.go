package config

import (
	"fmt"
	"strings"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	APIPort            int    `env:"API_PORT,default=8080"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
	WorkerConcurrency  int    `env:"WORKER_CONCURRENCY,default=16"`
	RateLimitPerSec    int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	SMSRateLimitPerSec int    `env:"SMS_RATE_LIMIT_PER_SEC,default=0"`

	SchedulerIntervalSec  int `env:"SCHEDULER_INTERVAL_SEC,default=60"`
	SchedulerLookaheadSec int `env:"SCHEDULER_LOOKAHEAD_SEC,default=300"`
	SchedulerScanLimit    int `env:"SCHEDULER_SCAN_LIMIT,default=100"`

	// Ordered provider chains per channel, comma-separated. The first entry
	// is the primary; the rest are failover candidates.
	EmailProviders string `env:"EMAIL_PROVIDERS,default=smtp"`
	SMSProviders   string `env:"SMS_PROVIDERS,default=smsgate"`
	PushProviders  string `env:"PUSH_PROVIDERS,default=pushgate"`

	// SMSFallbackProvider delivers to phone-less recipients when a
	// notification allows email fallback. Empty disables the fallback.
	SMSFallbackProvider string `env:"SMS_FALLBACK_PROVIDER,default=smtp"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,default=587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	SMSGateEndpoint string `env:"SMSGATE_ENDPOINT"`
	SMSGateAPIKey   string `env:"SMSGATE_API_KEY"`

	SMSRelayEndpoint string `env:"SMSRELAY_ENDPOINT"`
	SMSRelayUsername string `env:"SMSRELAY_USERNAME"`
	SMSRelayPassword string `env:"SMSRELAY_PASSWORD"`

	PushGateEndpoint string `env:"PUSHGATE_ENDPOINT"`
	PushGateAPIKey   string `env:"PUSHGATE_API_KEY"`

	// DLRCallbackURL is handed to gateways so their delivery reports come
	// back to our webhook.
	DLRCallbackURL string `env:"DLR_CALLBACK_URL"`

	// MeterMonthlyLimit caps per-user monthly usage units; 0 disables the
	// quota while keeping the audit log.
	MeterMonthlyLimit  float64 `env:"METER_MONTHLY_LIMIT,default=0"`
	MeterSMSItemPrice  float64 `env:"METER_SMS_ITEM_PRICE,default=1"`
	MeterMailItemPrice float64 `env:"METER_MAIL_ITEM_PRICE,default=0"`
	MeterPushItemPrice float64 `env:"METER_PUSH_ITEM_PRICE,default=0"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// ProviderChain splits a comma-separated provider list, dropping blanks.
func ProviderChain(joined string) []string {
	parts := strings.Split(joined, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		out = append(out, name)
	}
	return out
}

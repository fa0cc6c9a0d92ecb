package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	aws_pkg "github.com/AymanAbdiMohamed/Donation-Platform-backend/pkg/aws"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/providers"
)

// Secret names read when AWS_USE_SECRETS=true.
const (
	dbSecretName    = "donations/DB_CREDENTIALS"
	mpesaSecretName = "donations/MPESA_CREDENTIALS"
)

// Event backends.
const (
	EventBackendSNS   = "sns"
	EventBackendKafka = "kafka"
	EventBackendNone  = "none"
)

type Config struct {
	Port          string
	Env           string
	DBAutoMigrate bool

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	MpesaBaseURL          string
	MpesaConsumerKey      string
	MpesaConsumerSecret   string
	MpesaShortCode        string
	MpesaPasskey          string
	MpesaCallbackURL      string
	MpesaMockMode         bool
	MpesaMockCallbackWait time.Duration
	MpesaHTTPTimeout      time.Duration

	JWTSecret string

	EventBackend        string
	DonationSNSTopicARN string
	KafkaBrokers        []string
	KafkaDonationTopic  string

	RedisURL              string
	CallbackArchiveBucket string

	ReconcileInterval     time.Duration
	ReconcilePendingAfter time.Duration
	ReconcileExpireAfter  time.Duration
	ReconcileQueryRPS     float64

	CloudWatchEnabled   bool
	CloudWatchNamespace string
	CloudWatchLogGroup  string
}

// SecretSource reads JSON object secrets. *aws.SecretsClient satisfies it.
type SecretSource interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// LoadConfig reads configuration from environment variables with optional
// Secrets Manager override.
func LoadConfig() (*Config, error) {
	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := aws_pkg.LoadAWSConfig(context.Background()); err == nil {
			cfg.applySecrets(context.Background(), aws_pkg.NewSecretsClient(awsCfg))
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8090"),
		Env:           getEnv("APP_ENV", "development"),
		DBAutoMigrate: getEnv("DB_AUTO_MIGRATE", "true") == "true",

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "Africa/Nairobi"),

		MpesaBaseURL:        getEnv("MPESA_BASE_URL", providers.BaseURLForEnv(os.Getenv("MPESA_ENV"))),
		MpesaConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
		MpesaConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
		MpesaShortCode:      os.Getenv("MPESA_SHORTCODE"),
		MpesaPasskey:        os.Getenv("MPESA_PASSKEY"),
		MpesaCallbackURL:    os.Getenv("MPESA_STK_CALLBACK_URL"),
		MpesaMockMode:       getEnv("MPESA_MOCK_MODE", "false") == "true",

		JWTSecret: os.Getenv("JWT_SECRET"),

		EventBackend:        strings.ToLower(getEnv("EVENT_BACKEND", EventBackendSNS)),
		DonationSNSTopicARN: os.Getenv("DONATION_SNS_TOPIC_ARN"),
		KafkaBrokers:        splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaDonationTopic:  getEnv("KAFKA_DONATION_TOPIC", "donation-events"),

		RedisURL:              os.Getenv("REDIS_URL"),
		CallbackArchiveBucket: os.Getenv("CALLBACK_ARCHIVE_BUCKET"),

		CloudWatchEnabled:   os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", "DonationPlatform"),
		CloudWatchLogGroup:  getEnv("CLOUDWATCH_LOG_GROUP", "/donation-platform/services"),
	}

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"MPESA_MOCK_CALLBACK_DELAY", 30 * time.Second, &cfg.MpesaMockCallbackWait},
		{"MPESA_HTTP_TIMEOUT", 30 * time.Second, &cfg.MpesaHTTPTimeout},
		{"RECONCILE_INTERVAL", time.Minute, &cfg.ReconcileInterval},
		{"RECONCILE_PENDING_AFTER", 5 * time.Minute, &cfg.ReconcilePendingAfter},
		{"RECONCILE_EXPIRE_AFTER", 24 * time.Hour, &cfg.ReconcileExpireAfter},
	}
	for _, d := range durations {
		v, err := getDuration(d.key, d.fallback)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	rps, err := getFloat("RECONCILE_QUERY_RPS", 2)
	if err != nil {
		return nil, err
	}
	cfg.ReconcileQueryRPS = rps
	return cfg, nil
}

// applySecrets overrides DB and M-Pesa credentials with values from src.
// Missing secrets leave the environment values in place.
func (c *Config) applySecrets(ctx context.Context, src SecretSource) {
	if m, err := src.GetSecretMap(ctx, dbSecretName); err == nil {
		override(&c.PostgresUser, m, "POSTGRES_USER")
		override(&c.PostgresPassword, m, "POSTGRES_PASSWORD")
		override(&c.PostgresDB, m, "POSTGRES_DB")
		override(&c.PostgresHost, m, "POSTGRES_HOST")
		override(&c.PostgresPort, m, "POSTGRES_PORT")
	}
	if m, err := src.GetSecretMap(ctx, mpesaSecretName); err == nil {
		override(&c.MpesaConsumerKey, m, "MPESA_CONSUMER_KEY")
		override(&c.MpesaConsumerSecret, m, "MPESA_CONSUMER_SECRET")
		override(&c.MpesaShortCode, m, "MPESA_SHORTCODE")
		override(&c.MpesaPasskey, m, "MPESA_PASSKEY")
	}
}

func (c *Config) validate() error {
	if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" || c.PostgresHost == "" {
		return fmt.Errorf("database config incomplete")
	}
	switch c.EventBackend {
	case EventBackendSNS, EventBackendKafka, EventBackendNone:
	default:
		return fmt.Errorf("unknown EVENT_BACKEND %q", c.EventBackend)
	}
	return nil
}

// MpesaConfigured reports whether every Daraja credential is present.
func (c *Config) MpesaConfigured() bool {
	return c.MpesaConsumerKey != "" && c.MpesaConsumerSecret != "" &&
		c.MpesaShortCode != "" && c.MpesaPasskey != "" && c.MpesaCallbackURL != ""
}

// PostgresDSN returns the connection string for the gorm postgres driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
		c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone)
}

func override(dst *string, m map[string]string, key string) {
	if v, ok := m[key]; ok && v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getDuration accepts Go durations ("90s") or plain seconds ("90").
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, val)
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Package config centralizes environment-variable driven configuration,
// following the pattern duplicated across the teacher's cmd/*/main.go
// entrypoints: godotenv for local development, Secrets-Manager-resolved
// DSNs for deployed stages, fail-fast validation at startup.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"

	"poscore/internal/constants"
)

// Config holds everything the services in this repo need at startup.
type Config struct {
	Stage string

	PostgresDSN string
	RedisAddr   string
	RedisDB     int

	QueueURLTranLog      string
	QueueURLCashLog      string
	QueueURLOpenCloseLog string

	RoundingMode          string
	CurrencyDecimalPlaces int32

	BreakerFailureThreshold int
	BreakerResetTimeout     time.Duration

	RepublishInterval  time.Duration
	RepublishLookback  time.Duration
	RepublishFailAfter time.Duration

	DedupTTL time.Duration

	CartCacheTTL time.Duration

	OutboundTimeout time.Duration
}

type secretPayload struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
}

// Load reads configuration from the environment. In local mode it first
// loads a .env file if present (teacher's pattern in every cmd/*/main.go);
// in deployed stages it resolves the Postgres DSN via Secrets Manager
// rather than a bare environment variable.
func Load(ctx context.Context) (*Config, error) {
	stage := os.Getenv("STAGE")
	if stage == "" {
		stage = constants.StageLocal
	}

	if stage == constants.StageLocal {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Stage:                   stage,
		RedisAddr:               envOr("REDIS_ADDR", "localhost:6379"),
		RedisDB:                 envIntOr("REDIS_DB", 0),
		QueueURLTranLog:         os.Getenv("QUEUE_URL_TRANLOG"),
		QueueURLCashLog:         os.Getenv("QUEUE_URL_CASHLOG"),
		QueueURLOpenCloseLog:    os.Getenv("QUEUE_URL_OPENCLOSELOG"),
		RoundingMode:            envOr("ROUNDING_MODE", constants.RoundingHalfUp),
		CurrencyDecimalPlaces:   int32(envIntOr("CURRENCY_DECIMAL_PLACES", 0)),
		BreakerFailureThreshold: envIntOr("BREAKER_FAILURE_THRESHOLD", 3),
		BreakerResetTimeout:     envDurationOr("BREAKER_RESET_TIMEOUT", 60*time.Second),
		RepublishInterval:       envDurationOr("REPUBLISH_INTERVAL", 5*time.Minute),
		RepublishLookback:       envDurationOr("REPUBLISH_LOOKBACK", 24*time.Hour),
		RepublishFailAfter:      envDurationOr("REPUBLISH_FAIL_AFTER", 30*time.Minute),
		DedupTTL:                envDurationOr("DEDUP_TTL", 26*time.Hour),
		CartCacheTTL:            envDurationOr("CART_CACHE_TTL", 12*time.Hour),
		OutboundTimeout:         envDurationOr("OUTBOUND_TIMEOUT", 30*time.Second),
	}

	dsn, err := resolveDSN(ctx, stage)
	if err != nil {
		return nil, fmt.Errorf("resolving postgres DSN: %w", err)
	}
	cfg.PostgresDSN = dsn

	return cfg, nil
}

func resolveDSN(ctx context.Context, stage string) (string, error) {
	if stage == constants.StageLocal {
		if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
			return dsn, nil
		}
		return "", fmt.Errorf("DATABASE_URL not set for local stage")
	}

	secretID := os.Getenv("DB_SECRET_ID")
	if secretID == "" {
		return "", fmt.Errorf("DB_SECRET_ID not set for stage %q", stage)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("loading aws config: %w", err)
	}
	client := secretsmanager.NewFromConfig(awsCfg)
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("fetching secret %s: %w", secretID, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretID)
	}

	var payload secretPayload
	if err := json.Unmarshal([]byte(*out.SecretString), &payload); err != nil {
		return "", fmt.Errorf("parsing secret %s: %w", secretID, err)
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", payload.Username, payload.Password, payload.Host, payload.Port, payload.DBName), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDurationOr(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

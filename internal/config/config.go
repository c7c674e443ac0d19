package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName          = "VIPClub"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultVerifyDelay      = 3 * time.Second
	defaultPollInterval     = 30 * time.Second
	defaultSecurityInterval = time.Minute
	defaultUploadDir        = "./uploads"
	defaultPublicBaseURL    = "http://localhost:8080/uploads"
	defaultAccessLinkBase   = "https://t.me/+"
	defaultUploadsPerMinute = 10
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	UploadDir      string
	PublicBaseURL  string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	AccessLinkBase string
	VerifyDelay    time.Duration

	TelegramBotToken    string
	TelegramModerator   int64
	AdminKeyHash        string
	PollInterval        time.Duration
	SecurityInterval    time.Duration
	UploadsPerMinute    int
	StripeWebhookSecret string
	YooKassaSecret      string
	QiwiSecret          string
	TinkoffPassword     string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:             getEnv("APP_NAME", defaultAppName),
		AppEnv:              getEnv("APP_ENV", defaultAppEnv),
		Port:                getEnv("PORT", defaultPort),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:           strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		UploadDir:           getEnv("UPLOAD_DIR", defaultUploadDir),
		PublicBaseURL:       strings.TrimRight(getEnv("PUBLIC_BASE_URL", defaultPublicBaseURL), "/"),
		S3Bucket:            os.Getenv("S3_BUCKET"),
		S3Region:            os.Getenv("S3_REGION"),
		S3Endpoint:          os.Getenv("S3_ENDPOINT"),
		S3AccessKey:         os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:         os.Getenv("S3_SECRET_KEY"),
		AccessLinkBase:      getEnv("ACCESS_LINK_BASE", defaultAccessLinkBase),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		AdminKeyHash:        os.Getenv("ADMIN_KEY_HASH"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		YooKassaSecret:      os.Getenv("YOOKASSA_SECRET"),
		QiwiSecret:          os.Getenv("QIWI_SECRET"),
		TinkoffPassword:     os.Getenv("TINKOFF_PASSWORD"),
	}

	var err error
	if cfg.ShutdownPeriod, err = getEnvDuration("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = getEnvDuration("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.VerifyDelay, err = getEnvDuration("VERIFY_DELAY", defaultVerifyDelay); err != nil {
		return Config{}, err
	}
	if cfg.PollInterval, err = getEnvDuration("NOTIFICATION_POLL_INTERVAL", defaultPollInterval); err != nil {
		return Config{}, err
	}
	if cfg.SecurityInterval, err = getEnvDuration("SECURITY_CHECK_INTERVAL", defaultSecurityInterval); err != nil {
		return Config{}, err
	}
	if cfg.UploadsPerMinute, err = getEnvInt("SCREENSHOT_UPLOADS_PER_MINUTE", defaultUploadsPerMinute); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("TELEGRAM_MODERATOR_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TELEGRAM_MODERATOR_CHAT_ID: %w", err)
		}
		cfg.TelegramModerator = id
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.AdminKeyHash == "" {
			return Config{}, fmt.Errorf("ADMIN_KEY_HASH must be set")
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a local development environment,
// where Postgres and Redis fall back to in-memory implementations.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// getEnvDuration accepts both Go duration strings ("90s") and a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

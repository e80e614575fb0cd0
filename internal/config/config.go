package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries all runtime settings, sourced from the environment.
type Config struct {
	AppEnv           string
	LogLevel         string
	LogFormat        string
	HTTPListenAddr   string
	PublicBasePath   string
	MetricsNamespace string

	// Store. Driver selects between "postgres" and "sqlite".
	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	TelegramBotToken   string
	TelegramAPIBaseURL string
	TelegramTimeout    time.Duration
	OperatorChatID     string

	// AdminToken guards the operator endpoints. Empty disables them.
	AdminToken string

	Rewards RewardPolicy
}

// RewardPolicy holds the point amounts and time gates for the rewards
// program. Defaults match the production policy; every value can be
// overridden per deployment.
type RewardPolicy struct {
	AdRewardPoints   int64
	AdCooldown       time.Duration
	DailyBonusPoints int64
	DailyBonusWindow time.Duration
	ReferralBonus    int64
	MinWithdrawal    int64
	BalanceCacheTTL  time.Duration
	NotifyQueueDepth int
}

// Load reads configuration from the environment. A local .env file is
// honoured when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":8080"),
		PublicBasePath:   getEnv("PUBLIC_BASE_PATH", ""),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "adpoints"),

		StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "data/adpoints.db"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		TelegramBotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIBaseURL: getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
		OperatorChatID:     getEnv("OPERATOR_CHAT_ID", ""),

		AdminToken: getEnv("ADMIN_TOKEN", ""),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RedisTLS, err = getEnvBool("REDIS_TLS", false); err != nil {
		return nil, err
	}
	if cfg.TelegramTimeout, err = getEnvDuration("TELEGRAM_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	rewards := RewardPolicy{}
	if rewards.AdRewardPoints, err = getEnvInt64("AD_REWARD_POINTS", 10); err != nil {
		return nil, err
	}
	if rewards.AdCooldown, err = getEnvDuration("AD_COOLDOWN", 60*time.Second); err != nil {
		return nil, err
	}
	if rewards.DailyBonusPoints, err = getEnvInt64("DAILY_BONUS_POINTS", 20); err != nil {
		return nil, err
	}
	if rewards.DailyBonusWindow, err = getEnvDuration("DAILY_BONUS_WINDOW", 24*time.Hour); err != nil {
		return nil, err
	}
	if rewards.ReferralBonus, err = getEnvInt64("REFERRAL_BONUS_POINTS", 100); err != nil {
		return nil, err
	}
	if rewards.MinWithdrawal, err = getEnvInt64("MIN_WITHDRAWAL_POINTS", 100); err != nil {
		return nil, err
	}
	if rewards.BalanceCacheTTL, err = getEnvDuration("BALANCE_CACHE_TTL", 5*time.Second); err != nil {
		return nil, err
	}
	if rewards.NotifyQueueDepth, err = getEnvInt("NOTIFY_QUEUE_DEPTH", 256); err != nil {
		return nil, err
	}
	cfg.Rewards = rewards

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Rewards.AdRewardPoints <= 0 || c.Rewards.DailyBonusPoints <= 0 || c.Rewards.ReferralBonus <= 0 {
		return fmt.Errorf("reward point amounts must be positive")
	}
	if c.Rewards.MinWithdrawal <= 0 {
		return fmt.Errorf("MIN_WITHDRAWAL_POINTS must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/digkill/engagebot/internal/billing"
	"github.com/digkill/engagebot/internal/models"
	"github.com/digkill/engagebot/internal/period"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config aggregates runtime configuration for the engine and supporting services.
type Config struct {
	StoreDriver      string
	MySQLDSN         string
	AdminListenAddr  string
	AdminUsername    string
	AdminPassword    string
	ReviewDelayHours float64
	WeekStart        time.Weekday
	Rates            billing.RateTable
	LedgerMaxRetries int
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	StatsCacheTTL    time.Duration
	BotToken         string
	NotifyChatID     int64
	AllowedChatIDs   []int64
	S3Endpoint       string
	S3Region         string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3PublicBaseURL  string
	S3UsePathStyle   bool
	S3Prefix         string
	LogLevel         string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", StoreMySQL)),
		AdminListenAddr:  getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:    getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:    getEnv("ADMIN_PASSWORD", "change-me"),
		ReviewDelayHours: getFloat("REVIEW_DELAY_HOURS", 2),
		LedgerMaxRetries: getInt("LEDGER_MAX_RETRIES", 5),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getInt("REDIS_DB", 0),
		StatsCacheTTL:    time.Second * time.Duration(getPositiveInt("STATS_CACHE_TTL_SECONDS", 60)),
		NotifyChatID:     getInt64("TELEGRAM_NOTIFY_CHAT_ID", 0),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		S3Region:         os.Getenv("S3_REGION"),
		S3AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("S3_SECRET_KEY"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:  os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:   getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:         getEnv("S3_PREFIX", "reports"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")

	var invalid []string

	allowed, ok := getInt64List("TELEGRAM_ALLOWED_CHAT_IDS")
	if !ok {
		invalid = append(invalid, "TELEGRAM_ALLOWED_CHAT_IDS")
	}
	cfg.AllowedChatIDs = allowed

	weekStart, err := period.ParseWeekday(getEnv("WEEK_START_DAY", "sunday"))
	if err != nil {
		invalid = append(invalid, "WEEK_START_DAY")
	}
	cfg.WeekStart = weekStart

	cfg.Rates = billing.DefaultRateTable()
	cfg.Rates.Version = getEnv("BILLING_RATE_VERSION", cfg.Rates.Version)
	rateKeys := map[models.ConversationType]string{
		models.ConversationUtility:        "BILLING_RATE_UTILITY",
		models.ConversationAuthentication: "BILLING_RATE_AUTHENTICATION",
		models.ConversationMarketing:      "BILLING_RATE_MARKETING",
		models.ConversationService:        "BILLING_RATE_SERVICE",
	}
	for tier, key := range rateKeys {
		rate, ok := getMoney(key, cfg.Rates.Rates[tier])
		if !ok {
			invalid = append(invalid, key)
		}
		cfg.Rates.Rates[tier] = rate
	}
	surcharge, ok := getMoney("BILLING_SURCHARGE", cfg.Rates.Surcharge)
	if !ok {
		invalid = append(invalid, "BILLING_SURCHARGE")
	}
	cfg.Rates.Surcharge = surcharge

	var missing []string
	switch cfg.StoreDriver {
	case StoreMySQL:
		if cfg.MySQLDSN == "" {
			missing = append(missing, "MYSQL_DSN")
		}
	case StoreMemory:
	default:
		invalid = append(invalid, "STORE_DRIVER")
	}
	if (cfg.NotifyChatID != 0 || len(cfg.AllowedChatIDs) > 0) && cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.S3Bucket != "" {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if cfg.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variables: %v", invalid)
	}

	return cfg, nil
}

// ReportsEnabled reports whether monthly report archiving is configured.
func (c Config) ReportsEnabled() bool {
	return c.S3Bucket != ""
}

// BotEnabled reports whether the Telegram bot and owner notifications should run.
// The fallback notify chat is optional.
func (c Config) BotEnabled() bool {
	return c.BotToken != ""
}

// BotChats returns the chats allowed to run restricted bot commands.
// The notify chat is always allowed.
func (c Config) BotChats() []int64 {
	chats := append([]int64(nil), c.AllowedChatIDs...)
	if c.NotifyChatID != 0 && !slices.Contains(chats, c.NotifyChatID) {
		chats = append(chats, c.NotifyChatID)
	}
	return chats
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

// getPositiveInt falls back when the value is missing, malformed or not positive.
func getPositiveInt(key string, fallback int) int {
	if i := getInt(key, fallback); i > 0 {
		return i
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

// getInt64List parses a comma-separated list of ids; ok is false when any entry is malformed.
func getInt64List(key string) ([]int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return nil, true
	}
	var out []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, false
		}
		out = append(out, id)
	}
	return out, true
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getMoney returns ok=false when the variable is set but not a decimal amount.
func getMoney(key string, fallback models.Money) (models.Money, bool) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, true
	}
	m, err := models.ParseMoney(v)
	if err != nil {
		return fallback, false
	}
	return m, true
}

// loadEnvFile applies the first env file found. An explicit CONFIG_ENV_PATH must exist;
// the default locations are optional so plain environment variables work on their own.
func loadEnvFile() error {
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		if err := godotenv.Overload(custom); err != nil {
			return fmt.Errorf("load env file %s: %w", custom, err)
		}
		return nil
	}

	candidates := []string{
		filepath.Join("configs", ".env"),
		".env",
	}
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}

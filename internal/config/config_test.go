package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/engagebot/internal/models"
)

// clearEnv blanks every key Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_ENV_PATH", "STORE_DRIVER", "MYSQL_DSN", "ADMIN_LISTEN_ADDR", "ADMIN_USERNAME", "ADMIN_PASSWORD",
		"REVIEW_DELAY_HOURS", "WEEK_START_DAY", "BILLING_RATE_VERSION", "BILLING_RATE_UTILITY",
		"BILLING_RATE_AUTHENTICATION", "BILLING_RATE_MARKETING", "BILLING_RATE_SERVICE", "BILLING_SURCHARGE",
		"LEDGER_MAX_RETRIES", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "STATS_CACHE_TTL_SECONDS",
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_NOTIFY_CHAT_ID", "TELEGRAM_ALLOWED_CHAT_IDS", "S3_ENDPOINT", "S3_REGION", "S3_ACCESS_KEY",
		"S3_SECRET_KEY", "S3_BUCKET", "S3_PUBLIC_BASE_URL", "S3_USE_PATH_STYLE", "S3_PREFIX", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, ":8080", cfg.AdminListenAddr)
	assert.Equal(t, 2.0, cfg.ReviewDelayHours)
	assert.Equal(t, time.Sunday, cfg.WeekStart)
	assert.Equal(t, "2024-default", cfg.Rates.Version)
	assert.Equal(t, models.Money(300), cfg.Rates.Rates[models.ConversationUtility])
	assert.Equal(t, models.Money(50), cfg.Rates.Surcharge)
	assert.Equal(t, time.Minute, cfg.StatsCacheTTL)
	assert.False(t, cfg.ReportsEnabled())
	assert.False(t, cfg.BotEnabled())
	assert.Empty(t, cfg.BotChats())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/engage")
	t.Setenv("WEEK_START_DAY", "Mon")
	t.Setenv("BILLING_RATE_VERSION", "2025-q1")
	t.Setenv("BILLING_RATE_MARKETING", "0.0800")
	t.Setenv("BILLING_SURCHARGE", "0")
	t.Setenv("REVIEW_DELAY_HOURS", "1.5")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_NOTIFY_CHAT_ID", "-100200")
	t.Setenv("TELEGRAM_ALLOWED_CHAT_IDS", "42, 77,-100200")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMySQL, cfg.StoreDriver)
	assert.Equal(t, time.Monday, cfg.WeekStart)
	assert.Equal(t, "2025-q1", cfg.Rates.Version)
	assert.Equal(t, models.Money(800), cfg.Rates.Rates[models.ConversationMarketing])
	assert.Equal(t, models.Money(0), cfg.Rates.Surcharge)
	assert.Equal(t, 1.5, cfg.ReviewDelayHours)
	assert.Equal(t, int64(-100200), cfg.NotifyChatID)
	assert.True(t, cfg.BotEnabled())
	assert.Equal(t, []int64{42, 77, -100200}, cfg.BotChats())
}

func TestLoad_BotWithTokenOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_ALLOWED_CHAT_IDS", "42")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.BotEnabled())
	assert.Zero(t, cfg.NotifyChatID)
	assert.Equal(t, []int64{42}, cfg.BotChats())
}

func TestLoad_StatsCacheTTLClamped(t *testing.T) {
	for _, raw := range []string{"0", "-5", "soon"} {
		clearEnv(t)
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("STATS_CACHE_TTL_SECONDS", raw)

		cfg, err := Load()
		require.NoError(t, err, raw)
		assert.Equal(t, time.Minute, cfg.StatsCacheTTL, raw)
	}

	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STATS_CACHE_TTL_SECONDS", "15")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.StatsCacheTTL)
}

func TestLoad_MissingAndInvalid(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MYSQL_DSN")

	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("S3_BUCKET", "reports")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_REGION")

	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("BILLING_RATE_UTILITY", "three cents")
	t.Setenv("WEEK_START_DAY", "someday")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BILLING_RATE_UTILITY")
	assert.Contains(t, err.Error(), "WEEK_START_DAY")

	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_ALLOWED_CHAT_IDS", "42,owner")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_ALLOWED_CHAT_IDS")
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("STORE_DRIVER=memory\nADMIN_USERNAME=ops\nREDIS_ADDR=localhost:6379\n"), 0o600))
	t.Setenv("CONFIG_ENV_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ops", cfg.AdminUsername)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)

	t.Setenv("CONFIG_ENV_PATH", filepath.Join(t.TempDir(), "missing.env"))
	_, err = Load()
	assert.Error(t, err)
}

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_TIMEOUT", "REPORT_MONTH_FILL", "KAFKA_TOPIC", "MAX_PAGE_SIZE", "DB_AUTO_MIGRATE", "REPORT_CACHE_TTL_SECONDS", "EVENT_PUBLISH_TIMEOUT"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Address())
	require.Equal(t, 5*time.Second, cfg.StoreTimeout)
	require.Equal(t, "sparse", cfg.ReportMonthFill)
	require.Equal(t, "sales-events", cfg.KafkaTopic)
	require.Equal(t, 100, cfg.MaxPageSize)
	require.True(t, cfg.AutoMigrate)
	require.Equal(t, 30*time.Second, cfg.ReportCacheTTL())
	require.Equal(t, 2*time.Second, cfg.EventPublishTimeout)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("REPORT_MONTH_FILL", " Dense ")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SEED_DEMO_DATA", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Address())
	require.Equal(t, 750*time.Millisecond, cfg.StoreTimeout)
	require.Equal(t, "dense", cfg.ReportMonthFill)
	require.Equal(t, 3, cfg.RedisDB)
	require.False(t, cfg.SeedDemoData)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("STORE_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
}

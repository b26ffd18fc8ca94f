package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	require.Empty(t, cfg.AuthSecret, "AUTH_SECRET must stay empty when unset")
}

func TestLoadBatchLimitFallbacks(t *testing.T) {
	t.Setenv("SYNC_PUSH_BATCH_LIMIT", "not-a-number")
	t.Setenv("SYNC_PULL_BATCH_LIMIT", "-5")

	cfg := Load()
	require.Equal(t, 100, cfg.SyncPushBatchLimit)
	require.Equal(t, 500, cfg.SyncPullBatchLimit)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STATS_TTL_SECONDS", "15")
	t.Setenv("SYNC_PUSH_BATCH_LIMIT", "25")

	cfg := Load()
	require.Equal(t, ":9090", cfg.Address())
	require.Equal(t, 15, cfg.StatsTTLSeconds)
	require.Equal(t, 25, cfg.SyncPushBatchLimit)
}

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/ayo6706/wallet-transfer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
}

func TestLoadDefaults(t *testing.T) {
	setSecret(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, domain.StrategyPessimistic, cfg.DefaultStrategy)
	assert.Equal(t, 3, cfg.OptimisticMaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.OptimisticRetryBase)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 2*time.Second, cfg.NotificationPollInterval)
	assert.Equal(t, 50, cfg.NotificationBatchSize)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.False(t, cfg.AuthDevLogin)
}

func TestLoadPrefixedAliases(t *testing.T) {
	setSecret(t)
	t.Setenv("TRANSFER_PORT", "9090")
	t.Setenv("TRANSFER_DEFAULT_STRATEGY", "Optimistic")
	t.Setenv("OPTIMISTIC_MAX_RETRIES", "0")
	t.Setenv("AUTH_DEV_LOGIN", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, domain.StrategyOptimistic, cfg.DefaultStrategy)
	assert.Zero(t, cfg.OptimisticMaxRetries)
	assert.True(t, cfg.AuthDevLogin)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "JWT_SECRET"},
		{"unknown strategy", map[string]string{"DEFAULT_STRATEGY": "eventual"}, "DEFAULT_STRATEGY"},
		{"bad retry base", map[string]string{"OPTIMISTIC_RETRY_BASE": "soon"}, "OPTIMISTIC_RETRY_BASE"},
		{"negative retries", map[string]string{"OPTIMISTIC_MAX_RETRIES": "-1"}, "OPTIMISTIC_MAX_RETRIES"},
		{"bad ttl", map[string]string{"IDEMPOTENCY_TTL": "forever"}, "IDEMPOTENCY_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setSecret(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

package idempotency

import (
	"context"
	"testing"

	"github.com/ayo6706/wallet-transfer/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresBackend_Lifecycle(t *testing.T) {
	b := NewPostgresBackend(testdb.Open(t))
	ctx := context.Background()

	reserved, err := b.Reserve(ctx, "pg-key", "hash", "POST", "/v1/transfers")
	require.NoError(t, err)
	assert.True(t, reserved)

	reserved, err = b.Reserve(ctx, "pg-key", "hash", "POST", "/v1/transfers")
	require.NoError(t, err)
	assert.False(t, reserved)

	row, err := b.Get(ctx, "pg-key")
	require.NoError(t, err)
	assert.True(t, row.InProgress)

	_, err = b.Finalize(ctx, "pg-key", "other-hash", 201, []byte("{}"), "application/json")
	assert.ErrorIs(t, err, ErrNotFound)

	row, err = b.Finalize(ctx, "pg-key", "hash", 201, []byte(`{"id":1}`), "application/json")
	require.NoError(t, err)
	assert.False(t, row.InProgress)
	assert.Equal(t, 201, row.Status)

	require.NoError(t, b.Release(ctx, "pg-key", "hash"))
	_, err = b.Get(ctx, "pg-key")
	require.NoError(t, err, "completed keys are not released")

	_, err = b.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

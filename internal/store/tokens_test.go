package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trashtotreasure/treasure/internal/db"
)

func TestRevokeAndCheckToken(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	revoked, err := IsTokenRevoked(ctx, database, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, RevokeToken(ctx, database, "jti-1", time.Now().Add(time.Hour)))

	revoked, err = IsTokenRevoked(ctx, database, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = IsTokenRevoked(ctx, database, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevokeTokenIdempotent(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	require.NoError(t, RevokeToken(ctx, database, "jti-1", time.Now().Add(time.Hour)))
	require.NoError(t, RevokeToken(ctx, database, "jti-1", time.Now().Add(time.Hour)))
}

func TestRevokeTokenPurgesExpired(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	require.NoError(t, RevokeToken(ctx, database, "old", time.Now().Add(-time.Hour)))
	require.NoError(t, RevokeToken(ctx, database, "new", time.Now().Add(time.Hour)))

	revoked, err := IsTokenRevoked(ctx, database, "old")
	require.NoError(t, err)
	assert.False(t, revoked, "expired revocations are dropped")
}

func TestPurgeRevokedTokens(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	_, err := database.ExecContext(ctx,
		`INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?), (?, ?)`,
		"a", now.Add(-2*time.Hour).UTC(), "b", now.Add(time.Hour).UTC())
	require.NoError(t, err)

	n, err := PurgeRevokedTokens(ctx, database, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	revoked, err := IsTokenRevoked(ctx, database, "b")
	require.NoError(t, err)
	assert.True(t, revoked)
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trashtotreasure/treasure/internal/db"
)

func TestConsumeOTP(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	u := mustUser(t, database, "alice@example.com")
	now := time.Now()

	require.NoError(t, SetOTP(ctx, database, u.ID, "123456", now.Add(10*time.Minute)))

	ok, err := ConsumeOTP(ctx, database, u.ID, "000000", now)
	require.NoError(t, err)
	assert.False(t, ok, "wrong code")

	ok, err = ConsumeOTP(ctx, database, u.ID, "123456", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ConsumeOTP(ctx, database, u.ID, "123456", now)
	require.NoError(t, err)
	assert.False(t, ok, "codes are single use")
}

func TestSetOTPReplacesAndExpires(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	u := mustUser(t, database, "alice@example.com")
	now := time.Now()

	require.NoError(t, SetOTP(ctx, database, u.ID, "111111", now.Add(10*time.Minute)))
	require.NoError(t, SetOTP(ctx, database, u.ID, "222222", now.Add(10*time.Minute)))

	ok, err := ConsumeOTP(ctx, database, u.ID, "111111", now)
	require.NoError(t, err)
	assert.False(t, ok, "replaced code is invalid")

	ok, err = ConsumeOTP(ctx, database, u.ID, "222222", now.Add(11*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "expired code is invalid")
}

func TestConsumeOTPLocksOutAfterFailedAttempts(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	u := mustUser(t, database, "alice@example.com")
	now := time.Now()

	require.NoError(t, SetOTP(ctx, database, u.ID, "123456", now.Add(10*time.Minute)))
	for i := 0; i < MaxOTPAttempts; i++ {
		ok, err := ConsumeOTP(ctx, database, u.ID, "000000", now)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	ok, err := ConsumeOTP(ctx, database, u.ID, "123456", now)
	require.NoError(t, err)
	assert.False(t, ok, "the code is gone after too many wrong guesses")

	// A fresh code starts with a clean slate.
	require.NoError(t, SetOTP(ctx, database, u.ID, "654321", now.Add(10*time.Minute)))
	ok, err = ConsumeOTP(ctx, database, u.ID, "000000", now)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = ConsumeOTP(ctx, database, u.ID, "654321", now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsumeOTPSurvivesFewerFailedAttempts(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	u := mustUser(t, database, "alice@example.com")
	now := time.Now()

	require.NoError(t, SetOTP(ctx, database, u.ID, "123456", now.Add(10*time.Minute)))
	for i := 0; i < MaxOTPAttempts-1; i++ {
		ok, err := ConsumeOTP(ctx, database, u.ID, "999999", now)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	ok, err := ConsumeOTP(ctx, database, u.ID, "123456", now)
	require.NoError(t, err)
	assert.True(t, ok)
}

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trashtotreasure/treasure/internal/auth"
	"github.com/trashtotreasure/treasure/internal/db"
	"github.com/trashtotreasure/treasure/internal/store"
)

func TestCreateSeedUser(t *testing.T) {
	ctx := context.Background()
	database := db.NewTestDB(t)

	password, err := createSeedUser(ctx, database, "Admin", "Admin@Example.com")
	require.NoError(t, err)
	assert.Len(t, password, 16)

	user, err := store.GetUserByEmail(ctx, database, "admin@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.True(t, user.Verified)

	ok, err := auth.CheckPassword(user.PasswordHash, password)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = createSeedUser(ctx, database, "Admin", "admin@example.com")
	assert.ErrorContains(t, err, "already exists")
}

package services_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudband/ignis-admin/internal/models"
	"github.com/cloudband/ignis-admin/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBolt(t *testing.T) (services.BoltDB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "admin.db")
	db, err := services.NewBoltDB(path)
	require.NoError(t, err)
	return db, path
}

func TestBoltSessions(t *testing.T) {
	db, path := openBolt(t)
	ctx := context.Background()

	_, err := db.Session(ctx, "missing")
	require.ErrorIs(t, err, services.ErrSessionNotFound)

	session := models.Session{
		ID:    "s1",
		Token: "tok",
		User: models.User{
			ID:       "3",
			Name:     "Ada",
			UserType: models.UserTypeAdmin,
		},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ExpiresAt: time.Date(2026, 1, 3, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, db.SaveSession(ctx, session))
	assert.Error(t, db.SaveSession(ctx, models.Session{Token: "no id"}))

	// Sessions survive a reopen.
	require.NoError(t, db.Close())
	db, err = services.NewBoltDB(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, session.Token, got.Token)
	assert.Equal(t, session.User, got.User)
	assert.True(t, session.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, db.DeleteSession(ctx, "s1"))
	require.NoError(t, db.DeleteSession(ctx, "s1"))
	_, err = db.Session(ctx, "s1")
	assert.ErrorIs(t, err, services.ErrSessionNotFound)
}

func TestBoltFavorites(t *testing.T) {
	db, _ := openBolt(t)
	defer db.Close()
	ctx := context.Background()

	favs, err := db.Favorites(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, favs)

	favs, err = db.ToggleFavorite(ctx, "u1", "documents")
	require.NoError(t, err)
	assert.Equal(t, []string{"documents"}, favs)

	favs, err = db.ToggleFavorite(ctx, "u1", "settings")
	require.NoError(t, err)
	assert.Equal(t, []string{"documents", "settings"}, favs)

	favs, err = db.ToggleFavorite(ctx, "u1", "documents")
	require.NoError(t, err)
	assert.Equal(t, []string{"settings"}, favs)

	other, err := db.Favorites(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)

	favs, err = db.Favorites(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"settings"}, favs)
}

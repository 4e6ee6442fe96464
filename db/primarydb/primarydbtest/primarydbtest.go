// Package primarydbtest opens throwaway primary stores and seeds them for tests
// in other packages.
package primarydbtest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meghashyamc/modsearch/config"
	"github.com/meghashyamc/modsearch/db/primarydb"
	"github.com/stretchr/testify/require"
)

// Open creates a SQLite-backed store in a temporary directory that is removed
// when the test ends.
func Open(t testing.TB) *primarydb.Store {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := primarydb.Open(logger, config.DatabaseDriverSQLite, filepath.Join(t.TempDir(), "mods.db"))
	require.NoError(t, err, "could not open primary store")
	t.Cleanup(func() { store.Close() })

	return store
}

// Owner creates a user and makes it the owner of teamID.
func Owner(t testing.TB, store *primarydb.Store, teamID int64, userID primarydb.UserID, username string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, userID, username))
	require.NoError(t, store.AddTeamMember(ctx, teamID, userID, primarydb.OwnerRole))
}

// Mod inserts a mod, creating any category it references first.
func Mod(t testing.TB, store *primarydb.Store, mod primarydb.NewMod) {
	t.Helper()
	ctx := context.Background()

	for _, category := range mod.Categories {
		require.NoError(t, store.CreateCategory(ctx, category))
	}
	if mod.Published.IsZero() {
		mod.Published = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	}
	require.NoError(t, store.CreateMod(ctx, mod))
}

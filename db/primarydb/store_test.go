package primarydb

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meghashyamc/modsearch/config"
	"github.com/stretchr/testify/require"
)

var testPublished = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	opts := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, opts))

	store, err := Open(logger, config.DatabaseDriverSQLite, filepath.Join(t.TempDir(), "mods.db"))
	require.NoError(t, err, "could not open store")
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTeam(t *testing.T, store *Store) {
	t.Helper()
	assert := require.New(t)
	ctx := context.Background()

	assert.NoError(store.CreateUser(ctx, 100, "alice"))
	assert.NoError(store.CreateUser(ctx, 101, "bob"))
	assert.NoError(store.AddTeamMember(ctx, 1, 100, OwnerRole))
	assert.NoError(store.AddTeamMember(ctx, 1, 101, "Member"))
	for _, category := range []string{"utility", "gameplay", "cosmetic"} {
		assert.NoError(store.CreateCategory(ctx, category))
	}
}

func TestCreateAndGetMod(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	seedTeam(t, store)

	err := store.CreateMod(ctx, NewMod{
		ID:          42,
		TeamID:      1,
		Title:       "Better Chat",
		Description: "Improves the chat window",
		IconURL:     "https://cdn.example.com/icon.png",
		Status:      StatusApproved,
		Slug:        "better-chat",
		IsNSFW:      false,
		Categories:  []string{"utility", "cosmetic"},
		Published:   testPublished,
	})
	assert.NoError(err)

	mod, err := store.GetMod(ctx, 42)
	assert.NoError(err)
	assert.Equal(ModID(42), mod.ID)
	assert.Equal(int64(1), mod.TeamID)
	assert.Equal("Better Chat", mod.Title)
	assert.Equal("Improves the chat window", mod.Description)
	assert.Equal("https://cdn.example.com/icon.png", mod.IconURL)
	assert.Equal("better-chat", mod.Slug)
	assert.Equal(StatusApproved, mod.Status)
	assert.True(testPublished.Equal(mod.Published), "published should round trip, got %s", mod.Published)
	assert.True(testPublished.Equal(mod.Updated), "updated starts at published, got %s", mod.Updated)

	categories, err := store.GetCategories(ctx, 42)
	assert.NoError(err)
	assert.Equal([]string{"cosmetic", "utility"}, categories)

	owner, err := store.GetOwner(ctx, mod.TeamID)
	assert.NoError(err)
	assert.Equal(UserID(100), owner.ID)
	assert.Equal("alice", owner.Username)
}

func TestGetMissing(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetMod(ctx, 7)
	assert.ErrorIs(err, ErrNotFound)

	_, err = store.GetOwner(ctx, 99)
	assert.ErrorIs(err, ErrNotFound)

	categories, err := store.GetCategories(ctx, 7)
	assert.NoError(err)
	assert.Empty(categories)
}

func TestCreateModUnknownCategory(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	seedTeam(t, store)

	err := store.CreateMod(ctx, NewMod{ID: 1, TeamID: 1, Title: "abc", Description: "abc", Status: StatusDraft, Categories: []string{"nope"}})
	assert.ErrorIs(err, ErrUnknownCategory)

	_, err = store.GetMod(ctx, 1)
	assert.ErrorIs(err, ErrNotFound, "failed create should roll back")
}

func TestListModsPages(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	seedTeam(t, store)

	for _, id := range []ModID{5, 1, 4, 2, 3} {
		assert.NoError(store.CreateMod(ctx, NewMod{ID: id, TeamID: 1, Title: "mod", Description: "desc", Status: StatusApproved, Published: testPublished}))
	}

	var seen []ModID
	var after ModID
	for {
		page, err := store.ListMods(ctx, after, 2)
		assert.NoError(err)
		if len(page) == 0 {
			break
		}
		assert.LessOrEqual(len(page), 2)
		for _, mod := range page {
			seen = append(seen, mod.ID)
		}
		after = page[len(page)-1].ID
	}
	assert.Equal([]ModID{1, 2, 3, 4, 5}, seen)

	count, err := store.CountMods(ctx)
	assert.NoError(err)
	assert.Equal(int64(5), count)
}

func TestUpdateMod(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	seedTeam(t, store)
	assert.NoError(store.CreateMod(ctx, NewMod{ID: 9, TeamID: 1, Title: "Old", Description: "Old description", Status: StatusProcessing, Categories: []string{"utility"}, Published: testPublished}))

	title := "New"
	status := StatusApproved
	previous, err := store.UpdateMod(ctx, 9, ModUpdate{Title: &title, Status: &status, Categories: []string{"gameplay"}})
	assert.NoError(err)
	assert.Equal(StatusProcessing, previous)

	mod, err := store.GetMod(ctx, 9)
	assert.NoError(err)
	assert.Equal("New", mod.Title)
	assert.Equal("Old description", mod.Description)
	assert.Equal(StatusApproved, mod.Status)
	assert.True(mod.Updated.After(testPublished))

	categories, err := store.GetCategories(ctx, 9)
	assert.NoError(err)
	assert.Equal([]string{"gameplay"}, categories)

	_, err = store.UpdateMod(ctx, 10, ModUpdate{Title: &title})
	assert.ErrorIs(err, ErrNotFound)
}

func TestDeleteMod(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	seedTeam(t, store)
	assert.NoError(store.CreateMod(ctx, NewMod{ID: 3, TeamID: 1, Title: "abc", Description: "abc", Status: StatusApproved, Categories: []string{"utility"}}))

	deleted, err := store.DeleteMod(ctx, 3)
	assert.NoError(err)
	assert.True(deleted)

	_, err = store.GetMod(ctx, 3)
	assert.ErrorIs(err, ErrNotFound)

	deleted, err = store.DeleteMod(ctx, 3)
	assert.NoError(err)
	assert.False(deleted)
}

func TestRebind(t *testing.T) {
	assert := require.New(t)

	postgres := &Store{driver: config.DatabaseDriverPostgres}
	assert.Equal("SELECT a FROM t WHERE x = $1 AND y = $2", postgres.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	sqlite := &Store{driver: config.DatabaseDriverSQLite}
	assert.Equal("SELECT a FROM t WHERE x = ?", sqlite.rebind("SELECT a FROM t WHERE x = ?"))
}

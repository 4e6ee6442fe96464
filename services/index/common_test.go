package index

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/meghashyamc/modsearch/db/kvdb"
	"github.com/meghashyamc/modsearch/db/primarydb"
	"github.com/meghashyamc/modsearch/db/primarydb/primarydbtest"
	"github.com/meghashyamc/modsearch/db/searchdb"
	"github.com/meghashyamc/modsearch/logger"
	"github.com/stretchr/testify/require"
)

const (
	testSiteURL = "https://mods.example.com"
	testHostTag = "local"
	testTeamID  = 1
)

func newTestLogger() logger.Logger {
	opts := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// flakyIndex wraps a real index and fails upserts while failUpserts is set.
// beforeUpsert, when set, runs once at the start of the next upsert.
type flakyIndex struct {
	*searchdb.BleveDB

	mu           sync.Mutex
	failUpserts  bool
	upserts      int
	beforeUpsert func()
}

var errEngineDown = errors.New("engine unavailable")

func (f *flakyIndex) Upsert(ctx context.Context, documents []searchdb.Document) error {
	f.mu.Lock()
	f.upserts++
	fail := f.failUpserts
	hook := f.beforeUpsert
	f.beforeUpsert = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if fail {
		return errEngineDown
	}
	return f.BleveDB.Upsert(ctx, documents)
}

func (f *flakyIndex) onNextUpsert(hook func()) {
	f.mu.Lock()
	f.beforeUpsert = hook
	f.mu.Unlock()
}

func (f *flakyIndex) setFailing(failing bool) {
	f.mu.Lock()
	f.failUpserts = failing
	f.mu.Unlock()
}

type testEnv struct {
	store   *primarydb.Store
	search  *flakyIndex
	kv      *kvdb.BoltDB
	service *Service
}

func newTestEnv(t *testing.T, batchSize int) *testEnv {
	t.Helper()
	assert := require.New(t)
	testLogger := newTestLogger()

	store := primarydbtest.Open(t)
	primarydbtest.Owner(t, store, testTeamID, 100, "alice")

	bleveDB, err := searchdb.NewInMemory(testLogger, "mods")
	assert.NoError(err, "could not create search index")
	t.Cleanup(func() { _ = bleveDB.Close() })

	kvDB, err := kvdb.Open(testLogger, filepath.Join(t.TempDir(), "meta.db"))
	assert.NoError(err, "could not open kv database")
	t.Cleanup(func() { _ = kvDB.Close() })

	search := &flakyIndex{BleveDB: bleveDB}
	service := New(context.Background(), testLogger, search, kvDB, store, Options{
		SiteURL:          testSiteURL,
		HostTag:          testHostTag,
		BatchSize:        batchSize,
		RequeueOnFailure: true,
	})
	t.Cleanup(service.Wait)

	return &testEnv{store: store, search: search, kv: kvDB, service: service}
}

func (e *testEnv) addMod(t *testing.T, id primarydb.ModID, title string, status primarydb.Status, categories ...string) {
	t.Helper()
	primarydbtest.Mod(t, e.store, primarydb.NewMod{
		ID:          id,
		TeamID:      testTeamID,
		Title:       title,
		Description: title + " description",
		Status:      status,
		Categories:  categories,
	})
}

func (e *testEnv) setStatus(t *testing.T, id primarydb.ModID, status primarydb.Status) primarydb.Status {
	t.Helper()
	previous, err := e.store.UpdateMod(context.Background(), id, primarydb.ModUpdate{Status: &status})
	require.NoError(t, err)
	return previous
}

func (e *testEnv) indexedIDs(t *testing.T) []string {
	t.Helper()
	ids, err := e.search.DocumentIDs(context.Background(), "")
	require.NoError(t, err)
	if ids == nil {
		ids = []string{}
	}
	return ids
}

func docID(id primarydb.ModID) string {
	return searchdb.DocumentID(testHostTag, id.String())
}

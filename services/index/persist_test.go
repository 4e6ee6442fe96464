package index

import (
	"testing"

	"github.com/meghashyamc/modsearch/db/kvdb"
	"github.com/meghashyamc/modsearch/db/searchdb"
	"github.com/stretchr/testify/require"
)

func TestPersistAndRestore(t *testing.T) {
	assert := require.New(t)
	env := newTestEnv(t, 10)

	env.service.Queue().Add(searchdb.Document{ID: "local-1", Title: "persisted", Categories: []string{"utility"}})
	env.service.Queue().Add(searchdb.Document{ID: "local-2", Title: "stale"})

	persisted, err := env.service.Persist()
	assert.NoError(err)
	assert.Equal(2, persisted)
	assert.Zero(env.service.Queue().Len())

	keys, err := env.kv.GetAllKeys(kvdb.PendingBucket)
	assert.NoError(err)
	assert.Equal([]string{"local-1", "local-2"}, keys)

	// Enqueued after start, so it wins over the persisted copy.
	env.service.Queue().Add(searchdb.Document{ID: "local-2", Title: "fresh"})

	restored, err := env.service.Restore()
	assert.NoError(err)
	assert.Equal(1, restored)

	docs := env.service.Queue().Drain()
	assert.Len(docs, 2)
	assert.Equal("persisted", docs[0].Title)
	assert.Equal([]string{"utility"}, docs[0].Categories)
	assert.Equal("fresh", docs[1].Title)

	keys, err = env.kv.GetAllKeys(kvdb.PendingBucket)
	assert.NoError(err)
	assert.Empty(keys)
}

func TestRestoreDropsUnreadableEntries(t *testing.T) {
	assert := require.New(t)
	env := newTestEnv(t, 10)

	assert.NoError(env.kv.Set(kvdb.PendingBucket, "local-bad", "\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff"))
	assert.NoError(env.kv.Set(kvdb.PendingBucket, "local-1", encodePending(searchdb.Document{ID: "local-1"})))

	restored, err := env.service.Restore()
	assert.NoError(err)
	assert.Equal(1, restored)

	keys, err := env.kv.GetAllKeys(kvdb.PendingBucket)
	assert.NoError(err)
	assert.Empty(keys)
}

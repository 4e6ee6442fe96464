package searchdb

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

var parseQuotedQueryTestCases = []struct {
	name              string
	input             string
	expectedQuoted    []string
	expectedRemaining string
}{
	{
		name:              "Simple quoted phrase",
		input:             `"hello world"`,
		expectedQuoted:    []string{"hello world"},
		expectedRemaining: "",
	},
	{
		name:              "Quoted phrase with remaining terms",
		input:             `"better crafting" table mod`,
		expectedQuoted:    []string{"better crafting"},
		expectedRemaining: "table mod",
	},
	{
		name:              "Multiple quoted phrases",
		input:             `"hello world" test "another phrase"`,
		expectedQuoted:    []string{"hello world", "another phrase"},
		expectedRemaining: "test",
	},
	{
		name:              "No quotes",
		input:             `hello world test`,
		expectedQuoted:    nil,
		expectedRemaining: "hello world test",
	},
	{
		name:              "Empty quoted phrase",
		input:             `"" test`,
		expectedQuoted:    nil,
		expectedRemaining: "test",
	},
	{
		name:              "Quoted phrase with extra spaces",
		input:             `"  hello world  " test`,
		expectedQuoted:    []string{"hello world"},
		expectedRemaining: "test",
	},
}

func TestParseQuotedQuery(t *testing.T) {
	assert := require.New(t)
	for _, testCase := range parseQuotedQueryTestCases {
		t.Run(testCase.name, func(t *testing.T) {
			quoted, remaining := parseQuotedQuery(testCase.input)

			assert.Equal(testCase.expectedQuoted, quoted, "quoted phrases should match")
			assert.Equal(testCase.expectedRemaining, remaining, "remaining (not quoted) terms should match")
		})
	}
}

func newTestBleve(t *testing.T) *BleveDB {
	db, err := NewInMemory(newTestLogger(), "mods")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBleveUpsertAndGet(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()
	db := newTestBleve(t)

	doc := testDocument("local-1", "Better Crafting", "Adds a bigger crafting table", "utility", "gameplay")
	assert.NoError(db.Upsert(ctx, []Document{doc}))

	got, err := db.Get(ctx, "local-1")
	assert.NoError(err)
	assert.Equal(doc.Title, got.Title)
	assert.Equal(doc.Categories, got.Categories)
	assert.True(doc.DateCreated.Equal(got.DateCreated))
	assert.Equal(doc.PageURL, got.PageURL)

	doc.Title = "Best Crafting"
	assert.NoError(db.Upsert(ctx, []Document{doc}))

	got, err = db.Get(ctx, "local-1")
	assert.NoError(err)
	assert.Equal("Best Crafting", got.Title)

	count, err := db.GetDocCount(ctx)
	assert.NoError(err)
	assert.Equal(uint64(1), count, "upsert must replace, not duplicate")
}

func TestBleveGetMissing(t *testing.T) {
	assert := require.New(t)
	db := newTestBleve(t)

	_, err := db.Get(context.Background(), "local-nope")
	assert.ErrorIs(err, ErrDocumentNotFound)
}

func TestBleveUpsertAcrossBatches(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()
	db := newTestBleve(t)

	documents := make([]Document, 0, IndexingBatchSize+5)
	for i := 0; i < IndexingBatchSize+5; i++ {
		documents = append(documents, testDocument(fmt.Sprintf("local-%03d", i), "Mod", "A mod"))
	}
	assert.NoError(db.Upsert(ctx, documents))

	count, err := db.GetDocCount(ctx)
	assert.NoError(err)
	assert.Equal(uint64(IndexingBatchSize+5), count)
}

func TestBleveDeleteAndDocumentIDs(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()
	db := newTestBleve(t)

	assert.NoError(db.Upsert(ctx, []Document{
		testDocument("local-1", "One", "first"),
		testDocument("local-2", "Two", "second"),
		testHostDocument("remote", "remote-1", "Other", "from another host"),
		testHostDocument("local-eu", "local-eu-1", "Sibling", "same prefix, other host"),
	}))

	ids, err := db.DocumentIDs(ctx, "local")
	assert.NoError(err)
	assert.Equal([]string{"local-1", "local-2"}, ids)

	assert.NoError(db.Delete(ctx, "mods", "local-1"))
	assert.NoError(db.Delete(ctx, "mods", "local-404"), "deleting an absent id is not an error")
	assert.NoError(db.Delete(ctx, "other-index", "local-2"))

	ids, err = db.DocumentIDs(ctx, "local")
	assert.NoError(err)
	assert.Equal([]string{"local-2"}, ids)

	ids, err = db.DocumentIDs(ctx, "")
	assert.NoError(err)
	assert.Equal([]string{"local-2", "local-eu-1", "remote-1"}, ids)

	assert.NoError(db.DeleteDocuments(ctx, []string{"local-2", "remote-1", "local-eu-1"}))
	count, err := db.GetDocCount(ctx)
	assert.NoError(err)
	assert.Zero(count)

	indexes, err := db.ListIndexes(ctx)
	assert.NoError(err)
	assert.Equal([]string{"mods"}, indexes)
}

func TestBleveSearch(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()
	db := newTestBleve(t)

	assert.NoError(db.Upsert(ctx, []Document{
		testDocument("local-1", "Better Crafting", "Adds a bigger crafting table", "utility"),
		testDocument("local-2", "Shiny Armor", "Cosmetic armor sets", "cosmetic"),
		testDocument("local-3", "Fast Travel", "Waypoints across the map", "gameplay"),
	}))

	testCases := []struct {
		name        string
		query       string
		expectedIDs []string
	}{
		{name: "title term", query: "crafting", expectedIDs: []string{"local-1"}},
		{name: "category term", query: "cosmetic", expectedIDs: []string{"local-2"}},
		{name: "quoted phrase", query: `"crafting table"`, expectedIDs: []string{"local-1"}},
		{name: "no match", query: "zeppelin", expectedIDs: []string{}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			response, err := db.Search(ctx, testCase.query, 10, 0)
			assert.NoError(err)

			ids := []string{}
			for _, result := range response.Results {
				ids = append(ids, result.ID)
			}
			assert.ElementsMatch(testCase.expectedIDs, ids)
		})
	}

	response, err := db.Search(ctx, "", 2, 0)
	assert.NoError(err)
	assert.Equal(uint64(3), response.Total)
	assert.Len(response.Results, 2)
	assert.NotEmpty(response.Results[0].Title)
}

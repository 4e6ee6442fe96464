package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/meghashyamc/modsearch/db/primarydb"
	"github.com/meghashyamc/modsearch/services/index"
	"github.com/stretchr/testify/require"
)

var searchHandlerValidationTestCases = []testCase{
	{
		name:           "NoQuery",
		queryParams:    map[string]string{},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "EmptyQuery",
		queryParams:    map[string]string{"query": ""},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "QueryTooLong",
		queryParams:    map[string]string{"query": strings.Repeat("a", 1001)},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "InvalidPerPage",
		queryParams:    map[string]string{"query": "magic", "per_page": "-1"},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "PerPageTooLarge",
		queryParams:    map[string]string{"query": "magic", "per_page": "101"},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "InvalidPage",
		queryParams:    map[string]string{"query": "magic", "page": "-1"},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "NonNumericPage",
		queryParams:    map[string]string{"query": "magic", "page": "abc"},
		expectedStatus: http.StatusUnprocessableEntity,
	},
}

func TestHandleSearchValidation(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)

	for _, testCase := range searchHandlerValidationTestCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert := require.New(t)
			w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/search", testCase.requestHeaders, nil, testCase.queryParams)
			assert.Equal(testCase.expectedStatus, w.Code, fmt.Sprintf("response gotten was %s", w.Body.String()))
		})
	}
}

func TestHandleSearch(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)

	run, err := server.indexService.Reindex(context.Background(), uuid.NewString(), index.TriggerCLI, nil)
	assert.NoError(err, "Reindex should succeed before running search tests")
	assert.Equal(searchableTestMods, run.Indexed)

	tests := []struct {
		name        string
		query       string
		contains    []primarydb.ModID
		notContains []primarydb.ModID
	}{
		{
			name:        "MatchesTitleAndDescription",
			query:       "magic",
			contains:    []primarydb.ModID{modMagicWands, modDragons},
			notContains: []primarydb.ModID{modSteam},
		},
		{
			name:        "DraftModsAreNotSearchable",
			query:       "unfinished",
			notContains: []primarydb.ModID{modDraftMagic},
		},
		{
			name:     "CaseInsensitive",
			query:    "STEAM",
			contains: []primarydb.ModID{modSteam},
		},
		{
			name:        "QuotedPhrase",
			query:       `"dragon quest"`,
			contains:    []primarydb.ModID{modDragons},
			notContains: []primarydb.ModID{modMagicWands},
		},
		{
			name:     "NoResults",
			query:    "nonexistent",
			contains: []primarydb.ModID{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := require.New(t)
			w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/search", nil, nil, map[string]string{"query": url.QueryEscape(tt.query)})
			assert.Equal(http.StatusOK, w.Code, fmt.Sprintf("response gotten was %s", w.Body.String()))

			ids := resultIDs(assert, w)
			for _, id := range tt.contains {
				assert.Contains(ids, server.docID(id))
			}
			for _, id := range tt.notContains {
				assert.NotContains(ids, server.docID(id))
			}
			if len(tt.contains) == 0 && len(tt.notContains) == 0 {
				assert.Empty(ids)
			}
		})
	}
}

func TestHandleSearchPagination(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)

	_, err := server.indexService.Reindex(context.Background(), uuid.NewString(), index.TriggerCLI, nil)
	assert.NoError(err)

	w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/search", nil, nil, map[string]string{"query": "magic", "per_page": "1", "page": "2"})
	assert.Equal(http.StatusOK, w.Code, fmt.Sprintf("response gotten was %s", w.Body.String()))

	assert.Equal("2", w.Header().Get(HeaderPaginationTotalCount))
	data := decodeData(assert, w)
	assert.Len(data["results"], 1)
	assert.Equal(map[string]any{
		"current_page":  float64(2),
		"page_size":     float64(1),
		"total_pages":   float64(2),
		"has_next_page": false,
		"has_prev_page": true,
		"total_results": float64(2),
	}, data["page_details"])
}

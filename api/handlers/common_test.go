// Common test helpers
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/modsearch/config"
	"github.com/meghashyamc/modsearch/db/kvdb"
	"github.com/meghashyamc/modsearch/db/primarydb"
	"github.com/meghashyamc/modsearch/db/primarydb/primarydbtest"
	"github.com/meghashyamc/modsearch/db/searchdb"
	"github.com/meghashyamc/modsearch/logger"
	"github.com/meghashyamc/modsearch/services/index"
	"github.com/meghashyamc/modsearch/services/mods"
	"github.com/meghashyamc/modsearch/validation"
	"github.com/stretchr/testify/require"
)

type testCase struct {
	name             string
	requestHeaders   map[string]string
	requestBody      map[string]any
	queryParams      map[string]string
	expectedStatus   int
	expectedResponse map[string]any
}

type testServer struct {
	router       *gin.Engine
	store        *primarydb.Store
	indexService *index.Service
	hostTag      string
}

func newTestLogger() logger.Logger {

	opts := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}

func setupTestServer(t *testing.T, assert *require.Assertions) *testServer {

	t.Setenv("ENV", "test")

	cfg, err := config.Load()
	assert.NoError(err, "could not load config")

	testLogger := newTestLogger()

	store := primarydbtest.Open(t)
	seedTestData(t, store)

	searchDB, err := searchdb.NewInMemory(testLogger, cfg.GetIndexName())
	assert.NoError(err, "could not create search database")
	t.Cleanup(func() { assert.NoError(searchDB.Close(), "could not close search database") })

	kvDB, err := kvdb.Open(testLogger, filepath.Join(t.TempDir(), "meta.db"))
	assert.NoError(err, "could not create kv database")
	t.Cleanup(func() { assert.NoError(kvDB.Close(), "could not close kv database") })

	validator, err := validation.New(testLogger)
	assert.NoError(err, "could not create validator")

	indexService := index.New(context.Background(), testLogger, searchDB, kvDB, store, index.Options{
		SiteURL:          cfg.GetSiteURL(),
		HostTag:          cfg.GetHostTag(),
		BatchSize:        cfg.GetBatchSize(),
		RequeueOnFailure: cfg.GetRequeueOnFailure(),
	})
	t.Cleanup(indexService.Wait)
	modsService := mods.New(testLogger, store, indexService)

	gin.SetMode(gin.TestMode)
	router := gin.New()

	SetupSearch(router, testLogger, searchDB, validator)
	SetupMods(router, testLogger, modsService, validator)
	SetupIndex(router, testLogger, indexService, validator)

	return &testServer{
		router:       router,
		store:        store,
		indexService: indexService,
		hostTag:      cfg.GetHostTag(),
	}
}

func (s *testServer) docID(id primarydb.ModID) string {
	return searchdb.DocumentID(s.hostTag, id.String())
}

func makeTestHTTPRequest(router *gin.Engine, assert *require.Assertions, method string, endpoint string, headers map[string]string, requestBodyMap map[string]interface{}, queryParams map[string]string) *httptest.ResponseRecorder {

	var err error
	w := httptest.NewRecorder()

	if len(queryParams) > 0 {
		endpoint = endpoint + "?"
		for key, value := range queryParams {
			if endpoint[len(endpoint)-1] != '?' {
				endpoint = endpoint + "&"
			}
			endpoint = endpoint + key + "=" + value
		}
	}
	var jsonBody []byte
	var req *http.Request
	if requestBodyMap != nil {
		jsonBody, err = json.Marshal(requestBodyMap)
		assert.NoError(err)
	}

	slog.Info("Making test request", "method", method, "endpoint", endpoint, "headers", headers, "body", string(jsonBody))

	if len(jsonBody) > 0 {
		req, err = http.NewRequest(method, endpoint, bytes.NewBuffer(jsonBody))
	} else {
		req, err = http.NewRequest(method, endpoint, nil)
	}
	assert.NoError(err)

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	router.ServeHTTP(w, req)

	return w
}

func decodeData(assert *require.Assertions, w *httptest.ResponseRecorder) map[string]any {
	var responseMap map[string]any
	assert.NoError(json.Unmarshal(w.Body.Bytes(), &responseMap), "response gotten was %s", w.Body.String())

	data, ok := responseMap["data"].(map[string]any)
	assert.True(ok, "Expected data object in response %s", w.Body.String())
	return data
}

// resultIDs returns the ids of the search results in a /search response.
func resultIDs(assert *require.Assertions, w *httptest.ResponseRecorder) []string {
	data := decodeData(assert, w)
	results, ok := data["results"].([]any)
	assert.True(ok, "Expected results field in response data")

	ids := make([]string, 0, len(results))
	for _, result := range results {
		ids = append(ids, result.(map[string]any)["id"].(string))
	}
	return ids
}

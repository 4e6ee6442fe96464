package searchdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/meghashyamc/modsearch/logger"
	"github.com/meilisearch/meilisearch-go"
)

const (
	meiliListLimit        = 1000
	meiliTaskPollInterval = 50 * time.Millisecond
	meiliTaskTimeout      = 2 * time.Minute
	meiliRankingScore     = "_rankingScore"
)

var (
	meiliSearchableAttributes = []string{indexFieldTitle, indexFieldDescription, indexFieldCategories, indexFieldAuthor}
	meiliFilterableAttributes = []string{indexFieldCategories, indexFieldIsNSFW, indexFieldHost}
	meiliSortableAttributes   = []string{indexFieldDownloads, indexFieldFollows, indexFieldCreated, indexFieldModified}
)

// MeiliDB talks to a Meilisearch server. Writes are asynchronous tasks on the
// server side; every write here waits for its task to settle.
type MeiliDB struct {
	client           meilisearch.ServiceManager
	indexName        string
	logger           logger.Logger
	taskPollInterval time.Duration
	taskTimeout      time.Duration
}

func NewMeili(logger logger.Logger, host string, apiKey string, indexName string) *MeiliDB {
	return &MeiliDB{
		client:           meilisearch.New(host, meilisearch.WithAPIKey(apiKey)),
		indexName:        indexName,
		logger:           logger,
		taskPollInterval: meiliTaskPollInterval,
		taskTimeout:      meiliTaskTimeout,
	}
}

// EnsureIndex creates the index if it is missing and applies the attribute
// settings. An index that already exists only fails its creation task.
func (m *MeiliDB) EnsureIndex(ctx context.Context) error {
	task, err := m.client.CreateIndex(&meilisearch.IndexConfig{Uid: m.indexName, PrimaryKey: "id"})
	if err != nil {
		m.logger.Error("could not create index", "index", m.indexName, "err", err.Error())
		return err
	}
	if err := m.waitForTask(ctx, task); err != nil {
		m.logger.Info("index creation task did not succeed, assuming it exists", "index", m.indexName, "err", err.Error())
	}

	index := m.client.Index(m.indexName)
	settings := []struct {
		name   string
		update func(*[]string) (*meilisearch.TaskInfo, error)
		values []string
	}{
		{"searchable", index.UpdateSearchableAttributes, meiliSearchableAttributes},
		{"filterable", index.UpdateFilterableAttributes, meiliFilterableAttributes},
		{"sortable", index.UpdateSortableAttributes, meiliSortableAttributes},
	}
	for _, setting := range settings {
		values := setting.values
		task, err := setting.update(&values)
		if err != nil {
			m.logger.Error("could not update index settings", "setting", setting.name, "err", err.Error())
			return err
		}
		if err := m.waitForTask(ctx, task); err != nil {
			return fmt.Errorf("could not update %s attributes: %w", setting.name, err)
		}
	}

	return nil
}

func (m *MeiliDB) Upsert(ctx context.Context, documents []Document) error {
	index := m.client.Index(m.indexName)

	for start := 0; start < len(documents); start += IndexingBatchSize {
		end := min(start+IndexingBatchSize, len(documents))

		task, err := index.AddDocuments(documents[start:end], "id")
		if err != nil {
			m.logger.Error("could not add documents", "count", end-start, "err", err.Error())
			return err
		}
		if err := m.waitForTask(ctx, task); err != nil {
			m.logger.Error("document addition failed", "count", end-start, "err", err.Error())
			return err
		}
	}

	return nil
}

func (m *MeiliDB) Delete(ctx context.Context, indexName string, documentID string) error {
	task, err := m.client.Index(indexName).DeleteDocument(documentID)
	if err != nil {
		m.logger.Error("could not delete document", "index", indexName, "id", documentID, "err", err.Error())
		return err
	}

	return m.waitForTask(ctx, task)
}

func (m *MeiliDB) DeleteDocuments(ctx context.Context, documentIDs []string) error {
	index := m.client.Index(m.indexName)

	for start := 0; start < len(documentIDs); start += IndexingBatchSize {
		end := min(start+IndexingBatchSize, len(documentIDs))

		task, err := index.DeleteDocuments(documentIDs[start:end])
		if err != nil {
			m.logger.Error("could not delete documents", "count", end-start, "err", err.Error())
			return err
		}
		if err := m.waitForTask(ctx, task); err != nil {
			return err
		}
	}

	return nil
}

func (m *MeiliDB) ListIndexes(ctx context.Context) ([]string, error) {
	var names []string

	for offset := int64(0); ; offset += meiliListLimit {
		indexes, err := m.client.ListIndexes(&meilisearch.IndexesQuery{Limit: meiliListLimit, Offset: offset})
		if err != nil {
			m.logger.Error("could not list indexes", "err", err.Error())
			return nil, err
		}

		for _, index := range indexes.Results {
			names = append(names, index.UID)
		}

		if len(indexes.Results) == 0 || offset+int64(len(indexes.Results)) >= indexes.Total {
			break
		}
	}

	return names, nil
}

// DocumentIDs lists the ids of the documents stored for host. An empty host
// lists every document.
func (m *MeiliDB) DocumentIDs(ctx context.Context, host string) ([]string, error) {
	index := m.client.Index(m.indexName)
	var ids []string

	for offset := int64(0); ; offset += meiliListLimit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var page meilisearch.DocumentsResult
		query := &meilisearch.DocumentsQuery{Fields: []string{"id"}, Limit: meiliListLimit, Offset: offset}
		if host != "" {
			query.Filter = fmt.Sprintf("%s = %q", indexFieldHost, host)
		}
		if err := index.GetDocumentsWithContext(ctx, query, &page); err != nil {
			m.logger.Error("could not list document ids", "host", host, "err", err.Error())
			return nil, fmt.Errorf("could not list document ids: %w", err)
		}

		for _, doc := range page.Results {
			if id, ok := doc["id"].(string); ok {
				ids = append(ids, id)
			}
		}

		if len(page.Results) == 0 || offset+int64(len(page.Results)) >= page.Total {
			break
		}
	}

	return ids, nil
}

func (m *MeiliDB) Get(ctx context.Context, documentID string) (*Document, error) {
	var doc Document
	if err := m.client.Index(m.indexName).GetDocument(documentID, nil, &doc); err != nil {
		var meiliErr *meilisearch.Error
		if errors.As(err, &meiliErr) && meiliErr.StatusCode == http.StatusNotFound {
			return nil, ErrDocumentNotFound
		}
		m.logger.Error("could not get document", "id", documentID, "err", err.Error())
		return nil, err
	}

	return &doc, nil
}

func (m *MeiliDB) Search(ctx context.Context, queryString string, limit int, offset int) (*Response, error) {
	start := time.Now()

	searchResponse, err := m.client.Index(m.indexName).Search(queryString, &meilisearch.SearchRequest{
		Limit:            int64(limit),
		Offset:           int64(offset),
		ShowRankingScore: true,
	})
	if err != nil {
		m.logger.Error("search failed", "err", err.Error())
		return nil, fmt.Errorf("search failed: %w", err)
	}

	response := &Response{Results: make([]Result, 0, len(searchResponse.Hits))}
	for _, hit := range searchResponse.Hits {
		result, err := decodeMeiliHit(hit)
		if err != nil {
			m.logger.Warn("could not decode search hit", "err", err.Error())
			continue
		}
		response.MaxScore = max(response.MaxScore, result.Score)
		response.Results = append(response.Results, result)
	}
	response.Total = uint64(searchResponse.EstimatedTotalHits)
	response.SearchTime = time.Since(start).String()

	return response, nil
}

func decodeMeiliHit(hit interface{}) (Result, error) {
	raw, err := json.Marshal(hit)
	if err != nil {
		return Result{}, err
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Result{}, err
	}

	var score float64
	if fields, ok := hit.(map[string]interface{}); ok {
		score, _ = fields[meiliRankingScore].(float64)
	}

	return resultFromDocument(doc, score), nil
}

func (m *MeiliDB) GetDocCount(ctx context.Context) (uint64, error) {
	stats, err := m.client.Index(m.indexName).GetStats()
	if err != nil {
		m.logger.Error("could not get index stats", "err", err.Error())
		return 0, err
	}

	return uint64(stats.NumberOfDocuments), nil
}

func (m *MeiliDB) Close() error {
	return nil
}

// waitForTask polls the task until the server reports a final status.
func (m *MeiliDB) waitForTask(ctx context.Context, info *meilisearch.TaskInfo) error {
	if info == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.taskTimeout)
	defer cancel()

	ticker := time.NewTicker(m.taskPollInterval)
	defer ticker.Stop()

	for {
		task, err := m.client.GetTask(info.TaskUID)
		if err != nil {
			return fmt.Errorf("could not get task %d: %w", info.TaskUID, err)
		}

		switch task.Status {
		case meilisearch.TaskStatusSucceeded:
			return nil
		case meilisearch.TaskStatusFailed:
			return fmt.Errorf("task %d failed: %s", info.TaskUID, task.Error.Message)
		case meilisearch.TaskStatusCanceled:
			return fmt.Errorf("task %d was canceled", info.TaskUID)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for task %d: %w", info.TaskUID, ctx.Err())
		case <-ticker.C:
		}
	}
}

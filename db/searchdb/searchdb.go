package searchdb

import (
	"context"
	"fmt"

	"github.com/meghashyamc/modsearch/config"
	"github.com/meghashyamc/modsearch/logger"
)

const IndexingBatchSize = 100

// DB is the capability surface of a search engine holding mod documents.
// Upserts replace any document with the same id. Deleting an id that is not
// present is not an error.
type DB interface {
	Upsert(ctx context.Context, documents []Document) error
	Delete(ctx context.Context, indexName string, documentID string) error
	DeleteDocuments(ctx context.Context, documentIDs []string) error
	ListIndexes(ctx context.Context) ([]string, error)
	DocumentIDs(ctx context.Context, host string) ([]string, error)
	Get(ctx context.Context, documentID string) (*Document, error)
	Search(ctx context.Context, queryString string, limit int, offset int) (*Response, error)
	GetDocCount(ctx context.Context) (uint64, error)
	Close() error
}

// New opens the engine selected by configuration.
func New(ctx context.Context, logger logger.Logger, cfg *config.Config) (DB, error) {
	switch cfg.GetSearchEngine() {
	case config.SearchEngineBleve:
		return NewBleve(logger, cfg)
	case config.SearchEngineMeilisearch:
		meili := NewMeili(logger, cfg.GetMeiliHost(), cfg.GetMeiliKey(), cfg.GetIndexName())
		if err := meili.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		return meili, nil
	default:
		return nil, fmt.Errorf("unsupported search engine %q", cfg.GetSearchEngine())
	}
}

package index

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meghashyamc/modsearch/db/searchdb"
	"github.com/meghashyamc/modsearch/logger"
)

const maxReindexTime = 2 * time.Hour

// SearchIndex is the search engine surface the index service writes to.
type SearchIndex interface {
	Upsert(ctx context.Context, documents []searchdb.Document) error
	Delete(ctx context.Context, indexName string, documentID string) error
	DeleteDocuments(ctx context.Context, documentIDs []string) error
	ListIndexes(ctx context.Context) ([]string, error)
	DocumentIDs(ctx context.Context, host string) ([]string, error)
	GetDocCount(ctx context.Context) (uint64, error)
}

// MetadataStore keeps run status, job reports and the spilled queue.
type MetadataStore interface {
	Set(bucket string, key string, value string) error
	Get(bucket string, key string) (string, error)
	Delete(bucket string, key string) error
	GetAllKeys(bucket string) ([]string, error)
}

type Options struct {
	SiteURL          string
	HostTag          string
	BatchSize        int
	RequeueOnFailure bool
}

// Service keeps the search index in line with the primary store: incremental
// updates go through the creation queue and a periodic full reindex repairs
// whatever the incremental path missed.
type Service struct {
	logger           logger.Logger
	index            SearchIndex
	metadataStore    MetadataStore
	queue            *CreationQueue
	mapper           *Mapper
	importer         *Importer
	requeueOnFailure bool

	baseCtx    context.Context
	reindexing atomic.Bool
	background sync.WaitGroup
}

func New(ctx context.Context, logger logger.Logger, index SearchIndex, metadataStore MetadataStore, store ModStore, opts Options) *Service {
	mapper := NewMapper(opts.SiteURL, opts.HostTag)

	return &Service{
		logger:           logger,
		index:            index,
		metadataStore:    metadataStore,
		queue:            NewCreationQueue(),
		mapper:           mapper,
		importer:         NewImporter(logger, store, mapper, opts.BatchSize),
		requeueOnFailure: opts.RequeueOnFailure,
		baseCtx:          context.WithoutCancel(ctx),
	}
}

func (s *Service) Queue() *CreationQueue {
	return s.queue
}

func (s *Service) Mapper() *Mapper {
	return s.mapper
}

// Wait blocks until reindex runs started with StartReindex have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// Stats is a snapshot of the index pipeline for operators.
type Stats struct {
	Pending     int          `json:"pending"`
	Indexed     uint64       `json:"indexed"`
	Reindexing  bool         `json:"reindexing"`
	LastFlush   *FlushReport `json:"last_flush,omitempty"`
	LastReindex *Run         `json:"last_reindex,omitempty"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	indexed, err := s.index.GetDocCount(ctx)
	if err != nil {
		s.logger.Error("could not count indexed documents", "err", err.Error())
		return nil, err
	}

	stats := &Stats{
		Pending:    s.queue.Len(),
		Indexed:    indexed,
		Reindexing: s.reindexing.Load(),
	}

	var lastFlush FlushReport
	if s.loadJobReport(jobFlush, &lastFlush) {
		stats.LastFlush = &lastFlush
	}
	var lastReindex Run
	if s.loadJobReport(jobReindex, &lastReindex) {
		stats.LastReindex = &lastReindex
	}

	return stats, nil
}

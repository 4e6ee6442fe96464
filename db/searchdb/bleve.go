package searchdb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/meghashyamc/modsearch/config"
	"github.com/meghashyamc/modsearch/logger"
)

const idScanPageSize = 1000

const (
	indexFieldTitle       = "title"
	indexFieldDescription = "description"
	indexFieldCategories  = "categories"
	indexFieldAuthor      = "author"
	indexFieldDownloads   = "downloads"
	indexFieldFollows     = "follows"
	indexFieldCreated     = "created_timestamp"
	indexFieldModified    = "modified_timestamp"
	indexFieldDateCreated = "date_created"
	indexFieldDateUpdated = "date_modified"
	indexFieldIsNSFW      = "is_nsfw"
	indexFieldHost        = "host"
	indexFieldSlug        = "slug"
	indexFieldPageURL     = "page_url"
	indexFieldIconURL     = "icon_url"
	indexFieldAuthorURL   = "author_url"
	indexFieldSource      = "source_json"
)

var quotedPhrasePattern = regexp.MustCompile(`"([^"]*)"`)

// BleveDB keeps a single embedded index. Every document carries its own JSON
// encoding in a stored, unindexed field so Get can return it unchanged.
type BleveDB struct {
	indexName string
	indexPath string
	logger    logger.Logger
	index     bleve.Index
}

func NewBleve(logger logger.Logger, cfg *config.Config) (*BleveDB, error) {
	indexPath := cfg.GetIndexPath()
	if len(indexPath) == 0 {
		return nil, fmt.Errorf("search index path is not configured")
	}
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		logger.Error("could not create index directory", "err", err.Error())
		return nil, err
	}

	index, err := bleve.Open(indexPath)
	if err != nil {
		index, err = bleve.New(indexPath, createIndexMapping())
		if err != nil {
			logger.Error("could not open index", "path", indexPath, "err", err.Error())
			return nil, err
		}
	}

	return &BleveDB{indexName: cfg.GetIndexName(), indexPath: indexPath, logger: logger, index: index}, nil
}

// NewInMemory returns an index that lives only as long as the process.
func NewInMemory(logger logger.Logger, indexName string) (*BleveDB, error) {
	index, err := bleve.NewMemOnly(createIndexMapping())
	if err != nil {
		logger.Error("could not create in-memory index", "err", err.Error())
		return nil, err
	}

	return &BleveDB{indexName: indexName, logger: logger, index: index}, nil
}

func createIndexMapping() mapping.IndexMapping {

	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	for _, field := range []string{indexFieldTitle, indexFieldDescription, indexFieldAuthor} {
		textFieldMapping := bleve.NewTextFieldMapping()
		textFieldMapping.Analyzer = standard.Name
		docMapping.AddFieldMappingsAt(field, textFieldMapping)
	}

	// Exact match only
	for _, field := range []string{indexFieldCategories, indexFieldHost, indexFieldSlug, indexFieldPageURL, indexFieldIconURL, indexFieldAuthorURL} {
		keywordFieldMapping := bleve.NewKeywordFieldMapping()
		keywordFieldMapping.Analyzer = keyword.Name
		keywordFieldMapping.IncludeInAll = false
		docMapping.AddFieldMappingsAt(field, keywordFieldMapping)
	}

	for _, field := range []string{indexFieldDownloads, indexFieldFollows, indexFieldCreated, indexFieldModified} {
		docMapping.AddFieldMappingsAt(field, bleve.NewNumericFieldMapping())
	}

	for _, field := range []string{indexFieldDateCreated, indexFieldDateUpdated} {
		docMapping.AddFieldMappingsAt(field, bleve.NewDateTimeFieldMapping())
	}

	docMapping.AddFieldMappingsAt(indexFieldIsNSFW, bleve.NewBooleanFieldMapping())

	sourceFieldMapping := bleve.NewTextFieldMapping()
	sourceFieldMapping.Index = false
	sourceFieldMapping.Store = true
	sourceFieldMapping.IncludeInAll = false
	sourceFieldMapping.IncludeTermVectors = false
	docMapping.AddFieldMappingsAt(indexFieldSource, sourceFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

func toIndexable(doc Document) (map[string]any, error) {
	source, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if err := json.Unmarshal(source, &fields); err != nil {
		return nil, err
	}
	fields[indexFieldSource] = string(source)

	return fields, nil
}

func (b *BleveDB) Upsert(ctx context.Context, documents []Document) error {

	batch := b.index.NewBatch()

	for i, doc := range documents {
		if err := ctx.Err(); err != nil {
			return err
		}

		fields, err := toIndexable(doc)
		if err != nil {
			b.logger.Error("could not encode document", "id", doc.ID, "err", err.Error())
			return err
		}

		if err := batch.Index(doc.ID, fields); err != nil {
			b.logger.Error("could not index document", "id", doc.ID, "err", err.Error())
			return err
		}

		if (i+1)%IndexingBatchSize == 0 {
			if err := b.index.Batch(batch); err != nil {
				b.logger.Error("could not index batch", "err", err.Error())
				return err
			}
			batch = b.index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			b.logger.Error("could not index batch", "err", err.Error())
			return err
		}
	}

	return nil
}

// Delete removes a document from the named index. The embedded store only
// holds one index, so other names have nothing to delete.
func (b *BleveDB) Delete(ctx context.Context, indexName string, documentID string) error {
	if indexName != b.indexName {
		return nil
	}

	if err := b.index.Delete(documentID); err != nil {
		b.logger.Error("could not delete document", "id", documentID, "err", err.Error())
		return err
	}

	return nil
}

func (b *BleveDB) DeleteDocuments(ctx context.Context, documentIDs []string) error {
	batch := b.index.NewBatch()

	for i, docID := range documentIDs {
		batch.Delete(docID)

		if (i+1)%IndexingBatchSize == 0 {
			if err := b.index.Batch(batch); err != nil {
				b.logger.Error("could not delete documents", "err", err.Error())
				return err
			}
			batch = b.index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			b.logger.Error("could not delete documents", "err", err.Error())
			return err
		}
	}

	return nil
}

func (b *BleveDB) ListIndexes(ctx context.Context) ([]string, error) {
	return []string{b.indexName}, nil
}

// DocumentIDs pages through the ids of the documents stored for host, in id
// order. An empty host lists every document.
func (b *BleveDB) DocumentIDs(ctx context.Context, host string) ([]string, error) {
	var selection query.Query = bleve.NewMatchAllQuery()
	if host != "" {
		hostQuery := bleve.NewTermQuery(host)
		hostQuery.SetField(indexFieldHost)
		selection = hostQuery
	}

	var ids []string
	for from := 0; ; from += idScanPageSize {
		searchRequest := bleve.NewSearchRequestOptions(selection, idScanPageSize, from, false)
		searchRequest.SortBy([]string{"_id"})

		searchResult, err := b.index.SearchInContext(ctx, searchRequest)
		if err != nil {
			b.logger.Error("could not list document ids", "host", host, "err", err.Error())
			return nil, fmt.Errorf("could not list document ids: %w", err)
		}

		for _, hit := range searchResult.Hits {
			ids = append(ids, hit.ID)
		}

		if len(searchResult.Hits) < idScanPageSize {
			break
		}
	}

	return ids, nil
}

func (b *BleveDB) Get(ctx context.Context, documentID string) (*Document, error) {
	searchRequest := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{documentID}), 1, 0, false)
	searchRequest.Fields = []string{indexFieldSource}

	searchResult, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		b.logger.Error("could not get document", "id", documentID, "err", err.Error())
		return nil, err
	}
	if len(searchResult.Hits) == 0 {
		return nil, ErrDocumentNotFound
	}

	source, ok := searchResult.Hits[0].Fields[indexFieldSource].(string)
	if !ok {
		return nil, fmt.Errorf("document %s has no stored source", documentID)
	}

	var doc Document
	if err := json.Unmarshal([]byte(source), &doc); err != nil {
		return nil, fmt.Errorf("could not decode document %s: %w", documentID, err)
	}

	return &doc, nil
}

func (b *BleveDB) Search(ctx context.Context, queryString string, limit int, offset int) (*Response, error) {
	start := time.Now()

	searchRequest := bleve.NewSearchRequestOptions(b.buildSearchQuery(queryString), limit, offset, false)
	searchRequest.Fields = []string{indexFieldSource}

	searchResult, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		b.logger.Error("search failed", "err", err.Error())
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]Result, 0, len(searchResult.Hits))
	for _, hit := range searchResult.Hits {
		result := Result{ID: hit.ID, Score: hit.Score}

		if source, ok := hit.Fields[indexFieldSource].(string); ok {
			var doc Document
			if err := json.Unmarshal([]byte(source), &doc); err != nil {
				b.logger.Warn("could not decode stored document", "id", hit.ID, "err", err.Error())
			} else {
				result = resultFromDocument(doc, hit.Score)
			}
		}

		results = append(results, result)
	}

	return &Response{
		Results:    results,
		Total:      searchResult.Total,
		MaxScore:   searchResult.MaxScore,
		SearchTime: time.Since(start).String(),
	}, nil
}

func resultFromDocument(doc Document, score float64) Result {
	return Result{
		ID:          doc.ID,
		Title:       doc.Title,
		Description: doc.Description,
		Author:      doc.Author,
		Categories:  doc.Categories,
		Downloads:   doc.Downloads,
		PageURL:     doc.PageURL,
		IconURL:     doc.IconURL,
		Score:       score,
	}
}

func (b *BleveDB) buildSearchQuery(queryString string) query.Query {

	const (
		boostForTitle        = 3.0
		boostForDescription  = 1.0
		boostForAuthor       = 1.5
		boostForCategory     = 2.0
		boostForPhraseMatch  = 5.0
		boostForPartialMatch = 1.5
	)

	queryString = strings.ToLower(strings.TrimSpace(queryString))
	if queryString == "" {
		return bleve.NewMatchAllQuery()
	}

	phrases, remaining := parseQuotedQuery(queryString)

	conjunctQuery := bleve.NewConjunctionQuery()
	for _, phrase := range phrases {
		phraseQuery := bleve.NewDisjunctionQuery()
		for _, field := range []string{indexFieldTitle, indexFieldDescription} {
			fieldPhrase := bleve.NewMatchPhraseQuery(phrase)
			fieldPhrase.SetField(field)
			fieldPhrase.SetBoost(boostForPhraseMatch)
			phraseQuery.AddQuery(fieldPhrase)
		}
		conjunctQuery.AddQuery(phraseQuery)
	}

	if remaining != "" {
		disjunctQuery := bleve.NewDisjunctionQuery()

		titleQuery := bleve.NewMatchQuery(remaining)
		titleQuery.SetField(indexFieldTitle)
		titleQuery.SetBoost(boostForTitle)
		disjunctQuery.AddQuery(titleQuery)

		descriptionQuery := bleve.NewMatchQuery(remaining)
		descriptionQuery.SetField(indexFieldDescription)
		descriptionQuery.SetBoost(boostForDescription)
		disjunctQuery.AddQuery(descriptionQuery)

		authorQuery := bleve.NewMatchQuery(remaining)
		authorQuery.SetField(indexFieldAuthor)
		authorQuery.SetBoost(boostForAuthor)
		disjunctQuery.AddQuery(authorQuery)

		for _, term := range strings.Fields(remaining) {
			categoryQuery := bleve.NewTermQuery(term)
			categoryQuery.SetField(indexFieldCategories)
			categoryQuery.SetBoost(boostForCategory)
			disjunctQuery.AddQuery(categoryQuery)

			if len(term) > 2 {
				prefixQuery := bleve.NewPrefixQuery(term)
				prefixQuery.SetField(indexFieldTitle)
				prefixQuery.SetBoost(boostForPartialMatch)
				disjunctQuery.AddQuery(prefixQuery)
			}
		}

		conjunctQuery.AddQuery(disjunctQuery)
	}

	if len(conjunctQuery.Conjuncts) == 0 {
		return bleve.NewMatchAllQuery()
	}

	return conjunctQuery
}

// parseQuotedQuery splits out "quoted phrases" from the rest of the query.
func parseQuotedQuery(queryString string) ([]string, string) {
	var quoted []string
	for _, match := range quotedPhrasePattern.FindAllStringSubmatch(queryString, -1) {
		phrase := strings.TrimSpace(match[1])
		if phrase != "" {
			quoted = append(quoted, phrase)
		}
	}

	remaining := quotedPhrasePattern.ReplaceAllString(queryString, " ")

	return quoted, strings.Join(strings.Fields(remaining), " ")
}

func (b *BleveDB) GetDocCount(ctx context.Context) (uint64, error) {
	return b.index.DocCount()
}

func (b *BleveDB) Close() error {

	if b.index != nil {
		if err := b.index.Close(); err != nil {
			b.logger.Error("could not close search index", "err", err.Error())
			return err
		}
	}
	return nil
}

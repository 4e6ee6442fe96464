package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/meghashyamc/modsearch/db/primarydb"
	"github.com/meghashyamc/modsearch/db/searchdb"
	"github.com/meghashyamc/modsearch/logger"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentEnrichments = 8

var ErrNotSearchable = errors.New("mod is not searchable")

// ModStore is the part of the primary store the index reads from.
type ModStore interface {
	GetMod(ctx context.Context, id primarydb.ModID) (*primarydb.Mod, error)
	ListMods(ctx context.Context, afterID primarydb.ModID, limit int) ([]primarydb.Mod, error)
	GetOwner(ctx context.Context, teamID int64) (*primarydb.Owner, error)
	GetCategories(ctx context.Context, id primarydb.ModID) ([]string, error)
}

type ImportStats struct {
	Scanned    int `json:"scanned"`
	Searchable int `json:"searchable"`
	Skipped    int `json:"skipped"`
}

type Importer struct {
	logger    logger.Logger
	store     ModStore
	mapper    *Mapper
	batchSize int
}

func NewImporter(logger logger.Logger, store ModStore, mapper *Mapper, batchSize int) *Importer {
	if batchSize <= 0 {
		batchSize = searchdb.IndexingBatchSize
	}
	return &Importer{logger: logger, store: store, mapper: mapper, batchSize: batchSize}
}

// QueryOne builds the current document of one mod. It returns ErrNotSearchable
// when the mod exists but is not in a searchable status.
func (i *Importer) QueryOne(ctx context.Context, id primarydb.ModID) (*searchdb.Document, error) {
	mod, err := i.store.GetMod(ctx, id)
	if err != nil {
		return nil, err
	}
	if !mod.Status.IsSearchable() {
		return nil, fmt.Errorf("mod %s has status %s: %w", id, mod.Status, ErrNotSearchable)
	}

	return i.enrich(ctx, *mod)
}

func (i *Importer) enrich(ctx context.Context, mod primarydb.Mod) (*searchdb.Document, error) {
	owner, err := i.store.GetOwner(ctx, mod.TeamID)
	if err != nil {
		return nil, err
	}

	categories, err := i.store.GetCategories(ctx, mod.ID)
	if err != nil {
		return nil, err
	}

	doc := i.mapper.Map(mod, *owner, categories)
	return &doc, nil
}

// ImportAll pages through every mod and hands the documents of the searchable
// ones to yield, one page at a time. A mod whose owner or categories cannot be
// resolved is skipped; any other store error ends the run.
func (i *Importer) ImportAll(ctx context.Context, yield func(docs []searchdb.Document, stats ImportStats) error) (ImportStats, error) {
	var stats ImportStats
	var afterID primarydb.ModID

	for {
		mods, err := i.store.ListMods(ctx, afterID, i.batchSize)
		if err != nil {
			return stats, fmt.Errorf("could not list mods after %s: %w", afterID, err)
		}
		if len(mods) == 0 {
			return stats, nil
		}
		stats.Scanned += len(mods)
		afterID = mods[len(mods)-1].ID

		docs, skipped, err := i.enrichPage(ctx, mods)
		if err != nil {
			return stats, err
		}
		stats.Searchable += len(docs) + skipped
		stats.Skipped += skipped

		if err := yield(docs, stats); err != nil {
			return stats, err
		}

		if len(mods) < i.batchSize {
			return stats, nil
		}
	}
}

func (i *Importer) enrichPage(ctx context.Context, mods []primarydb.Mod) ([]searchdb.Document, int, error) {
	results := make([]*searchdb.Document, len(mods))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentEnrichments)

	for idx, mod := range mods {
		if !mod.Status.IsSearchable() {
			continue
		}
		eg.Go(func() error {
			doc, err := i.enrich(gctx, mod)
			if errors.Is(err, primarydb.ErrNotFound) {
				i.logger.Warn("skipping mod that could not be enriched", "mod_id", mod.ID.String(), "err", err.Error())
				return nil
			}
			if err != nil {
				return fmt.Errorf("could not enrich mod %s: %w", mod.ID, err)
			}
			results[idx] = doc
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}

	docs := make([]searchdb.Document, 0, len(mods))
	skipped := 0
	for idx, doc := range results {
		if doc != nil {
			docs = append(docs, *doc)
		} else if mods[idx].Status.IsSearchable() {
			skipped++
		}
	}

	return docs, skipped, nil
}

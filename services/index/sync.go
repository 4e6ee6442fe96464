package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/meghashyamc/modsearch/db/primarydb"
)

// NotifyBecameSearchable queues the current document of a mod that entered a
// searchable status. The write happens on the next flush. If the mod is no
// longer searchable by the time it is read, it is removed instead.
func (s *Service) NotifyBecameSearchable(ctx context.Context, id primarydb.ModID) error {
	doc, err := s.importer.QueryOne(ctx, id)
	if errors.Is(err, ErrNotSearchable) {
		s.logger.Info("mod left searchable status before it was queued", "mod_id", id.String())
		return s.removeEverywhere(ctx, id)
	}
	if err != nil {
		s.logger.Error("could not build document", "mod_id", id.String(), "err", err.Error())
		return fmt.Errorf("could not build document of mod %s: %w", id, err)
	}

	s.queue.Add(*doc)
	s.logger.Debug("queued document", "mod_id", id.String(), "doc_id", doc.ID)
	return nil
}

// NotifyEdited refreshes the queued document of an edited mod. Edits to mods
// that are not searchable leave the index alone.
func (s *Service) NotifyEdited(ctx context.Context, id primarydb.ModID) error {
	doc, err := s.importer.QueryOne(ctx, id)
	if errors.Is(err, ErrNotSearchable) {
		return nil
	}
	if err != nil {
		s.logger.Error("could not build document", "mod_id", id.String(), "err", err.Error())
		return fmt.Errorf("could not build document of mod %s: %w", id, err)
	}

	s.queue.Add(*doc)
	s.logger.Debug("queued edited document", "mod_id", id.String(), "doc_id", doc.ID)
	return nil
}

// NotifyLeftSearchable deletes the mod's document right away, without going
// through the queue.
func (s *Service) NotifyLeftSearchable(ctx context.Context, id primarydb.ModID) error {
	return s.removeEverywhere(ctx, id)
}

func (s *Service) NotifyDeleted(ctx context.Context, id primarydb.ModID) error {
	return s.removeEverywhere(ctx, id)
}

// NotifyStatusChange applies the index transition implied by a status edit.
func (s *Service) NotifyStatusChange(ctx context.Context, id primarydb.ModID, from primarydb.Status, to primarydb.Status) error {
	switch {
	case to.IsSearchable():
		return s.NotifyBecameSearchable(ctx, id)
	case from.IsSearchable():
		return s.NotifyLeftSearchable(ctx, id)
	default:
		return nil
	}
}

// removeEverywhere drops any queued entry for the mod, then deletes its
// document from every index the engine has.
func (s *Service) removeEverywhere(ctx context.Context, id primarydb.ModID) error {
	docID := s.mapper.DocumentID(id)
	s.queue.Remove(docID)

	indexes, err := s.index.ListIndexes(ctx)
	if err != nil {
		s.logger.Error("could not list indexes", "doc_id", docID, "err", err.Error())
		return fmt.Errorf("could not list indexes: %w", err)
	}

	var errs []error
	for _, indexName := range indexes {
		if err := s.index.Delete(ctx, indexName, docID); err != nil {
			s.logger.Error("could not delete document", "index", indexName, "doc_id", docID, "err", err.Error())
			errs = append(errs, fmt.Errorf("could not delete %s from %s: %w", docID, indexName, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.logger.Debug("deleted document", "doc_id", docID, "indexes", len(indexes))
	return nil
}

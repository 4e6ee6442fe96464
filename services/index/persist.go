package index

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang/snappy"
	"github.com/meghashyamc/modsearch/db/kvdb"
	"github.com/meghashyamc/modsearch/db/searchdb"
)

// Persist moves the creation queue into the metadata store so it survives a
// restart. Entries that could not be written stay queued.
func (s *Service) Persist() (int, error) {
	docs := s.queue.Drain()

	var failed []searchdb.Document
	var errs []error
	for _, doc := range docs {
		if err := s.metadataStore.Set(kvdb.PendingBucket, doc.ID, encodePending(doc)); err != nil {
			failed = append(failed, doc)
			errs = append(errs, err)
		}
	}

	if len(failed) > 0 {
		s.queue.AddIfAbsent(failed)
		s.logger.Error("could not persist pending documents", "count", len(failed))
		return len(docs) - len(failed), errors.Join(errs...)
	}

	s.logger.Info("persisted pending documents", "count", len(docs))
	return len(docs), nil
}

// Restore loads documents persisted by an earlier process back into the queue
// and clears them from the store. Anything queued since start wins over them.
func (s *Service) Restore() (int, error) {
	keys, err := s.metadataStore.GetAllKeys(kvdb.PendingBucket)
	if err != nil {
		s.logger.Error("could not list pending documents", "err", err.Error())
		return 0, fmt.Errorf("could not list pending documents: %w", err)
	}

	docs := make([]searchdb.Document, 0, len(keys))
	for _, key := range keys {
		value, err := s.metadataStore.Get(kvdb.PendingBucket, key)
		if err != nil {
			return 0, fmt.Errorf("could not read pending document %s: %w", key, err)
		}

		doc, err := decodePending(value)
		if err != nil {
			s.logger.Warn("dropping unreadable pending document", "doc_id", key, "err", err.Error())
			continue
		}
		docs = append(docs, doc)
	}

	restored := s.queue.AddIfAbsent(docs)
	for _, key := range keys {
		if err := s.metadataStore.Delete(kvdb.PendingBucket, key); err != nil {
			return restored, fmt.Errorf("could not clear pending document %s: %w", key, err)
		}
	}
	if restored > 0 {
		s.logger.Info("restored pending documents", "count", restored)
	}
	return restored, nil
}

func encodePending(doc searchdb.Document) string {
	raw, _ := json.Marshal(doc)
	return string(snappy.Encode(nil, raw))
}

func decodePending(value string) (searchdb.Document, error) {
	var doc searchdb.Document

	raw, err := snappy.Decode(nil, []byte(value))
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

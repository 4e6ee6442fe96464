package index

import (
	"sort"
	"sync"

	"github.com/meghashyamc/modsearch/db/searchdb"
)

// CreationQueue buffers pending document upserts keyed by document id.
// The lock is only ever held for map operations.
//
// Documents taken out for a write are tracked as a Batch until the write
// settles. Ids removed while a batch is out are remembered, so a failed
// write never puts back a document that was deleted in the meantime.
type CreationQueue struct {
	mu      sync.Mutex
	pending map[string]searchdb.Document

	generation uint64
	// outstanding counts open batches per generation.
	outstanding map[uint64]int
	// removed maps an id to the generation current when it was removed.
	removed map[string]uint64
}

// Batch is a set of drained documents whose write has not settled yet.
type Batch struct {
	Documents  []searchdb.Document
	generation uint64
}

func NewCreationQueue() *CreationQueue {
	return &CreationQueue{
		pending:     make(map[string]searchdb.Document),
		outstanding: make(map[uint64]int),
		removed:     make(map[string]uint64),
	}
}

// Add stores doc, replacing any pending entry with the same id.
func (q *CreationQueue) Add(doc searchdb.Document) {
	q.mu.Lock()
	q.pending[doc.ID] = doc
	q.mu.Unlock()
}

// AddIfAbsent stores the documents whose id has no pending entry and returns
// how many were stored.
func (q *CreationQueue) AddIfAbsent(docs []searchdb.Document) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	added := 0
	for _, doc := range docs {
		if _, ok := q.pending[doc.ID]; ok {
			continue
		}
		q.pending[doc.ID] = doc
		added++
	}
	return added
}

// Remove drops the pending entry for id, if any. While batches are out the
// removal is also recorded against them.
func (q *CreationQueue) Remove(id string) {
	q.mu.Lock()
	delete(q.pending, id)
	if len(q.outstanding) > 0 {
		q.removed[id] = q.generation
	}
	q.mu.Unlock()
}

// Drain empties the queue and returns what it held, ordered by id.
func (q *CreationQueue) Drain() []searchdb.Document {
	q.mu.Lock()
	pending := q.pending
	q.pending = make(map[string]searchdb.Document)
	q.mu.Unlock()

	return sortedDocuments(pending)
}

// TakeBatch drains the queue into a batch. Every batch must be settled with
// exactly one call to Release or Requeue.
func (q *CreationQueue) TakeBatch() *Batch {
	q.mu.Lock()
	pending := q.pending
	q.pending = make(map[string]searchdb.Document)
	q.generation++
	batch := &Batch{generation: q.generation}
	q.outstanding[batch.generation]++
	q.mu.Unlock()

	batch.Documents = sortedDocuments(pending)
	return batch
}

// Release settles a batch that was written. It returns the ids in the batch
// that were removed while the write was in flight; the write may have
// landed after their delete.
func (q *CreationQueue) Release(batch *Batch) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []string
	for _, doc := range batch.Documents {
		if q.removedSince(doc.ID, batch) {
			removed = append(removed, doc.ID)
		}
	}
	q.settle(batch)
	return removed
}

// Requeue settles a batch whose write failed by putting its documents back.
// Documents removed since the batch was taken, or superseded by a newer
// entry, are skipped. It returns how many were put back.
func (q *CreationQueue) Requeue(batch *Batch) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	restored := 0
	for _, doc := range batch.Documents {
		if q.removedSince(doc.ID, batch) {
			continue
		}
		if _, ok := q.pending[doc.ID]; ok {
			continue
		}
		q.pending[doc.ID] = doc
		restored++
	}
	q.settle(batch)
	return restored
}

func (q *CreationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *CreationQueue) removedSince(id string, batch *Batch) bool {
	generation, ok := q.removed[id]
	return ok && generation >= batch.generation
}

// settle closes the batch and forgets removals no open batch can see.
func (q *CreationQueue) settle(batch *Batch) {
	if q.outstanding[batch.generation] <= 1 {
		delete(q.outstanding, batch.generation)
	} else {
		q.outstanding[batch.generation]--
	}

	if len(q.outstanding) == 0 {
		clear(q.removed)
		return
	}

	oldest := q.generation
	for generation := range q.outstanding {
		oldest = min(oldest, generation)
	}
	for id, generation := range q.removed {
		if generation < oldest {
			delete(q.removed, id)
		}
	}
}

func sortedDocuments(pending map[string]searchdb.Document) []searchdb.Document {
	docs := make([]searchdb.Document, 0, len(pending))
	for _, doc := range pending {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

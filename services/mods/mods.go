package mods

import (
	"context"
	"fmt"

	"github.com/meghashyamc/modsearch/db/primarydb"
	"github.com/meghashyamc/modsearch/logger"
)

// Store is the primary store surface used by mod mutations.
type Store interface {
	GetMod(ctx context.Context, id primarydb.ModID) (*primarydb.Mod, error)
	GetCategories(ctx context.Context, id primarydb.ModID) ([]string, error)
	CreateMod(ctx context.Context, mod primarydb.NewMod) error
	UpdateMod(ctx context.Context, id primarydb.ModID, update primarydb.ModUpdate) (primarydb.Status, error)
	DeleteMod(ctx context.Context, id primarydb.ModID) (bool, error)
}

// IndexNotifier receives the lifecycle events the search index follows.
type IndexNotifier interface {
	NotifyBecameSearchable(ctx context.Context, id primarydb.ModID) error
	NotifyEdited(ctx context.Context, id primarydb.ModID) error
	NotifyStatusChange(ctx context.Context, id primarydb.ModID, from primarydb.Status, to primarydb.Status) error
	NotifyDeleted(ctx context.Context, id primarydb.ModID) error
}

type Service struct {
	logger   logger.Logger
	store    Store
	notifier IndexNotifier
}

func New(logger logger.Logger, store Store, notifier IndexNotifier) *Service {
	return &Service{
		logger:   logger,
		store:    store,
		notifier: notifier,
	}
}

// ModView is a mod together with its categories.
type ModView struct {
	primarydb.Mod
	Categories []string
}

func (s *Service) Get(ctx context.Context, id primarydb.ModID) (*ModView, error) {
	mod, err := s.store.GetMod(ctx, id)
	if err != nil {
		return nil, err
	}

	categories, err := s.store.GetCategories(ctx, id)
	if err != nil {
		return nil, err
	}

	return &ModView{Mod: *mod, Categories: categories}, nil
}

// Create stores a new mod. A mod created straight into a searchable status is
// queued for indexing.
func (s *Service) Create(ctx context.Context, mod primarydb.NewMod) (*ModView, error) {
	if mod.ID == 0 {
		id, err := primarydb.NewModID()
		if err != nil {
			s.logger.Error("could not allocate mod id", "err", err.Error())
			return nil, err
		}
		mod.ID = id
	}

	if err := s.store.CreateMod(ctx, mod); err != nil {
		return nil, fmt.Errorf("could not create mod: %w", err)
	}
	s.logger.Info("created mod", "mod_id", mod.ID.String(), "status", mod.Status.String())

	if mod.Status.IsSearchable() {
		s.syncIndex(mod.ID, s.notifier.NotifyBecameSearchable(ctx, mod.ID))
	}

	return s.Get(ctx, mod.ID)
}

// Update applies an edit and then the index transition it implies. A status
// edit may add or remove the mod from the index; a detail edit on a
// searchable mod refreshes its queued document.
func (s *Service) Update(ctx context.Context, id primarydb.ModID, update primarydb.ModUpdate) (*ModView, error) {
	previous, err := s.store.UpdateMod(ctx, id, update)
	if err != nil {
		return nil, err
	}

	if update.Status != nil {
		s.logger.Info("changed mod status", "mod_id", id.String(), "from", previous.String(), "to", update.Status.String())
		s.syncIndex(id, s.notifier.NotifyStatusChange(ctx, id, previous, *update.Status))
	} else {
		s.syncIndex(id, s.notifier.NotifyEdited(ctx, id))
	}

	return s.Get(ctx, id)
}

// Delete removes a mod and its document. The index delete is attempted even
// when the mod was already gone, and ErrNotFound is returned in that case.
func (s *Service) Delete(ctx context.Context, id primarydb.ModID) error {
	existed, err := s.store.DeleteMod(ctx, id)
	if err != nil {
		return err
	}

	s.syncIndex(id, s.notifier.NotifyDeleted(ctx, id))

	if !existed {
		return fmt.Errorf("mod %s: %w", id, primarydb.ErrNotFound)
	}
	s.logger.Info("deleted mod", "mod_id", id.String())
	return nil
}

// syncIndex logs index failures without failing the request. The next full
// reindex corrects whatever was missed.
func (s *Service) syncIndex(id primarydb.ModID, err error) {
	if err != nil {
		s.logger.Warn("search index is out of date until the next reindex", "mod_id", id.String(), "err", err.Error())
	}
}

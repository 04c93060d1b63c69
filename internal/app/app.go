package app

import (
	"context"
	"errors"

	"github.com/bassista/go_coalesce/internal/autosave"
	"github.com/bassista/go_coalesce/internal/config"
	"github.com/bassista/go_coalesce/internal/document"
	"github.com/bassista/go_coalesce/internal/logger"
	"github.com/bassista/go_coalesce/internal/repository"
)

// App is the application container (immutable dependencies + lifecycle context).
// It is not a request context; handlers should still use gin's request context.
type App struct {
	Config   *config.Config
	Repo     repository.Repository
	Store    document.AppStore
	Autosave *autosave.Scheduler

	BaseCtx context.Context
	Cancel  context.CancelFunc
}

// New wires the container together.
func New(cfg *config.Config, repo repository.Repository, store document.AppStore, sched *autosave.Scheduler) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if repo == nil {
		return nil, errors.New("repo is nil")
	}
	if store == nil {
		return nil, errors.New("document store is nil")
	}
	if sched == nil {
		return nil, errors.New("autosave scheduler is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Config:   cfg,
		Repo:     repo,
		Store:    store,
		Autosave: sched,
		BaseCtx:  ctx,
		Cancel:   cancel,
	}, nil
}

// Shutdown flushes pending autosave work and stops background goroutines.
func (a *App) Shutdown() {
	if a == nil || a.Cancel == nil {
		return
	}
	if a.Autosave != nil {
		if err := a.Autosave.Teardown(); err != nil {
			logger.WithComponent("app").Warnf("final autosave flush failed: %v", err)
		}
	}
	a.Cancel()
}

// StartWatchers starts the document file watcher so external edits to the
// data file are picked up.
func (a *App) StartWatchers() error {
	return a.Repo.StartWatcher(a.BaseCtx, &watcherStore{store: a.Store, sched: a.Autosave})
}

// NewPersistFunc adapts the repository into the scheduler's persist call: it
// saves the document content and propagates the new persistence timestamp
// back into the store.
func NewPersistFunc(repo repository.Saver, store document.AppStore) autosave.PersistFunc {
	return func(ctx context.Context, value any) error {
		doc, ok := value.(repository.Document)
		if !ok {
			return errors.New("persist: value is not a document")
		}
		if err := repo.Save(ctx, &doc); err != nil {
			return err
		}
		store.SetLastUpdate(doc.Metadata.LastUpdate)
		return nil
	}
}

// watcherStore bridges the repository watcher to the store and the scheduler:
// "dirty" is now "the scheduler has unsaved changes", and a reload from disk
// must not be re-persisted.
type watcherStore struct {
	store document.AppStore
	sched *autosave.Scheduler
}

func (w *watcherStore) GetLastUpdate() int64 {
	return w.store.GetLastUpdate()
}

func (w *watcherStore) HasPendingChanges() bool {
	return w.sched.Pending()
}

func (w *watcherStore) Snapshot() (repository.Document, error) {
	return w.store.Snapshot()
}

func (w *watcherStore) Replace(doc repository.Document) error {
	if err := w.store.Replace(doc); err != nil {
		return err
	}
	return w.sched.MarkSaved(doc.Content())
}

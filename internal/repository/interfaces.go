package repository

import "context"

// Saver persists a Document.
// Small interface consumed by the autosave scheduler's persist call.
type Saver interface {
	Save(ctx context.Context, doc *Document) error
}

// Repository abstracts persistence and watching of the document file.
// JSONRepository implements this interface.
type Repository interface {
	Saver
	Load(ctx context.Context) (*Document, error)
	StartWatcher(ctx context.Context, store CacheStore) error
}

// CacheStore defines the cache operations needed by the watcher callback.
type CacheStore interface {
	GetLastUpdate() int64
	HasPendingChanges() bool
	Snapshot() (Document, error)
	Replace(doc Document) error
}

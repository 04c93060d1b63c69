package document

import "github.com/bassista/go_coalesce/internal/repository"

// ReadOnlyStore is the minimal store API for read-only handlers.
type ReadOnlyStore interface {
	Snapshot() (repository.Document, error)
}

// EditableStore is the store API needed by document handlers.
type EditableStore interface {
	ReadOnlyStore
	ReplaceContent(doc repository.Document) (repository.Document, error)
	UpsertSection(section repository.Section) (repository.Document, error)
	RemoveSection(id string) (repository.Document, error)
}

// AppStore is the store contract the application container exposes. It is
// intentionally broad: it supports handlers and the repository watcher.
type AppStore interface {
	EditableStore
	GetLastUpdate() int64
	SetLastUpdate(ts int64)
	Replace(doc repository.Document) error
}

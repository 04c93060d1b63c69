package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bassista/go_coalesce/internal/autosave"
	"github.com/bassista/go_coalesce/internal/config"
	"github.com/bassista/go_coalesce/internal/document"
	"github.com/bassista/go_coalesce/internal/repository"
)

// mockRepository implements repository.Repository for testing.
type mockRepository struct {
	mu             sync.Mutex
	watcherStarted bool
	watcherErr     error
	saveErr        error
	doc            repository.Document
	saves          int
}

func (m *mockRepository) Load(ctx context.Context) (*repository.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.doc
	return &doc, nil
}

func (m *mockRepository) Save(ctx context.Context, doc *repository.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if doc != nil {
		doc.Metadata.LastUpdate = time.Now().UnixMilli()
		m.doc = *doc
		m.saves++
	}
	return nil
}

func (m *mockRepository) StartWatcher(ctx context.Context, store repository.CacheStore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcherErr != nil {
		return m.watcherErr
	}
	m.watcherStarted = true
	return nil
}

func (m *mockRepository) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func testDocument() repository.Document {
	doc := repository.Document{
		Metadata: repository.Metadata{LastUpdate: 1000},
		Title:    "Notes",
	}
	doc.ApplyDefaults()
	return doc
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Data:   config.DataConfig{FilePath: "/tmp/document.json"},
	}
}

func newTestApp(t *testing.T, repo *mockRepository) (*App, *document.Store) {
	t.Helper()
	doc := testDocument()
	store := document.NewStore(doc)

	sched, err := autosave.New(context.Background(), doc.Content(),
		NewPersistFunc(repo, store),
		autosave.Options{IdleInterval: time.Hour, ImmediateFirst: false})
	if err != nil {
		t.Fatalf("autosave.New: %v", err)
	}

	app, err := New(testConfig(), repo, store, sched)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return app, store
}

func TestNew_NilDependencies(t *testing.T) {
	repo := &mockRepository{doc: testDocument()}
	store := document.NewStore(testDocument())
	sched, _ := autosave.New(context.Background(), nil,
		func(context.Context, any) error { return nil }, autosave.Options{})

	tests := []struct {
		name string
		fn   func() (*App, error)
	}{
		{"nil config", func() (*App, error) { return New(nil, repo, store, sched) }},
		{"nil repo", func() (*App, error) { return New(testConfig(), nil, store, sched) }},
		{"nil store", func() (*App, error) { return New(testConfig(), repo, nil, sched) }},
		{"nil scheduler", func() (*App, error) { return New(testConfig(), repo, store, nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.fn(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestApp_StartWatchers(t *testing.T) {
	repo := &mockRepository{doc: testDocument()}
	app, _ := newTestApp(t, repo)
	defer app.Shutdown()

	if err := app.StartWatchers(); err != nil {
		t.Fatalf("StartWatchers: %v", err)
	}
	if !repo.watcherStarted {
		t.Error("expected watcher to be started")
	}
}

func TestApp_ShutdownFlushesPendingEdits(t *testing.T) {
	repo := &mockRepository{doc: testDocument()}
	app, store := newTestApp(t, repo)

	updated, err := store.UpsertSection(repository.Section{ID: "s1", Heading: "Intro"})
	if err != nil {
		t.Fatalf("UpsertSection: %v", err)
	}
	if err := app.Autosave.OnChange(updated.Content()); err != nil {
		t.Fatalf("OnChange: %v", err)
	}

	app.Shutdown()

	if repo.saveCount() != 1 {
		t.Errorf("expected one final save on shutdown, got %d", repo.saveCount())
	}
}

func TestApp_ShutdownWithNothingPending(t *testing.T) {
	repo := &mockRepository{doc: testDocument()}
	app, _ := newTestApp(t, repo)

	app.Shutdown()

	if repo.saveCount() != 0 {
		t.Errorf("expected no save on clean shutdown, got %d", repo.saveCount())
	}
}

func TestNewPersistFunc_PropagatesTimestamp(t *testing.T) {
	repo := &mockRepository{doc: testDocument()}
	store := document.NewStore(testDocument())

	persist := NewPersistFunc(repo, store)
	doc := testDocument()
	doc.Title = "Edited"

	if err := persist(context.Background(), doc.Content()); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if store.GetLastUpdate() == 1000 {
		t.Error("expected store lastUpdate advanced after persist")
	}
}

func TestNewPersistFunc_RejectsNonDocument(t *testing.T) {
	repo := &mockRepository{doc: testDocument()}
	store := document.NewStore(testDocument())

	persist := NewPersistFunc(repo, store)
	if err := persist(context.Background(), 42); err == nil {
		t.Error("expected error for non-document value")
	}
}

func TestWatcherStore_ReplaceMarksSaved(t *testing.T) {
	repo := &mockRepository{doc: testDocument()}
	app, store := newTestApp(t, repo)
	defer app.Shutdown()

	ws := &watcherStore{store: store, sched: app.Autosave}

	newer := testDocument()
	newer.Metadata.LastUpdate = 5000
	newer.Title = "Reloaded"

	if err := ws.Replace(newer); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if ws.HasPendingChanges() {
		t.Error("expected no pending changes after reload from disk")
	}
	snapshot, _ := store.Snapshot()
	if snapshot.Title != "Reloaded" {
		t.Errorf("expected store replaced, got title '%s'", snapshot.Title)
	}
}

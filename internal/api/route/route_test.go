package route

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_coalesce/internal/app"
	"github.com/bassista/go_coalesce/internal/autosave"
	"github.com/bassista/go_coalesce/internal/config"
	"github.com/bassista/go_coalesce/internal/document"
	"github.com/bassista/go_coalesce/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// recordingRepo implements repository.Repository and records every saved
// document.
type recordingRepo struct {
	mu    sync.Mutex
	saves []repository.Document
}

func (r *recordingRepo) Save(_ context.Context, doc *repository.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, *doc)
	return nil
}

func (r *recordingRepo) Load(_ context.Context) (*repository.Document, error) {
	doc := testDocument()
	return &doc, nil
}

func (r *recordingRepo) StartWatcher(_ context.Context, _ repository.CacheStore) error {
	return nil
}

func (r *recordingRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

// Verify recordingRepo implements repository.Repository
var _ repository.Repository = (*recordingRepo)(nil)

// stubTimer is a burst timer that never fires on its own.
type stubTimer struct{}

func (stubTimer) Arm(_ time.Duration, _ func()) {}
func (stubTimer) Cancel()                       {}

func testDocument() repository.Document {
	doc := repository.Document{
		Title: "Notes",
		Sections: []repository.Section{
			{ID: "intro", Heading: "Intro", Body: "hello"},
		},
		Order: []string{"intro"},
	}
	doc.ApplyDefaults()
	return doc
}

// newTestRouter wires a full engine: real store, real scheduler over a
// recording repository, routes from SetupRoutes.
func newTestRouter(t *testing.T, immediateFirst bool) (*gin.Engine, *recordingRepo) {
	t.Helper()

	repo := &recordingRepo{}
	store := document.NewStore(testDocument())

	sched, err := autosave.New(context.Background(), testDocument().Content(),
		app.NewPersistFunc(repo, store), autosave.Options{
			IdleInterval:   time.Hour,
			ImmediateFirst: immediateFirst,
			Timer:          stubTimer{},
		})
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			CORSAllowedOrigins: "*",
			RequestTimeout:     time.Second,
		},
	}
	appCtx, err := app.New(cfg, repo, store, sched)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	t.Cleanup(appCtx.Shutdown)

	r := gin.New()
	SetupRoutes(r, appCtx)
	return r, repo
}

func waitForSaves(t *testing.T, repo *recordingRepo, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if repo.saveCount() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d saves, got %d", want, repo.saveCount())
}

func TestRouting_Health(t *testing.T) {
	r, _ := newTestRouter(t, true)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"UP"`) {
		t.Errorf("expected UP message, got: %s", w.Body.String())
	}
}

func TestRouting_GetDocument(t *testing.T) {
	r, _ := newTestRouter(t, true)

	req := httptest.NewRequest(http.MethodGet, "/document", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		t.Errorf("expected JSON response, got Content-Type=%s", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), `"Notes"`) {
		t.Errorf("expected document title in body, got: %s", w.Body.String())
	}
}

// TestRouting_PutDocumentTriggersImmediateSave verifies the full path from an
// HTTP mutation to a background persist: the first change of a burst is saved
// right away.
func TestRouting_PutDocumentTriggersImmediateSave(t *testing.T) {
	r, repo := newTestRouter(t, true)

	body := `{"title":"Notes v2","sections":[],"order":[],"tags":[]}`
	req := httptest.NewRequest(http.MethodPut, "/document", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	waitForSaves(t, repo, 1)
	repo.mu.Lock()
	saved := repo.saves[0]
	repo.mu.Unlock()
	if saved.Title != "Notes v2" {
		t.Errorf("expected saved title 'Notes v2', got %q", saved.Title)
	}
}

// TestRouting_FlushPersistsPendingEdit covers the trailing path without an
// immediate-first save: the edit stays pending until POST /autosave/flush.
func TestRouting_FlushPersistsPendingEdit(t *testing.T) {
	r, repo := newTestRouter(t, false)

	body := `{"id":"outro","heading":"Outro","body":"bye"}`
	req := httptest.NewRequest(http.MethodPost, "/document/sections", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if repo.saveCount() != 0 {
		t.Fatalf("expected no save before flush, got %d", repo.saveCount())
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/autosave/status", nil)
	statusW := httptest.NewRecorder()
	r.ServeHTTP(statusW, statusReq)
	if !strings.Contains(statusW.Body.String(), `"pending":true`) {
		t.Errorf("expected pending status before flush, got: %s", statusW.Body.String())
	}

	flushReq := httptest.NewRequest(http.MethodPost, "/autosave/flush", nil)
	flushW := httptest.NewRecorder()
	r.ServeHTTP(flushW, flushReq)
	if flushW.Code != http.StatusOK {
		t.Fatalf("expected status 200 from flush, got %d: %s", flushW.Code, flushW.Body.String())
	}

	if repo.saveCount() != 1 {
		t.Fatalf("expected exactly one save after flush, got %d", repo.saveCount())
	}

	statusW = httptest.NewRecorder()
	r.ServeHTTP(statusW, statusReq)
	if !strings.Contains(statusW.Body.String(), `"pending":false`) {
		t.Errorf("expected no pending changes after flush, got: %s", statusW.Body.String())
	}
}

func TestRouting_DeleteUnknownSection(t *testing.T) {
	r, _ := newTestRouter(t, true)

	req := httptest.NewRequest(http.MethodDelete, "/document/sections/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/bassista/go_coalesce/internal/logger"
	"github.com/bassista/go_coalesce/internal/snapshot"
)

// JSONRepository handles disk persistence and watching of the document file.
type JSONRepository struct {
	path      string
	dir       string
	base      string
	debounce  time.Duration
	validator *validator.Validate
	log       *logrus.Entry
	mu        sync.Mutex
}

// NewJSONRepository creates a repository for the given JSON file path.
// debounce is the quiet window applied to file-watch events before reloading.
func NewJSONRepository(path string, debounce time.Duration) (Repository, error) {
	if path == "" {
		return nil, errors.New("document file path is required")
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == "" || dir == "." {
		dir = "."
	}

	return &JSONRepository{
		path:      path,
		dir:       dir,
		base:      base,
		debounce:  debounce,
		validator: validator.New(),
		log:       logger.WithComponent("json-repo"),
	}, nil
}

// Load reads the JSON file, parses and validates it. A missing file is
// reported as an errdefs.ErrNotFound so callers can distinguish first-run
// from corruption.
func (r *JSONRepository) Load(ctx context.Context) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadUnlocked(ctx)
}

func (r *JSONRepository) loadUnlocked(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document file %s: %w", r.path, errdefs.ErrNotFound)
		}
		return nil, fmt.Errorf("open document file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	var doc Document
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document file: %w", err)
	}

	doc.ApplyDefaults()

	if err := r.validator.Struct(&doc); err != nil {
		return nil, fmt.Errorf("validate document file: %w", err)
	}

	return &doc, nil
}

// Save validates and writes the document atomically to disk, stamping its
// persistence timestamp.
func (r *JSONRepository) Save(ctx context.Context, doc *Document) error {
	if doc == nil {
		return errors.New("document is nil")
	}
	if err := r.validator.Struct(doc); err != nil {
		return fmt.Errorf("validate before save: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveUnlocked(ctx, doc)
}

func (r *JSONRepository) saveUnlocked(ctx context.Context, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc.Metadata.LastUpdate = time.Now().UnixMilli()

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	tmpFile, err := os.CreateTemp(r.dir, r.base+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}()

	if _, err := tmpFile.Write(payload); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), r.path); err != nil {
		return fmt.Errorf("replace document file: %w", err)
	}

	return nil
}

// StartWatcher listens for changes to the document file and reloads the cache
// after a debounce window. It watches the parent directory (not the file) so
// atomic replace sequences (temp+rename) are still observed. The caller owns
// the provided context: cancel it to stop the goroutine and close the watcher.
func (r *JSONRepository) StartWatcher(ctx context.Context, store CacheStore) error {
	if store == nil {
		return errors.New("cache store is required")
	}
	onChange := r.MakeWatcherCallback(store)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch dir: %w", err)
	}

	go func() {
		defer watcher.Close()

		// debounce coalesces bursty fsnotify events (write+chmod/rename) into
		// a single reload.
		var debounce *time.Timer
		schedule := func() {
			if debounce != nil {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
			}
			debounce = time.AfterFunc(r.debounce, onChange)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != r.base {
					continue
				}
				// Write/Create/Chmod cover normal edits and atomic replace;
				// Remove/Rename means the file was swapped, wait for the next
				// event of the replace sequence. Either way: reload soon.
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod|fsnotify.Remove|fsnotify.Rename) != 0 {
					schedule()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.log.Errorf("watcher error: %v", err)
			}
		}
	}()

	return nil
}

// MakeWatcherCallback returns the debounced reload callback: if the on-disk
// document is newer than the cache and the cache has no unsaved edits, the
// cache is replaced with the disk version.
func (r *JSONRepository) MakeWatcherCallback(store CacheStore) func() {
	return func() {
		diskDoc, loadErr := r.Load(context.Background())
		if loadErr != nil {
			r.log.Errorf("watch reload failed: %v", loadErr)
			return
		}
		cacheLastUpdate := store.GetLastUpdate()
		diskLastUpdate := diskDoc.Metadata.LastUpdate

		if diskLastUpdate < cacheLastUpdate {
			r.log.Debugf("disk version is not newer than cache: disk=%d cache=%d", diskLastUpdate, cacheLastUpdate)
			return
		}

		if store.HasPendingChanges() {
			// The cache content will be written to the file soon anyway.
			r.log.Warnf("disk document is newer but cache has unsaved edits; skipping reload")
			return
		}

		if diskLastUpdate == cacheLastUpdate {
			// Same version stamp: only replace when content actually differs.
			cached, err := store.Snapshot()
			if err != nil {
				r.log.Errorf("cache reload error: failed to get snapshot: %v", err)
				return
			}
			cachedFP, err1 := snapshot.Fingerprint(cached.Content())
			diskFP, err2 := snapshot.Fingerprint(diskDoc.Content())
			if err1 == nil && err2 == nil && snapshot.Equal(cachedFP, diskFP) {
				return
			}
		}

		if err := store.Replace(*diskDoc); err != nil {
			r.log.Errorf("cache reload error: %v", err)
			return
		}
		r.log.Infof("cache reloaded from newer disk version")
	}
}

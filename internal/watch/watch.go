// Package watch turns local page edits into upload commands.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alexjbarnes/journal-sync/internal/projector"
	"github.com/alexjbarnes/journal-sync/internal/queue"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

const (
	// rootDirPerm is the permission mode for the root when ensuring it
	// exists before watching.
	rootDirPerm = fs.FileMode(0o755)

	// debounceInterval is how often pending events are checked.
	debounceInterval = 500 * time.Millisecond

	// settleTime is how long a file must stay quiet before it counts as
	// saved. Editors often write a file several times per save.
	settleTime = 300 * time.Millisecond
)

// pusher accepts upload commands.
type pusher interface {
	Submit(cmd queue.Command) uuid.UUID
}

// hashStore returns the hash of the content last written or uploaded
// for a root-relative page file, or "" when there is none.
type hashStore interface {
	FileHash(relPath string) (string, error)
}

// Watcher monitors the root for page saves and submits an upload of the
// owning entry for each.
type Watcher struct {
	proj    *projector.Projector
	hashes  hashStore
	pusher  pusher
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	interval time.Duration
	settle   time.Duration
}

// New creates a watcher for the projector's root.
func New(proj *projector.Projector, hashes hashStore, p pusher, logger *slog.Logger) *Watcher {
	return &Watcher{
		proj:     proj,
		hashes:   hashes,
		pusher:   p,
		logger:   logger,
		interval: debounceInterval,
		settle:   settleTime,
	}
}

// Watch blocks until ctx is cancelled. Directories are watched
// recursively.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	w.watcher = watcher
	defer watcher.Close()

	root := w.proj.Root()

	if err := os.MkdirAll(root, rootDirPerm); err != nil {
		return fmt.Errorf("creating root dir: %w", err)
	}

	if err := w.addRecursive(root); err != nil {
		return fmt.Errorf("watching root dir: %w", err)
	}

	w.logger.Info("file watcher started", slog.String("dir", root))

	pending := make(map[string]time.Time)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("fsnotify events channel closed unexpectedly")
			}

			if w.shouldIgnore(event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				pending[event.Name] = time.Now()

				// Lstat so a symlink never pulls a directory outside the
				// root into the watch.
				if event.Has(fsnotify.Create) {
					info, err := os.Lstat(event.Name)
					if err == nil && info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
						_ = w.addRecursive(event.Name)
					}
				}
			}

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				// Uploads never delete remotely.
				delete(pending, event.Name)
				_ = watcher.Remove(event.Name)
				w.logger.Debug("local removal not synced", slog.String("path", event.Name))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			w.flush(pending, time.Now())
		}
	}
}

// flush submits one upload per entry for every settled path.
func (w *Watcher) flush(pending map[string]time.Time, now time.Time) {
	entries := make(map[string]struct{})

	for path, t := range pending {
		if now.Sub(t) < w.settle {
			continue
		}

		delete(pending, path)

		if dir, ok := w.changedEntry(path); ok {
			entries[dir] = struct{}{}
		}
	}

	for dir := range entries {
		id := w.pusher.Submit(queue.Command{Kind: queue.UploadOne, Path: dir})
		w.logger.Info("local edit queued for upload", slog.String("entry", dir), slog.String("id", id.String()))
	}
}

// changedEntry returns the entry directory of the page file at absPath
// when its content differs from what was last synced.
func (w *Watcher) changedEntry(absPath string) (string, bool) {
	rel, ok := w.proj.Rel(absPath)
	if !ok {
		return "", false
	}

	dir, ok := w.proj.PageFile(rel)
	if !ok {
		return "", false
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("reading file", slog.String("path", rel), slog.String("error", err.Error()))
		}

		return "", false
	}

	// Skip content we just wrote from a download.
	known, err := w.hashes.FileHash(rel)
	if err != nil {
		w.logger.Warn("reading file hash", slog.String("path", rel), slog.String("error", err.Error()))
	} else if known == projector.ContentHash(content) {
		return "", false
	}

	return dir, true
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != dir && w.shouldIgnore(path) {
			return filepath.SkipDir
		}

		if d.Type()&os.ModeSymlink != 0 {
			return filepath.SkipDir
		}

		return w.watcher.Add(path)
	})
}

func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}

	// Editor backup and swap files.
	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") || strings.HasPrefix(base, "#") {
		return true
	}

	return false
}

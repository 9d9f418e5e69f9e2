// Package watch keeps the index live: filesystem events under the corpus
// root are debounced, filtered against the scan rules, and turned into
// targeted rescan requests.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/alanz/org-node/internal/config"
	"github.com/alanz/org-node/internal/coordinator"
	"github.com/alanz/org-node/internal/debug"
	"github.com/alanz/org-node/internal/index"
	"github.com/alanz/org-node/internal/orgerrors"
	"github.com/alanz/org-node/internal/scan"
)

// Watcher translates filesystem events into targeted scan requests.
type Watcher struct {
	cfg   *config.Config
	store *index.Store
	coord coordinator.Coordinator
	fsw   *fsnotify.Watcher
}

// New sets up a recursive watch over the corpus root.
func New(cfg *config.Config, store *index.Store, coord coordinator.Coordinator) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, orgerrors.NewScanError("create watcher", err)
	}
	w := &Watcher{cfg: cfg, store: store, coord: coord, fsw: fsw}
	if err := w.addTree(cfg.Root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree registers root and every non-excluded subdirectory. fsnotify has
// no recursive mode, so new directories are added as Create events arrive.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && !scan.Eligible(root, filepath.Join(path, "probe.org"), &w.cfg.Scan) {
			return fs.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			debug.LogWatch("cannot watch %s: %v", path, err)
		}
		return nil
	})
}

// Run processes events until the context ends. Changed files accumulate
// during the debounce window and go out as one targeted request.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	debounce := time.Duration(w.cfg.Watch.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	changed := make(map[string]bool)
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if path, want := w.classify(ev); want {
				if len(changed) == 0 {
					timer.Reset(debounce)
				}
				changed[path] = true
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			debug.LogWatch("watch error: %v", err)

		case <-timer.C:
			files := w.flush(changed)
			changed = make(map[string]bool)
			if len(files) > 0 {
				debug.LogWatch("requesting rescan of %d files", len(files))
				w.coord.RequestTargetedScan(files)
			}
		}
	}
}

// classify decides whether an event should trigger a rescan of its path.
// New directories are added to the watch here as a side effect.
func (w *Watcher) classify(ev fsnotify.Event) (string, bool) {
	if ev.Op.Has(fsnotify.Create) {
		if fi, err := os.Lstat(ev.Name); err == nil && fi.IsDir() {
			_ = w.addTree(ev.Name)
			return "", false
		}
	}
	if ev.Op.Has(fsnotify.Chmod) && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return "", false
	}
	if !scan.Eligible(w.cfg.Root, ev.Name, &w.cfg.Scan) {
		return "", false
	}
	// Removed and renamed files still go through: scanning a missing path
	// prunes its records.
	return ev.Name, true
}

// flush filters the debounced set, dropping saves that left the content
// byte-identical to what the index already holds.
func (w *Watcher) flush(changed map[string]bool) []string {
	var files []string
	for path := range changed {
		if w.unchanged(path) {
			debug.LogWatch("content unchanged, skipping %s", path)
			continue
		}
		files = append(files, path)
	}
	return files
}

func (w *Watcher) unchanged(path string) bool {
	info, ok := w.store.FileInfo(path)
	if !ok {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return xxhash.Sum64(data) == info.Hash
}

package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Folder binds one watched vault folder to the sync pair it belongs to.
type Folder struct {
	ConfigID string
	// RelPath is the folder path relative to the vault root;
	// "" or "." means the vault root itself.
	RelPath string
}

// Watcher monitors the vault folders of push-capable sync pairs and
// emits a debounced trigger per pair when markdown files change.
type Watcher struct {
	vaultPath      string
	folders        []Folder
	watcher        *fsnotify.Watcher
	debouncer      *Debouncer
	ignorePatterns []string
}

// NewWatcher creates a watcher over the given vault folders.
func NewWatcher(vaultPath string, folders []Folder, debounceMs int, ignorePatterns []string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Longest-prefix folders first so nested pairs win over parents.
	sorted := append([]Folder(nil), folders...)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i].RelPath) > len(sorted[j].RelPath)
	})

	return &Watcher{
		vaultPath:      vaultPath,
		folders:        sorted,
		watcher:        fsWatcher,
		debouncer:      NewDebouncer(debounceMs),
		ignorePatterns: ignorePatterns,
	}, nil
}

// Start begins watching and dispatching events.
func (w *Watcher) Start(ctx context.Context) error {
	for _, f := range w.folders {
		root := filepath.Join(w.vaultPath, filepath.FromSlash(f.RelPath))
		if err := w.addRecursive(root); err != nil {
			slog.Warn("failed to watch folder", "folder", f.RelPath, "error", err)
		}
	}

	go w.processEvents(ctx)

	slog.Info("watcher started", "folders", len(w.folders))
	return nil
}

// Triggers returns the channel of debounced per-pair sync triggers.
func (w *Watcher) Triggers() <-chan Trigger {
	return w.debouncer.Triggers()
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	w.watcher.Close()
	w.debouncer.Stop()
}

// addRecursive watches a directory tree.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		relPath, _ := filepath.Rel(w.vaultPath, path)
		if w.ignored(filepath.ToSlash(relPath)) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.vaultPath, event.Name)
	if err != nil {
		return
	}
	relPath = filepath.ToSlash(relPath)

	if w.ignored(relPath) {
		return
	}

	// New directories need watching before files inside them show up.
	if event.Op.Has(fsnotify.Create) {
		if !strings.Contains(filepath.Base(event.Name), ".") {
			w.addRecursive(event.Name)
		}
	}

	if !strings.HasSuffix(strings.ToLower(relPath), ".md") {
		return
	}

	if configID, ok := w.folderFor(relPath); ok {
		slog.Debug("file event", "path", relPath, "op", event.Op.String())
		w.debouncer.Touch(configID)
	}
}

// folderFor maps a changed file to the sync pair whose folder contains
// it, preferring the most specific folder.
func (w *Watcher) folderFor(relPath string) (string, bool) {
	for _, f := range w.folders {
		if f.RelPath == "" || f.RelPath == "." {
			return f.ConfigID, true
		}
		if relPath == f.RelPath || strings.HasPrefix(relPath, f.RelPath+"/") {
			return f.ConfigID, true
		}
	}
	return "", false
}

func (w *Watcher) ignored(relPath string) bool {
	for _, pattern := range w.ignorePatterns {
		matched, err := doublestar.Match(pattern, relPath)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

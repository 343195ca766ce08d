// Package watcher keeps track of the files under the project directory.
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gensite/internal/protocol"
)

const (
	debounceInterval = 500 * time.Millisecond
	DefaultTreeDepth = 3
)

// excludedDirs are directories excluded from file counting and tree generation.
var excludedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"vendor":       true,
}

// UpdateCallback is called when the file count of the project changes.
type UpdateCallback func(fileCount int)

// Watcher monitors the project directory for file changes.
type Watcher struct {
	root      string
	callback  UpdateCallback
	logger    *slog.Logger
	fsWatcher *fsnotify.Watcher

	mu        sync.RWMutex
	lastCount int
	started   bool

	cancel chan struct{}
	done   chan struct{}
}

// New creates a watcher for root. callback may be nil.
func New(root string, callback UpdateCallback, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:      root,
		callback:  callback,
		logger:    logger,
		lastCount: -1,
		cancel:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins watching. The initial count is taken synchronously.
func (w *Watcher) Start() error {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addDirsRecursive(fsW, w.root); err != nil {
		fsW.Close()
		return err
	}

	w.mu.Lock()
	w.fsWatcher = fsW
	w.started = true
	w.mu.Unlock()

	w.recount()
	go w.watchLoop()
	return nil
}

// Count returns the last observed number of files.
func (w *Watcher) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.lastCount < 0 {
		return 0
	}
	return w.lastCount
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	w.mu.Unlock()

	close(w.cancel)
	err := w.fsWatcher.Close()
	<-w.done
	return err
}

// watchLoop processes fsnotify events with debouncing.
func (w *Watcher) watchLoop() {
	defer close(w.done)
	var timer *time.Timer

	for {
		select {
		case <-w.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			// New directories are watched too.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					base := filepath.Base(event.Name)
					if !excludedDirs[base] && !isHidden(base) {
						if err := addDirsRecursive(w.fsWatcher, event.Name); err != nil {
							w.logger.Warn("failed to watch directory", "dir", event.Name, "err", err)
						}
					}
				}
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceInterval, w.recount)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "root", w.root, "err", err)
		}
	}
}

// recount recalculates the file count and notifies if it changed.
func (w *Watcher) recount() {
	count := CountFiles(w.root)

	w.mu.Lock()
	changed := count != w.lastCount
	w.lastCount = count
	w.mu.Unlock()

	if changed {
		w.logger.Debug("project files changed", "root", w.root, "files", count)
		if w.callback != nil {
			w.callback(count)
		}
	}
}

// CountFiles counts all non-excluded files in a directory.
func CountFiles(dir string) int {
	count := 0
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip inaccessible paths.
		}

		name := d.Name()
		if d.IsDir() {
			if path == dir {
				return nil
			}
			if excludedDirs[name] || isHidden(name) {
				return filepath.SkipDir
			}
			return nil
		}

		if isHidden(name) {
			return nil
		}
		count++
		return nil
	})
	return count
}

// BuildFileTree generates a FileNode tree for a directory up to maxDepth levels.
func BuildFileTree(dir string, maxDepth int) []protocol.FileNode {
	return buildTreeRecursive(dir, dir, 0, maxDepth)
}

func buildTreeRecursive(rootDir, currentDir string, depth, maxDepth int) []protocol.FileNode {
	if depth >= maxDepth {
		return nil
	}

	entries, err := os.ReadDir(currentDir)
	if err != nil {
		return nil
	}

	// Dirs first, then files.
	var dirs, files []os.DirEntry
	for _, entry := range entries {
		name := entry.Name()
		if excludedDirs[name] || isHidden(name) {
			continue
		}
		if entry.IsDir() {
			dirs = append(dirs, entry)
		} else {
			files = append(files, entry)
		}
	}

	nodes := make([]protocol.FileNode, 0, len(dirs)+len(files))

	for _, d := range dirs {
		fullPath := filepath.Join(currentDir, d.Name())
		relPath, _ := filepath.Rel(rootDir, fullPath)
		nodes = append(nodes, protocol.FileNode{
			Name:     d.Name(),
			Path:     filepath.ToSlash(relPath),
			IsDir:    true,
			Children: buildTreeRecursive(rootDir, fullPath, depth+1, maxDepth),
		})
	}

	for _, f := range files {
		fullPath := filepath.Join(currentDir, f.Name())
		relPath, _ := filepath.Rel(rootDir, fullPath)
		var size int64
		if info, err := f.Info(); err == nil {
			size = info.Size()
		}
		nodes = append(nodes, protocol.FileNode{
			Name: f.Name(),
			Path: filepath.ToSlash(relPath),
			Size: size,
		})
	}

	return nodes
}

// addDirsRecursive adds a directory and its subdirectories to an fsnotify watcher.
func addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		name := d.Name()
		if path != dir && (excludedDirs[name] || isHidden(name)) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}

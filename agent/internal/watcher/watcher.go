package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"folder-sync/agent/internal/logger"
)

// Event is one normalized filesystem change inside a watched folder.
type Event struct {
	FolderID  string
	Kind      string // create, modify, delete, rename
	Path      string
	OldPath   string
	IsDir     bool
	Size      int64
	Timestamp time.Time
}

const eventQueueSize = 128

// Watcher follows a set of folder roots recursively and emits Events
// tagged with the owning folder ID.
type Watcher struct {
	watcher *fsnotify.Watcher

	mu         sync.Mutex
	watchedDir map[string]struct{}
	roots      map[string]string // root dir -> folder ID

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New builds a watcher over folders, a map of folder ID to local root
// directory. Roots that do not exist are skipped with a log line.
func New(folders map[string]string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:    fsw,
		watchedDir: make(map[string]struct{}),
		roots:      make(map[string]string),
		stop:       make(chan struct{}),
	}

	for folderID, raw := range folders {
		abs, err := filepath.Abs(raw)
		if err != nil {
			logger.Errorf("Failed to resolve %s: %v", raw, err)
			continue
		}
		abs = filepath.Clean(abs)

		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			logger.Errorf("Invalid folder root %s: %v", abs, err)
			continue
		}

		if err := w.watchRecursive(abs); err != nil {
			logger.Errorf("Failed to watch %s: %v", abs, err)
			continue
		}

		logger.Infof("Watching folder %s at %s", folderID, abs)
		w.roots[abs] = folderID
	}

	if len(w.roots) == 0 {
		_ = fsw.Close()
		return nil, errors.New("watcher: no valid folder roots")
	}

	return w, nil
}

// Events starts the processing goroutine and returns the event channel.
// The channel closes when the watcher is closed.
func (w *Watcher) Events() <-chan Event {
	out := make(chan Event, eventQueueSize)

	w.wg.Add(1)
	go w.processEvents(out)

	go func() {
		w.wg.Wait()
		close(out)
	}()

	return out
}

func (w *Watcher) processEvents(out chan<- Event) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stop:
			return
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(evt, out)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Errorf("File watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(evt fsnotify.Event, out chan<- Event) {
	path := filepath.Clean(evt.Name)
	folderID, ok := w.folderFor(path)
	if !ok {
		return
	}
	now := time.Now()

	if evt.Op&fsnotify.Create != 0 {
		e := Event{FolderID: folderID, Kind: "create", Path: path, Timestamp: now}
		if info, err := os.Stat(path); err == nil {
			e.IsDir = info.IsDir()
			if !e.IsDir {
				e.Size = info.Size()
			}
		}
		emit(out, e)
		if e.IsDir {
			if err := w.watchRecursive(path); err != nil {
				logger.Warnf("Failed to watch new directory %s: %v", path, err)
			}
		}
	}

	if evt.Op&fsnotify.Write != 0 {
		e := Event{FolderID: folderID, Kind: "modify", Path: path, Timestamp: now}
		if info, err := os.Stat(path); err == nil {
			e.Size = info.Size()
		}
		emit(out, e)
	}

	if evt.Op&fsnotify.Remove != 0 {
		emit(out, Event{FolderID: folderID, Kind: "delete", Path: path, Timestamp: now})
		w.removeWatch(path)
	}

	if evt.Op&fsnotify.Rename != 0 {
		emit(out, Event{FolderID: folderID, Kind: "rename", Path: path, OldPath: path, Timestamp: now})
		w.removeWatch(path)
	}
}

// folderFor maps an absolute path to the folder root that contains it.
func (w *Watcher) folderFor(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for root, id := range w.roots {
		if path == root {
			return id, true
		}
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return id, true
		}
	}
	return "", false
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			logger.Warnf("Failed to access %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.addWatch(path)
	})
}

func (w *Watcher) addWatch(dir string) error {
	w.mu.Lock()
	if _, exists := w.watchedDir[dir]; exists {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	w.mu.Lock()
	w.watchedDir[dir] = struct{}{}
	w.mu.Unlock()
	return nil
}

func (w *Watcher) removeWatch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watchedDir[path]; ok {
		if err := w.watcher.Remove(path); err != nil {
			logger.Warnf("Failed to remove watcher for %s: %v", path, err)
		}
		delete(w.watchedDir, path)
	}
}

func (w *Watcher) Close() error {
	var closeErr error
	w.once.Do(func() {
		close(w.stop)
		if err := w.watcher.Close(); err != nil {
			closeErr = err
		}
	})
	w.wg.Wait()
	return closeErr
}

func emit(out chan<- Event, evt Event) {
	select {
	case out <- evt:
	default:
		logger.Errorf("File watcher backpressure, dropping event %+v", evt)
	}
}

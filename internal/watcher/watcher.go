// Package watcher keeps a table in sync with its vault by re-indexing notes as they change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/indexer"
)

// maxDelay bounds, in quiet periods, how long a steady stream of events can postpone a flush.
const maxDelay = 10

// Watcher re-indexes the notes of one vault into one table as they change on disk.
type Watcher struct {
	root    string
	table   string
	idx     *indexer.Indexer
	exts    map[string]bool
	maxSize int64
	quiet   time.Duration
	onEvent func(event, relPath string)

	// dirs holds the watched directories. Only the event loop touches it.
	dirs map[string]bool

	mu      sync.Mutex
	pending map[string]struct{}
	oldest  time.Time
	timer   *time.Timer
	due     chan struct{}

	flushMu sync.Mutex
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime sets how long the vault must be quiet before queued changes are applied.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) { w.quiet = d }
}

// WithEventCallback is called with "index" or "delete" and the slash separated path of every
// applied change.
func WithEventCallback(fn func(event, relPath string)) Option {
	return func(w *Watcher) { w.onEvent = fn }
}

// New creates a watcher for the vault at root. Changes go through idx, which should be the
// indexer used for full runs so manifest writes are serialized.
func New(root, table string, idx *indexer.Indexer, cfg *config.Config, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault path: %w", err)
	}

	w := &Watcher{
		root:    abs,
		table:   table,
		idx:     idx,
		exts:    make(map[string]bool, len(cfg.Indexing.Extensions)),
		maxSize: int64(cfg.Indexing.MaxFileSize),
		quiet:   500 * time.Millisecond,
		onEvent: func(string, string) {},
		dirs:    make(map[string]bool),
		pending: make(map[string]struct{}),
		due:     make(chan struct{}, 1),
	}
	for _, ext := range cfg.Indexing.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.exts[strings.ToLower(ext)] = true
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches the vault until ctx is cancelled. Queued changes are applied once the vault has
// been quiet for the debounce time.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	w.watchTree(fw, w.root, false)
	log.Info("Watching for file changes", "root", w.root, "table", w.table)

	ctx, cancel := context.WithCancel(ctx)
	applied := make(chan struct{})
	go func() {
		defer close(applied)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.due:
				w.flush(ctx)
			}
		}
	}()
	defer func() {
		cancel()
		<-applied
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

// watchTree adds dir and every directory below it. A directory that appears while watching may
// already hold notes, so queueNotes queues the ones it finds.
func (w *Watcher) watchTree(fw *fsnotify.Watcher, dir string, queueNotes bool) {
	filepath.WalkDir(dir, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if queueNotes && !strings.HasPrefix(d.Name(), ".") && w.wanted(path) {
				w.queue(path)
			}
			return nil
		}
		if path != w.root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			log.Debug("Failed to watch directory", "path", path, "error", err)
			return nil
		}
		w.dirs[path] = true
		return nil
	})
}

func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "node_modules", "attachments", "_resources":
		return true
	}
	return false
}

func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") || ev.Op == fsnotify.Chmod {
		return
	}

	info, err := os.Stat(ev.Name)
	if err == nil && info.IsDir() {
		if ev.Has(fsnotify.Create) && !skipDir(name) {
			log.Debug("Watching new directory", "path", ev.Name)
			w.watchTree(fw, ev.Name, true)
		}
		return
	}

	// a watched directory that was removed or moved away takes its notes with it
	if errors.Is(err, iofs.ErrNotExist) && w.dirs[ev.Name] {
		w.forgetTree(fw, ev.Name)
		w.queue(ev.Name)
		return
	}

	if w.wanted(ev.Name) {
		w.queue(ev.Name)
	}
}

// forgetTree drops dir and the directories below it from the watch list.
func (w *Watcher) forgetTree(fw *fsnotify.Watcher, dir string) {
	prefix := dir + string(filepath.Separator)
	for path := range w.dirs {
		if path != dir && !strings.HasPrefix(path, prefix) {
			continue
		}
		delete(w.dirs, path)
		// the watch may already be gone with the directory
		_ = fw.Remove(path)
	}
	log.Debug("Directory left the vault", "path", dir)
}

// wanted checks the extension and, for files that still exist, the size cap. A file that is
// gone only needs the extension check since its rows must be removed.
func (w *Watcher) wanted(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" || (len(w.exts) > 0 && !w.exts[ext]) {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return errors.Is(err, iofs.ErrNotExist)
	}
	return w.maxSize <= 0 || info.Size() <= w.maxSize
}

// queue records path and restarts the quiet period, unless the oldest queued change has
// already waited maxDelay periods.
func (w *Watcher) queue(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if len(w.pending) == 0 {
		w.oldest = now
	}
	w.pending[path] = struct{}{}

	switch {
	case w.timer == nil:
		w.timer = time.AfterFunc(w.quiet, w.signal)
	case now.Sub(w.oldest) < maxDelay*w.quiet:
		w.timer.Reset(w.quiet)
	}
}

func (w *Watcher) signal() {
	select {
	case w.due <- struct{}{}:
	default:
	}
}

// flush applies every queued change in path order. Whether a path is re-indexed or deleted
// depends on whether it exists now, so an editor's write-rename-replace sequence ends up as a
// single re-index.
func (w *Watcher) flush(ctx context.Context) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	paths := slices.Sorted(maps.Keys(w.pending))
	clear(w.pending)
	w.mu.Unlock()

	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		w.apply(ctx, path)
	}
}

func (w *Watcher) apply(ctx context.Context, path string) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	event := "index"
	if _, statErr := os.Stat(path); errors.Is(statErr, iofs.ErrNotExist) {
		event = "delete"
		err = w.idx.DeleteFile(ctx, w.table, w.root, path)
	} else {
		err = w.idx.IndexSingleFile(ctx, w.table, w.root, path)
	}
	if err != nil {
		log.Error("Failed to apply change", "event", event, "file", rel, "error", err)
		return
	}

	log.Info("Applied change", "event", event, "file", rel)
	w.onEvent(event, rel)
}

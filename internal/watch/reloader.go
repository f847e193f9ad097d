package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VladMinzatu/linkmap-symbolizer/internal/linkmap"
	"github.com/VladMinzatu/linkmap-symbolizer/internal/symbolizer"
	"github.com/fsnotify/fsnotify"
)

// Reloader keeps a Symbolizer in sync with a map file on disk. Every reload
// builds a new model; symbolizers handed out earlier stay valid.
type Reloader struct {
	path   string
	loader linkmap.Loader
	settle time.Duration

	current atomic.Pointer[symbolizer.Symbolizer]
	updates chan *symbolizer.Symbolizer
	watcher *fsnotify.Watcher

	pubMu  sync.Mutex
	closed bool

	started bool
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewReloader watches path and loads it through loader. Bursts of file events
// closer together than settle cause a single reload.
func NewReloader(path string, loader linkmap.Loader, settle time.Duration) (*Reloader, error) {
	if settle <= 0 {
		return nil, errors.New("invalid settle duration; must be > 0")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reloader{
		path:    filepath.Clean(path),
		loader:  loader,
		settle:  settle,
		updates: make(chan *symbolizer.Symbolizer, 1),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (r *Reloader) Updates() <-chan *symbolizer.Symbolizer { return r.updates }

// Current returns the most recently loaded symbolizer, nil before Start.
func (r *Reloader) Current() *symbolizer.Symbolizer {
	return r.current.Load()
}

// Start loads the map once and then watches it. An error from the first load
// is returned, later failures are only logged.
func (r *Reloader) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("reloader already started")
	}
	if r.ctx.Err() != nil {
		return errors.New("reloader stopped")
	}

	s, err := r.load()
	if err != nil {
		return err
	}
	r.current.Store(s)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	// the linker replaces the file, so watch the directory rather than the inode
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", r.path, err)
	}
	r.watcher = w
	r.started = true

	r.wg.Add(1)
	go r.watch()
	return nil
}

func (r *Reloader) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel()
	if !r.started {
		return nil
	}
	err := r.watcher.Close()

	// Wait for watcher loop to exit
	r.wg.Wait()

	r.pubMu.Lock()
	r.closed = true
	close(r.updates)
	r.pubMu.Unlock()

	r.started = false
	return err
}

// Reload parses the map file now and publishes the result on Updates.
func (r *Reloader) Reload() error {
	s, err := r.load()
	if err != nil {
		return err
	}

	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	if r.closed {
		return errors.New("reloader stopped")
	}
	r.current.Store(s)
	select {
	case r.updates <- s:
	default:
		slog.Warn("consumer wasn't ready, update notification dropped")
	}
	return nil
}

func (r *Reloader) load() (*symbolizer.Symbolizer, error) {
	m, err := linkmap.Load(r.loader)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", r.path, err)
	}
	return symbolizer.New(m), nil
}

func (r *Reloader) watch() {
	defer r.wg.Done()

	timer := time.NewTimer(r.settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != r.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			slog.Debug("Map file changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(r.settle)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("File watcher error", "error", err)
		case <-timer.C:
			if err := r.Reload(); err != nil {
				slog.Warn("Failed to reload map file, keeping previous version", "error", err)
				continue
			}
			slog.Info("Reloaded map file", "path", r.path)
		}
	}
}

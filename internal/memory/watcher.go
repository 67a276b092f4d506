package memory

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	. "github.com/roelfdiedericks/llamar/internal/logging"
)

// debounceDelay is how long to wait after a file change before
// re-indexing, so bursts of writes collapse into one pass.
const debounceDelay = 500 * time.Millisecond

// Watcher re-indexes markdown files as they change on disk.
type Watcher struct {
	index  *Index
	source string

	watcher *fsnotify.Watcher
	stop    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewWatcher creates a watcher feeding the given index. Indexed rows are
// tagged with source.
func NewWatcher(index *Index, source string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		index:   index,
		source:  source,
		watcher: fsw,
		stop:    make(chan struct{}),
		pending: make(map[string]struct{}),
	}, nil
}

// Add watches a file or directory. Directories are watched one level
// deep, which covers the flat workspace memory layout.
func (w *Watcher) Add(path string) error {
	if err := w.watcher.Add(path); err != nil {
		return err
	}
	L_debug("memory: watching", "path", path)
	return nil
}

// Start begins the watch loop.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop shuts the watcher down and waits for the loop to exit.
func (w *Watcher) Stop() {
	close(w.stop)
	w.watcher.Close()
	w.wg.Wait()
	L_debug("memory: watcher stopped")
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(strings.ToLower(event.Name), ".md") {
				continue
			}
			L_trace("memory: file event", "path", event.Name, "op", event.Op.String())
			w.mu.Lock()
			w.pending[event.Name] = struct{}{}
			w.mu.Unlock()
			timer.Reset(debounceDelay)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			L_warn("memory: watcher error", "error", err)

		case <-timer.C:
			w.flush()
		}
	}
}

// flush indexes every pending path; paths that vanished are removed
// from the index instead.
func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if err := w.index.RemoveFile(p); err != nil {
				L_warn("memory: failed to remove vanished file", "path", p, "error", err)
			}
			continue
		}
		if _, err := w.index.IndexFile(p, w.source); err != nil {
			L_warn("memory: failed to re-index file", "path", p, "error", err)
		}
	}
}

package filter

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/fanyeren/sysdig/errs"
)

// Watcher recompiles a filter expression file whenever it changes,
// swapping the active Predicate atomically. Grounded on the teacher's
// sigma/sigma.go rule-directory fsnotify watcher, narrowed from a
// directory of YAML rules to a single expression file.
type Watcher struct {
	path string
	fsw  *fsnotify.Watcher

	current atomic.Pointer[compiled]

	mu       sync.Mutex
	lastErr  error
	stopOnce sync.Once
	done     chan struct{}
}

// WatchFile compiles path's current contents and starts watching it
// for changes. The returned Watcher's Current method always reflects
// the last successfully compiled expression; a write that fails to
// compile leaves the previous predicate active and records the
// failure in LastError.
func WatchFile(path string) (*Watcher, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.SourceOpen, "read filter file %s: %v", path, err)
	}
	pred, err := Compile(string(body))
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Wrap(errs.SourceOpen, "start filter watcher: %v", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, errs.Wrap(errs.SourceOpen, "watch filter file %s: %v", path, err)
	}

	w := &Watcher{path: path, fsw: fsw, done: make(chan struct{})}
	w.current.Store(pred.(*compiled))
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	body, err := os.ReadFile(w.path)
	if err != nil {
		w.mu.Lock()
		w.lastErr = err
		w.mu.Unlock()
		return
	}
	pred, err := Compile(string(body))
	if err != nil {
		w.mu.Lock()
		w.lastErr = err
		w.mu.Unlock()
		return
	}
	w.current.Store(pred.(*compiled))
	w.mu.Lock()
	w.lastErr = nil
	w.mu.Unlock()
}

// Current returns the most recently compiled predicate.
func (w *Watcher) Current() Predicate { return w.current.Load() }

// LastError returns the most recent reload failure, if any.
func (w *Watcher) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Close stops the watcher goroutine and releases the fsnotify handle.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() { close(w.done) })
	return w.fsw.Close()
}

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher reports writes to a fixed set of files. It watches their parent
// directories so editors that replace files by rename are still seen, and
// debounces bursts into one callback per path.
type FileWatcher struct {
	paths    map[string]struct{}
	debounce time.Duration
	onChange func(string) // called with path that changed

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFileWatcher creates a watcher for paths. A debounce of zero reports every event.
func NewFileWatcher(paths []string, debounce time.Duration, onChange func(string)) (*FileWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &FileWatcher{
		paths:    make(map[string]struct{}, len(paths)),
		debounce: debounce,
		onChange: onChange,
		watcher:  fw,
		done:     make(chan struct{}),
	}
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.paths[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Start processes events until ctx is done or Stop is called.
func (w *FileWatcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
}

// Stop terminates the watcher and waits for the event loop to exit.
func (w *FileWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
	w.wg.Wait()
}

func (w *FileWatcher) loop(ctx context.Context) {
	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time

	flush := func() {
		for p := range pending {
			if w.onChange != nil {
				w.onChange(p)
			}
		}
		clear(pending)
		fire = nil
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			path := filepath.Clean(ev.Name)
			if _, watched := w.paths[path]; !watched {
				continue
			}
			pending[path] = struct{}{}
			if w.debounce <= 0 {
				flush()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			flush()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

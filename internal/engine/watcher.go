package engine

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/standardbeagle/refract/internal/config"
)

// watcher invalidates the engine snapshot when source files change on
// disk. Events are debounced so editor save bursts trigger one reload.
type watcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

func newWatcher(cfg *config.Config, invalidate func(), log *zap.Logger) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch every directory under the root; fsnotify is not recursive.
	err = filepath.WalkDir(cfg.Project.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != cfg.Project.Root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}

	w := &watcher{fsw: fsw, done: make(chan struct{})}
	debounce := time.Duration(cfg.Performance.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	go func() {
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
					fire = timer.C
				} else {
					timer.Reset(debounce)
				}
			case <-fire:
				timer = nil
				fire = nil
				log.Debug("source change detected, snapshot invalidated")
				invalidate()
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.Warn("watcher error", zap.Error(err))
			case <-w.done:
				return
			}
		}
	}()
	return w, nil
}

func (w *watcher) stop() {
	close(w.done)
	w.fsw.Close()
}

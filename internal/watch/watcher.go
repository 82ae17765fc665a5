package watch

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const defaultFollowInterval = time.Second

// DirFunc returns the directory that should currently be watched, or "" when
// there is nothing to watch.
type DirFunc func() string

// Watcher triggers a callback once a burst of file changes in the active
// folder has settled for the debounce window.
type Watcher struct {
	dir      DirFunc
	debounce time.Duration
	follow   time.Duration
	trigger  func(ctx context.Context) error

	fs      *fsnotify.Watcher
	current string
}

func New(dir DirFunc, debounce time.Duration, trigger func(ctx context.Context) error) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		follow:   defaultFollowInterval,
		trigger:  trigger,
		fs:       fs,
	}, nil
}

// Run blocks until ctx is cancelled. The watched directory follows DirFunc,
// so a folder switch moves the watch without a restart.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	logger := logutil.GetLogger(ctx)

	ticker := time.NewTicker(w.follow)
	defer ticker.Stop()
	w.sync(ctx)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sync(ctx)
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			if err := w.trigger(ctx); err != nil {
				logger.Error("change triggered resync failed", zap.String("dir", w.current), zap.Error(err))
			}
		}
	}
}

func (w *Watcher) sync(ctx context.Context) {
	want := w.dir()
	if want == w.current {
		return
	}
	logger := logutil.GetLogger(ctx)
	if w.current != "" {
		_ = w.fs.Remove(w.current)
	}
	w.current = ""
	if want == "" {
		return
	}
	if err := w.fs.Add(want); err != nil {
		logger.Warn("watch folder failed", zap.String("dir", want), zap.Error(err))
		return
	}
	w.current = want
	logger.Info("watching folder", zap.String("dir", want))
}

func relevant(ev fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

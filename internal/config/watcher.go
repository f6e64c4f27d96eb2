package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/xnumon-go/procmon/internal/log"
	"github.com/xnumon-go/procmon/internal/procmon"
)

// suppressionSetter is the slice of *procmon.Monitor a Watcher needs;
// kept as an interface so tests can swap in a fake without constructing
// a full Monitor.
type suppressionSetter interface {
	SetSuppressions(procmon.Suppressions)
}

// Watcher reloads path on every filesystem write/rename/create event and
// hot-swaps only the four suppression deny-lists into the running
// Monitor (SPEC_FULL.md §7). Ancestors and KextLevel are read once at
// startup and require a restart, since they'd otherwise require
// re-sizing the already-populated hash/codesign caches.
type Watcher struct {
	path    string
	monitor suppressionSetter
	logger  *log.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher starts watching path's containing directory (the same
// directory-not-file pattern filewatch.Manager uses, since editors
// commonly replace a file via rename rather than in-place write) and
// applies any change to m's suppression sets.
func NewWatcher(path string, m suppressionSetter, logger *log.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{
		path:    path,
		monitor: m,
		logger:  logger,
		watcher: fw,
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			fc, err := Load(w.path)
			if err != nil {
				w.logger.Warnf("config reload %s: %v", w.path, err)
				continue
			}
			w.monitor.SetSuppressions(fc.suppressions())
			w.logger.Infof("reloaded suppression lists from %s", w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("config watcher: %v", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher goroutine and releases the underlying fsnotify
// handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

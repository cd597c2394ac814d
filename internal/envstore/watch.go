package envstore

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

const watchDebounce = 100 * time.Millisecond

// Watch enables hot-reload when the environments file changes on disk.
// Safe to call more than once; only the first call starts the watcher.
func (s *Store) Watch() {
	s.watchOnce.Do(func() {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			log.WithError(err).Warn("environment store: failed to start file watcher")
			return
		}
		// Watch the file itself plus the directory to catch atomic
		// writes (rename operations).
		if err := watcher.Add(s.path); err != nil {
			log.WithError(err).WithField("path", s.path).Debug("environment store: file not watchable yet")
		}
		dir := filepath.Dir(s.path)
		if err := watcher.Add(dir); err != nil {
			log.WithError(err).WithField("dir", dir).Warn("environment store: failed to watch directory")
			_ = watcher.Close()
			return
		}
		log.WithField("path", s.path).Info("environment store: watching for changes")
		go s.watchLoop(watcher)
	})
}

func (s *Store) watchLoop(watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				if err := s.load(); err != nil {
					log.WithError(err).Warn("environment store: reload failed")
					return
				}
				s.notify()
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("environment store: watcher error")
		case <-s.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

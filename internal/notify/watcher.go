package notify

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/fentz26/tripassist/internal/logging"
	"github.com/fentz26/tripassist/internal/models"
	"github.com/fentz26/tripassist/internal/sessionstore"
)

// SessionReader is the read side of a session store.
type SessionReader interface {
	Read(ctx context.Context, id string) (models.Session, error)
}

// DirWatcher watches a file store directory and delivers terminal sessions written
// by other processes to the local hub.
type DirWatcher struct {
	watcher *fsnotify.Watcher
	hub     *Hub
	store   SessionReader
	logger  *logrus.Entry
}

// NewDirWatcher starts watching dir.
func NewDirWatcher(dir string, hub *Hub, store SessionReader) (*DirWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &DirWatcher{
		watcher: watcher,
		hub:     hub,
		store:   store,
		logger:  logging.NewLogger("notify"),
	}, nil
}

// Run processes file events until ctx is cancelled, then closes the watcher.
func (w *DirWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			id := sessionstore.IDFromPath(event.Name)
			if id == "" || w.hub.Listeners(id) == 0 {
				continue
			}
			w.check(ctx, id)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Session directory watcher error")
		}
	}
}

func (w *DirWatcher) check(ctx context.Context, id string) {
	sess, err := w.store.Read(ctx, id)
	if err != nil {
		w.logger.WithError(err).WithField("session_id", id).Warn("Failed to read changed session")
		return
	}
	if !sess.Status.Terminal() {
		return
	}
	n := w.hub.Deliver(id, sess.Result())
	w.logger.WithFields(logrus.Fields{"session_id": id, "listeners": n}).Debug("Delivered result written by another process")
}

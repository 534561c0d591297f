package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"nufang/pkg/models"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// settleDelay lets an editor finish writing before the file is re-read
const settleDelay = 300 * time.Millisecond

// AlbumSink receives reloaded albums
type AlbumSink interface {
	SetAlbums(albums []models.Album)
}

// Watcher reloads a local catalog file whenever it changes
type Watcher struct {
	loader  *Loader
	path    string
	sink    AlbumSink
	logger  *logrus.Logger
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

// NewWatcher creates a watcher for the catalog at path. The parent directory
// is watched so that atomic replaces by editors are seen.
func NewWatcher(loader *Loader, path string, sink AlbumSink) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		loader:  loader,
		path:    abs,
		sink:    sink,
		logger:  loader.logger,
		watcher: fw,
		done:    make(chan struct{}),
	}, nil
}

// Run dispatches file events until ctx is cancelled or the watcher closes
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)
	defer w.watcher.Close()

	w.logger.WithField("catalog", w.path).Info("Catalog watcher started")
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFileEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("Catalog watcher error")
		}
	}
}

// Done is closed once Run has returned
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) handleFileEvent(ctx context.Context, event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(settleDelay, func() { w.reload(ctx) })
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// reload keeps the previous albums when the new document is unreadable
func (w *Watcher) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	albums, err := w.loader.Fetch(ctx, w.path)
	if err != nil {
		w.logger.WithError(err).WithField("catalog", w.path).Warn("Catalog changed but could not be read, keeping current albums")
		return
	}
	w.sink.SetAlbums(albums)
	w.logger.WithFields(logrus.Fields{
		"catalog": w.path,
		"albums":  len(albums),
	}).Info("Catalog reloaded")
}

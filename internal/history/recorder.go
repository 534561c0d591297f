// Package history follows the player and persists what it plays.
package history

import (
	"context"
	"time"

	"nufang/internal/database"
	"nufang/internal/player"
	"nufang/internal/playlist"
	"nufang/pkg/models"

	"github.com/sirupsen/logrus"
)

// Store persists plays and the queue
type Store interface {
	RecordPlay(track models.Track, at time.Time) (int64, error)
	SaveQueue(state database.QueueState) error
}

// Source is the player being followed
type Source interface {
	Subscribe() <-chan player.Snapshot
	Unsubscribe(ch <-chan player.Snapshot)
	Snapshot() player.Snapshot
	Playlist() ([]models.Track, int)
}

// queueKey identifies the parts of a snapshot the saved queue depends on
type queueKey struct {
	length int
	index  int
	mode   playlist.Mode
	volume float64
	first  string
}

// Recorder records a play each time the player confirms a track start and
// saves the queue whenever it changes.
type Recorder struct {
	source Source
	store  Store
	logger *logrus.Logger
	now    func() time.Time

	lastStarts uint64
	lastQueue  queueKey
}

// NewRecorder creates a recorder following source
func NewRecorder(source Source, store Store, logger *logrus.Logger) *Recorder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Recorder{
		source: source,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Run consumes snapshots until ctx is cancelled. A subscription dropped for
// falling behind is renewed.
func (r *Recorder) Run(ctx context.Context) error {
	initial := r.source.Snapshot()
	r.lastStarts = initial.Starts
	r.lastQueue = r.keyOf(initial)

	for {
		ch := r.source.Subscribe()
		if err := r.consume(ctx, ch); err != nil {
			r.source.Unsubscribe(ch)
			return err
		}
		r.logger.Warn("History subscription dropped, resubscribing")
		r.observe(r.source.Snapshot())
	}
}

func (r *Recorder) consume(ctx context.Context, ch <-chan player.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			r.observe(snap)
		}
	}
}

func (r *Recorder) observe(snap player.Snapshot) {
	if snap.Starts > r.lastStarts {
		r.lastStarts = snap.Starts
		if snap.Track != nil {
			if _, err := r.store.RecordPlay(*snap.Track, r.now()); err != nil {
				r.logger.WithError(err).WithField("track_id", snap.Track.ID).Error("Failed to record play")
			}
		}
	}

	if key := r.keyOf(snap); key != r.lastQueue {
		r.lastQueue = key
		r.SaveQueue()
	}
}

// SaveQueue writes the player's current queue to the store
func (r *Recorder) SaveQueue() {
	snap := r.source.Snapshot()
	tracks, index := r.source.Playlist()
	state := database.QueueState{
		Tracks:       tracks,
		CurrentIndex: index,
		Mode:         string(snap.Mode),
		Volume:       snap.Volume,
		UpdatedAt:    r.now(),
	}
	if err := r.store.SaveQueue(state); err != nil {
		r.logger.WithError(err).Error("Failed to save queue")
	}
}

func (r *Recorder) keyOf(snap player.Snapshot) queueKey {
	key := queueKey{
		length: snap.PlaylistLength,
		index:  snap.Index,
		mode:   snap.Mode,
		volume: snap.Volume,
	}
	if snap.PlaylistLength > 0 {
		if tracks, _ := r.source.Playlist(); len(tracks) > 0 {
			key.first = tracks[0].ID
		}
	}
	return key
}

package player

import (
	"context"
	"math"
	"sync"
	"time"

	"nufang/internal/playlist"
	"nufang/pkg/models"

	"github.com/sirupsen/logrus"
)

// DefaultVolume is the output level a new controller starts with
const DefaultVolume = 0.7

// Controller is the single point of control for an audio Output. It keeps the
// playlist, play mode, shuffle order and playback position in sync with the
// hardware, and is safe for concurrent use.
type Controller struct {
	mu     sync.Mutex
	loadMu sync.Mutex // serialises Load/Play sequences on out

	out      Output
	resolver Resolver
	logger   *logrus.Logger

	store   *playlist.Store
	shuffle playlist.Shuffle
	mode    playlist.Mode

	current  *models.Track
	status   Status
	elapsed  float64
	duration float64
	volume   float64
	lastErr  string

	playerVisible   bool
	playlistVisible bool

	albums       []models.Album
	currentAlbum *models.Album

	// generation is bumped by every command that supersedes a pending play
	// confirmation; a confirmation carrying an older value is discarded.
	generation uint64

	// starts counts confirmed track starts, replays included
	starts uint64

	// loaded is the locator the output currently holds, empty when unknown
	loaded string

	listeners []chan Snapshot
	updatedAt time.Time
}

// NewController creates a controller driving out
func NewController(out Output, resolver Resolver, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	out.SetVolume(DefaultVolume)

	return &Controller{
		out:       out,
		resolver:  resolver,
		logger:    logger,
		store:     playlist.NewStore(),
		mode:      playlist.Sequential,
		status:    StatusEmpty,
		volume:    DefaultVolume,
		updatedAt: time.Now(),
	}
}

// Snapshot returns the current player state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Playlist returns a copy of the playlist and the current index
func (c *Controller) Playlist() ([]models.Track, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Tracks(), c.store.Current()
}

// Mode returns the active play mode
func (c *Controller) Mode() playlist.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// ShuffleOrder returns the identifiers of the current shuffle order, empty
// outside random mode.
func (c *Controller) ShuffleOrder() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shuffle.Order()
}

// Play starts track. When album is given the playlist is replaced with the
// album's songs (cover-enriched) and track is located within it; otherwise
// track is looked up in the existing playlist, index -1 if absent.
func (c *Controller) Play(ctx context.Context, track models.Track, album *models.Album) {
	c.mu.Lock()
	if album != nil {
		enriched := album.Enriched()
		c.currentAlbum = &enriched
		c.store.ReplaceWith(enriched.Songs)
		track = track.WithCover(enriched.CoverImage)
	} else if c.currentAlbum != nil {
		track = track.WithCover(c.currentAlbum.CoverImage)
	}
	index := c.store.IndexOf(track.ID)

	if c.mode == playlist.Random {
		c.shuffle.Generate(c.store.Tracks(), track.ID)
	} else {
		c.shuffle.Reset()
	}
	c.playerVisible = true
	c.mu.Unlock()

	c.playTrack(ctx, track, index)
}

// PlayAt plays the playlist entry at index. Out-of-range indices are ignored.
func (c *Controller) PlayAt(ctx context.Context, index int) bool {
	c.mu.Lock()
	track, ok := c.store.At(index)
	if ok && c.mode == playlist.Random {
		c.shuffle.Generate(c.store.Tracks(), track.ID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	c.playTrack(ctx, track, index)
	return true
}

// playTrack loads track into the output and starts it. Failures are logged
// and leave the player not playing.
func (c *Controller) playTrack(ctx context.Context, track models.Track, index int) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.current = &track
	c.store.SetCurrent(index)
	c.elapsed = 0
	c.duration = track.Duration
	c.status = StatusLoading
	c.lastErr = ""
	locator := c.resolver.Resolve(track.FilePath)
	c.notifyLocked()
	c.mu.Unlock()

	c.loadMu.Lock()
	var err error
	if c.isCurrent(gen) {
		err = c.out.Load(ctx, locator)
		c.setLoaded(locator, err)
		if err == nil && c.isCurrent(gen) {
			err = c.out.Play(ctx)
		}
	}
	c.loadMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.logger.WithFields(logrus.Fields{
			"track_id": track.ID,
			"title":    track.Title,
		}).Debug("Discarding stale play confirmation")
		c.reconcileLocked()
		return
	}

	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"track_id": track.ID,
			"title":    track.Title,
			"locator":  locator,
		}).Error("Playback failed")
		c.status = StatusStopped
		c.lastErr = err.Error()
		c.notifyLocked()
		return
	}

	c.status = StatusPlaying
	c.starts++
	c.logger.WithFields(logrus.Fields{
		"track_id": track.ID,
		"title":    track.Title,
		"album":    track.Album,
		"index":    index,
	}).Info("Now playing")
	c.notifyLocked()
}

// reconcileLocked silences the output when a stale play confirmation lands
// after the player was paused or stopped (must be called with lock held).
func (c *Controller) reconcileLocked() {
	switch c.status {
	case StatusPaused, StatusStopped, StatusEmpty:
		c.out.Pause()
	}
}

// setLoaded records what the output holds after a Load (called with loadMu held)
func (c *Controller) setLoaded(locator string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		locator = ""
	}
	c.loaded = locator
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation
}

// Pause halts output without touching the playlist or current track
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.out.Pause()
	if c.status == StatusPlaying || c.status == StatusLoading {
		c.status = StatusPaused
	}
	c.notifyLocked()
}

// Resume restarts output for the current track. The platform may refuse, in
// which case the player stays not playing. A current track the output never
// loaded is started from the beginning.
func (c *Controller) Resume(ctx context.Context) {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return
	}
	if c.resolver.Resolve(c.current.FilePath) != c.loaded {
		track, index := *c.current, c.store.Current()
		c.mu.Unlock()
		c.playTrack(ctx, track, index)
		return
	}
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.loadMu.Lock()
	err := c.out.Play(ctx)
	c.loadMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.reconcileLocked()
		return
	}
	if err != nil {
		c.logger.WithError(err).Warn("Resume rejected")
		if c.status == StatusPlaying || c.status == StatusLoading {
			c.status = StatusPaused
		}
		c.lastErr = err.Error()
		c.notifyLocked()
		return
	}
	c.status = StatusPlaying
	c.lastErr = ""
	c.notifyLocked()
}

// Stop pauses and rewinds to 0 while keeping the current track and index
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.notifyLocked()
}

func (c *Controller) stopLocked() {
	c.generation++
	c.out.Pause()
	c.out.Seek(0)
	c.elapsed = 0
	if c.current != nil {
		c.status = StatusStopped
	} else {
		c.status = StatusEmpty
	}
}

// Seek moves playback to seconds. The value is handed to the output as is;
// the recorded position is kept within the known duration.
func (c *Controller) Seek(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.out.Seek(seconds)
	c.elapsed = c.clampLocked(seconds)
	c.notifyLocked()
}

// SetVolume passes level through to the output without validation
func (c *Controller) SetVolume(level float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.volume = level
	c.out.SetVolume(level)
	c.notifyLocked()
}

// Next advances according to the play mode. When there is nothing to advance
// to, playback stops.
func (c *Controller) Next(ctx context.Context) bool {
	c.mu.Lock()
	target, ok := c.nextTargetLocked()
	if !ok {
		c.stopLocked()
		c.notifyLocked()
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	c.playTrack(ctx, target.Track, target.Index)
	return true
}

// nextTargetLocked picks what follows the current track. Outside sequential
// mode a current track missing from the playlist starts over from the top.
func (c *Controller) nextTargetLocked() (playlist.Target, bool) {
	target, ok := playlist.Next(c.store, c.current, c.mode, &c.shuffle)
	if !ok && c.mode != playlist.Sequential && c.store.Len() > 0 {
		track, _ := c.store.At(0)
		target, ok = playlist.Target{Track: track, Index: 0}, true
	}
	return target, ok
}

// Previous steps back according to the play mode; no-op when there is nothing before.
func (c *Controller) Previous(ctx context.Context) bool {
	c.mu.Lock()
	target, ok := playlist.Previous(c.store, c.current, c.mode, &c.shuffle)
	c.mu.Unlock()

	if !ok {
		return false
	}
	c.playTrack(ctx, target.Track, target.Index)
	return true
}

// SetMode switches the play mode without interrupting playback. Entering
// random mode regenerates the shuffle order; leaving it drops the order.
func (c *Controller) SetMode(mode playlist.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mode = mode
	if mode == playlist.Random && c.store.Len() > 0 {
		c.shuffle.Generate(c.store.Tracks(), c.currentIDLocked())
	} else {
		c.shuffle.Reset()
	}
	c.logger.WithField("mode", mode).Debug("Play mode changed")
	c.notifyLocked()
}

// Reshuffle regenerates the shuffle order on request; ignored outside random mode.
func (c *Controller) Reshuffle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != playlist.Random {
		return
	}
	c.shuffle.Generate(c.store.Tracks(), c.currentIDLocked())
}

// Append queues track at the end of the playlist unless already present
func (c *Controller) Append(track models.Track) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentAlbum != nil {
		track = track.WithCover(c.currentAlbum.CoverImage)
	}
	if !c.store.Append(track) {
		return false
	}
	c.playlistChangedLocked()
	return true
}

// AppendAlbum queues every song of album that is not already in the playlist
func (c *Controller) AppendAlbum(album models.Album) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := c.store.AppendAlbum(album)
	if added > 0 {
		c.playlistChangedLocked()
	}
	return added
}

// Remove drops the track with id from the playlist. Removing the active
// track stops playback.
func (c *Controller) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	removedCurrent, ok := c.store.Remove(id)
	if !ok {
		return false
	}
	if removedCurrent {
		c.stopLocked()
	}
	c.playlistChangedLocked()
	return true
}

// Clear empties the playlist and stops playback
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Clear()
	c.stopLocked()
	c.playlistChangedLocked()
}

// playlistChangedLocked regenerates the shuffle order in random mode and
// publishes the change (must be called with lock held).
func (c *Controller) playlistChangedLocked() {
	if c.mode == playlist.Random {
		if c.store.Len() > 0 {
			c.shuffle.Generate(c.store.Tracks(), c.currentIDLocked())
		} else {
			c.shuffle.Reset()
		}
	}
	c.notifyLocked()
}

func (c *Controller) currentIDLocked() string {
	if c.current == nil {
		return ""
	}
	return c.current.ID
}

func (c *Controller) clampLocked(seconds float64) float64 {
	if seconds < 0 {
		return 0
	}
	if c.duration > 0 && seconds > c.duration {
		return c.duration
	}
	return seconds
}

// Run consumes output events until ctx is done or the event channel closes.
func (c *Controller) Run(ctx context.Context) error {
	events := c.out.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent applies a single output event. Run calls it for every event it
// receives; it is exported so hosts with their own event loop can feed it.
func (c *Controller) HandleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventTimeUpdate:
		c.onTimeUpdate(ev.Seconds)
	case EventDurationKnown:
		c.onDurationKnown(ev.Seconds)
	case EventEnded:
		c.onEnded(ctx)
	case EventError:
		c.onError(ev.Err)
	}
}

func (c *Controller) onTimeUpdate(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.clampLocked(math.Floor(seconds))
	if math.Abs(next-c.elapsed) >= 1 {
		c.elapsed = next
		c.notifyLocked()
	}
}

func (c *Controller) onDurationKnown(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.current.HasDuration() {
		return
	}
	c.duration = seconds
	c.notifyLocked()
}

func (c *Controller) onError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.logger.WithField("status", c.status)
	if c.current != nil {
		entry = entry.WithField("track_id", c.current.ID)
	}
	entry.WithError(err).Error("Audio output error")

	c.status = StatusStopped
	if err != nil {
		c.lastErr = err.Error()
	}
	c.notifyLocked()
}

// onEnded reacts to the end of the current resource: repeat-one restarts it,
// every other mode advances via the policy or stops.
func (c *Controller) onEnded(ctx context.Context) {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return
	}

	if c.mode == playlist.RepeatOne {
		c.generation++
		gen := c.generation
		c.elapsed = 0
		c.out.Seek(0)
		c.mu.Unlock()

		c.loadMu.Lock()
		err := c.out.Play(ctx)
		c.loadMu.Unlock()

		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.generation {
			c.reconcileLocked()
			return
		}
		if err != nil {
			c.logger.WithError(err).Error("Restarting track failed")
			c.status = StatusStopped
			c.lastErr = err.Error()
		} else {
			c.status = StatusPlaying
			c.starts++
		}
		c.notifyLocked()
		return
	}

	target, ok := c.nextTargetLocked()
	if !ok {
		c.stopLocked()
		c.notifyLocked()
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.playTrack(ctx, target.Track, target.Index)
}

// Restore loads a previously saved queue without starting playback. The
// entry at index becomes the current track in the stopped state.
func (c *Controller) Restore(tracks []models.Track, index int, mode playlist.Mode, volume float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.ReplaceWith(tracks)
	c.store.SetCurrent(index)
	c.mode = mode
	c.volume = volume
	c.out.SetVolume(volume)

	if track, ok := c.store.At(c.store.Current()); ok {
		c.current = &track
		c.duration = track.Duration
		c.status = StatusStopped
	}
	c.shuffle.Reset()
	if mode == playlist.Random && c.store.Len() > 0 {
		c.shuffle.Generate(c.store.Tracks(), c.currentIDLocked())
	}
	c.notifyLocked()
}

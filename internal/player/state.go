package player

import (
	"time"

	"nufang/internal/playlist"
	"nufang/pkg/models"
)

// Status is the playback state machine position
type Status string

const (
	StatusEmpty   Status = "empty"
	StatusLoading Status = "loading"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// Snapshot is a read-only copy of the player state handed to callers and subscribers
type Snapshot struct {
	Track           *models.Track `json:"track,omitempty"`
	Index           int           `json:"index"`
	Status          Status        `json:"status"`
	IsPlaying       bool          `json:"isPlaying"`
	CurrentTime     float64       `json:"currentTime"` // in seconds
	Duration        float64       `json:"duration"`    // in seconds, 0 if unknown
	Volume          float64       `json:"volume"`      // 0.0 to 1.0
	Mode            playlist.Mode `json:"mode"`
	PlaylistLength  int           `json:"playlistLength"`
	PlayerVisible   bool          `json:"playerVisible"`
	PlaylistVisible bool          `json:"playlistVisible"`
	Error           string        `json:"error,omitempty"`
	Starts          uint64        `json:"starts"` // confirmed track starts since launch
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Subscribe adds a listener for state changes
func (c *Controller) Subscribe() <-chan Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 16) // Buffered channel to prevent blocking
	c.listeners = append(c.listeners, ch)
	return ch
}

// Unsubscribe removes a listener (call this when done to prevent leaks)
func (c *Controller) Unsubscribe(ch <-chan Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, listener := range c.listeners {
		if listener == ch {
			close(listener)
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			break
		}
	}
}

// snapshotLocked builds a Snapshot (must be called with lock held)
func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Index:           c.store.Current(),
		Status:          c.status,
		IsPlaying:       c.status == StatusPlaying,
		CurrentTime:     c.elapsed,
		Duration:        c.duration,
		Volume:          c.volume,
		Mode:            c.mode,
		PlaylistLength:  c.store.Len(),
		PlayerVisible:   c.playerVisible,
		PlaylistVisible: c.playlistVisible,
		Error:           c.lastErr,
		Starts:          c.starts,
		UpdatedAt:       c.updatedAt,
	}
	if c.current != nil {
		track := *c.current
		snap.Track = &track
	}
	return snap
}

// notifyLocked stamps the state and sends it to all subscribers (must be called with lock held).
// Subscribers that fall behind are dropped.
func (c *Controller) notifyLocked() {
	c.updatedAt = time.Now()
	snap := c.snapshotLocked()

	kept := c.listeners[:0]
	for _, listener := range c.listeners {
		select {
		case listener <- snap:
			kept = append(kept, listener)
		default:
			close(listener)
		}
	}
	c.listeners = kept
}

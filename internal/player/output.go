package player

import (
	"context"
	"fmt"
)

// EventKind identifies a signal raised by an audio output
type EventKind int

const (
	// EventTimeUpdate carries the elapsed playback time in Seconds
	EventTimeUpdate EventKind = iota
	// EventDurationKnown carries the resource duration in Seconds once decoded
	EventDurationKnown
	// EventEnded fires when the loaded resource plays to its end
	EventEnded
	// EventError carries a playback failure in Err
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventTimeUpdate:
		return "time-update"
	case EventDurationKnown:
		return "duration-known"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a hardware signal flowing back into the controller
type Event struct {
	Kind    EventKind
	Seconds float64
	Err     error
}

// Output is the single audio handle owned by a Controller.
//
// Load replaces the current resource and abandons any prior one; events for an
// abandoned resource must not be emitted afterwards. Play may block until the
// platform confirms or rejects playback. Implementations must never block when
// delivering events: the channel returned by Events is expected to be buffered.
type Output interface {
	Load(ctx context.Context, locator string) error
	Play(ctx context.Context) error
	Pause()
	Seek(seconds float64)
	SetVolume(level float64)
	Events() <-chan Event
	Close() error
}

// Package playertest provides a scriptable audio output for exercising the
// player controller without sound hardware.
package playertest

import (
	"context"
	"sync"

	"nufang/internal/player"
)

// Output records every command and lets tests decide how Load and Play resolve.
type Output struct {
	mu sync.Mutex

	// LoadErr and PlayErr, when set, are returned by the next calls.
	LoadErr error
	PlayErr error

	// PlayHook, when set, runs inside Play before it returns. Tests use it to
	// hold a play confirmation open while issuing other commands.
	PlayHook func()

	Loaded   []string
	Plays    int
	Pauses   int
	Seeks    []float64
	Volume   float64
	Playing  bool
	Position float64
	Closed   bool

	events chan player.Event
}

// New creates an idle test output
func New() *Output {
	return &Output{events: make(chan player.Event, 64)}
}

func (o *Output) Load(_ context.Context, locator string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Playing = false
	o.Position = 0
	if err := o.LoadErr; err != nil {
		return err
	}
	o.Loaded = append(o.Loaded, locator)
	return nil
}

func (o *Output) Play(_ context.Context) error {
	o.mu.Lock()
	hook := o.PlayHook
	o.mu.Unlock()

	if hook != nil {
		hook()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.Plays++
	if o.PlayErr != nil {
		return o.PlayErr
	}
	o.Playing = true
	return nil
}

func (o *Output) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Pauses++
	o.Playing = false
}

func (o *Output) Seek(seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Seeks = append(o.Seeks, seconds)
	o.Position = seconds
}

func (o *Output) SetVolume(level float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Volume = level
}

func (o *Output) Events() <-chan player.Event {
	return o.events
}

func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.Closed {
		o.Closed = true
		close(o.events)
	}
	return nil
}

// Emit queues a hardware event for the controller's Run loop
func (o *Output) Emit(ev player.Event) {
	o.events <- ev
}

// LastLoaded returns the most recently loaded locator
func (o *Output) LastLoaded() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.Loaded) == 0 {
		return ""
	}
	return o.Loaded[len(o.Loaded)-1]
}

// IsPlaying reports whether the output is currently producing sound
func (o *Output) IsPlaying() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Playing
}

// SetPlayErr changes the error returned by subsequent Play calls
func (o *Output) SetPlayErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.PlayErr = err
}

// SetPlayHook installs fn to run inside subsequent Play calls
func (o *Output) SetPlayHook(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.PlayHook = fn
}

//go:build (linux && cgo) || windows || darwin

package audio

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sync"
	"time"

	"nufang/internal/player"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/sirupsen/logrus"
)

// SpeakerAvailable indicates whether sound output is supported in this build.
const SpeakerAvailable = true

var (
	speakerOnce sync.Once
	speakerErr  error
)

// Speaker plays resources on the host's sound device through beep.
type Speaker struct {
	mu     sync.Mutex
	client *http.Client
	logger *logrus.Logger
	events chan player.Event

	sampleRate beep.SampleRate
	streamer   beep.StreamSeekCloser
	format     beep.Format
	ctrl       *beep.Ctrl
	volume     *effects.Volume
	level      float64

	loadID  uint64 // bumped on every Load; end callbacks from older loads are ignored
	queued  bool   // stream has been handed to the speaker and not finished
	playing bool

	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewSpeaker initialises the sound device and returns an output for it
func NewSpeaker(client *http.Client, logger *logrus.Logger) (*Speaker, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logrus.New()
	}

	sampleRate := beep.SampleRate(44100) // Standard sample rate
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(sampleRate, sampleRate.N(time.Second/10))
	})
	if speakerErr != nil {
		return nil, speakerErr
	}

	s := &Speaker{
		client:     client,
		logger:     logger,
		events:     make(chan player.Event, 32),
		sampleRate: sampleRate,
		level:      1,
		done:       make(chan struct{}),
	}
	go s.tick()
	return s, nil
}

// Load decodes locator and makes it the current resource, abandoning any prior one.
func (s *Speaker) Load(ctx context.Context, locator string) error {
	streamer, format, err := decode(ctx, s.client, locator)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()
	s.loadID++
	s.streamer = streamer
	s.format = format

	resampled := beep.Resample(4, format.SampleRate, s.sampleRate, streamer)
	s.ctrl = &beep.Ctrl{Streamer: resampled, Paused: true}
	s.volume = &effects.Volume{Streamer: s.ctrl, Base: 2}
	s.applyVolumeLocked()

	if total := length(streamer, format); total > 0 {
		s.emit(player.Event{Kind: player.EventDurationKnown, Seconds: total.Seconds()})
	}
	return nil
}

// Play starts or resumes the current resource
func (s *Speaker) Play(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamer == nil {
		return errors.New("no resource loaded")
	}

	speaker.Lock()
	if s.streamer.Position() >= s.streamer.Len() {
		if err := s.streamer.Seek(0); err != nil {
			speaker.Unlock()
			return err
		}
	}
	s.ctrl.Paused = false
	speaker.Unlock()

	if !s.queued {
		id := s.loadID
		s.queued = true
		speaker.Play(beep.Seq(s.volume, beep.Callback(func() {
			// Run in a separate goroutine to avoid deadlock with the speaker lock
			go s.finished(id)
		})))
	}
	s.playing = true
	return nil
}

func (s *Speaker) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl != nil {
		speaker.Lock()
		s.ctrl.Paused = true
		speaker.Unlock()
	}
	s.playing = false
}

func (s *Speaker) Seek(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamer == nil {
		return
	}

	speaker.Lock()
	defer speaker.Unlock()

	n := s.format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	if n < 0 {
		n = 0
	}
	if n > s.streamer.Len() {
		n = s.streamer.Len()
	}
	if err := s.streamer.Seek(n); err != nil {
		s.logger.WithError(err).WithField("seconds", seconds).Warn("Seek failed")
	}
}

// SetVolume maps a linear level onto beep's logarithmic volume. Levels at or
// below zero mute; levels above one amplify.
func (s *Speaker) SetVolume(level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.level = level
	s.applyVolumeLocked()
}

func (s *Speaker) applyVolumeLocked() {
	if s.volume == nil {
		return
	}
	speaker.Lock()
	defer speaker.Unlock()

	if s.level <= 0 {
		s.volume.Silent = true
		return
	}
	s.volume.Silent = false
	s.volume.Volume = math.Log2(s.level)
}

func (s *Speaker) Events() <-chan player.Event {
	return s.events
}

// Close stops playback and releases the current resource
func (s *Speaker) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.releaseLocked()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

// releaseLocked detaches the current stream from the speaker (must be called with lock held)
func (s *Speaker) releaseLocked() {
	if s.queued {
		speaker.Clear()
		s.queued = false
	}
	if s.streamer != nil {
		s.streamer.Close()
		s.streamer = nil
	}
	s.ctrl = nil
	s.volume = nil
	s.playing = false
}

func (s *Speaker) finished(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.loadID || !s.queued {
		return
	}
	s.queued = false
	s.playing = false
	s.emit(player.Event{Kind: player.EventEnded})
}

func (s *Speaker) tick() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			s.mu.Lock()
			close(s.events)
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.playing && s.streamer != nil {
				speaker.Lock()
				pos := s.format.SampleRate.D(s.streamer.Position())
				speaker.Unlock()
				s.emit(player.Event{Kind: player.EventTimeUpdate, Seconds: pos.Seconds()})
			}
			s.mu.Unlock()
		}
	}
}

// emit delivers ev without blocking (must be called with lock held)
func (s *Speaker) emit(ev player.Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		if ev.Kind != player.EventTimeUpdate {
			s.logger.WithField("event", ev.Kind).Warn("Dropping output event, consumer is behind")
		}
	}
}

func openSpeaker(client *http.Client, logger *logrus.Logger) (player.Output, error) {
	sp, err := NewSpeaker(client, logger)
	if err != nil {
		return nil, err
	}
	return sp, nil
}

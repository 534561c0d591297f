package audio

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"nufang/internal/player"

	"github.com/sirupsen/logrus"
)

// tickInterval is how often outputs report the elapsed time
const tickInterval = 250 * time.Millisecond

// Silent is a player.Output that decodes resources to learn their length and
// then runs a virtual clock instead of producing sound. It suits hosts where a
// remote client renders the audio.
type Silent struct {
	mu     sync.Mutex
	client *http.Client
	logger *logrus.Logger
	events chan player.Event

	loaded    bool
	length    time.Duration
	offset    time.Duration
	startedAt time.Time
	playing   bool
	volume    float64

	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewSilent creates a silent output and starts its clock
func NewSilent(client *http.Client, logger *logrus.Logger) *Silent {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logrus.New()
	}
	s := &Silent{
		client: client,
		logger: logger,
		events: make(chan player.Event, 32),
		done:   make(chan struct{}),
	}
	go s.tick()
	return s
}

func (s *Silent) Load(ctx context.Context, locator string) error {
	streamer, format, err := decode(ctx, s.client, locator)
	if err != nil {
		return err
	}
	total := length(streamer, format)
	streamer.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.loaded = true
	s.length = total
	s.offset = 0
	s.playing = false
	if total > 0 {
		s.emit(player.Event{Kind: player.EventDurationKnown, Seconds: total.Seconds()})
	}
	s.logger.WithFields(logrus.Fields{
		"locator":  locator,
		"duration": total,
	}).Debug("Loaded resource")
	return nil
}

func (s *Silent) Play(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return errors.New("no resource loaded")
	}
	if s.playing {
		return nil
	}
	if s.length > 0 && s.offset >= s.length {
		s.offset = 0
	}
	s.startedAt = time.Now()
	s.playing = true
	return nil
}

func (s *Silent) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.offset = s.positionLocked()
	s.playing = false
}

func (s *Silent) Seek(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := time.Duration(seconds * float64(time.Second))
	if d < 0 {
		d = 0
	}
	if s.length > 0 && d > s.length {
		d = s.length
	}
	s.offset = d
	if s.playing {
		s.startedAt = time.Now()
	}
}

func (s *Silent) SetVolume(level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = level
}

func (s *Silent) Events() <-chan player.Event {
	return s.events
}

// Close stops the clock and closes the event channel
func (s *Silent) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

func (s *Silent) positionLocked() time.Duration {
	if !s.playing {
		return s.offset
	}
	return s.offset + time.Since(s.startedAt)
}

func (s *Silent) tick() {
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
			s.advance()
		}
	}
}

func (s *Silent) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing {
		return
	}
	pos := s.positionLocked()
	if s.length > 0 && pos >= s.length {
		s.offset = s.length
		s.playing = false
		s.emit(player.Event{Kind: player.EventTimeUpdate, Seconds: s.length.Seconds()})
		s.emit(player.Event{Kind: player.EventEnded})
		return
	}
	s.emit(player.Event{Kind: player.EventTimeUpdate, Seconds: pos.Seconds()})
}

// emit delivers ev without blocking; time updates are dropped when the
// consumer falls behind (must be called with lock held).
func (s *Silent) emit(ev player.Event) {
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

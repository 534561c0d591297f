package player_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"nufang/internal/player"
	"nufang/internal/player/playertest"
	"nufang/internal/playlist"
	"nufang/pkg/models"

	"github.com/sirupsen/logrus"
)

func newTestController(t *testing.T) (*player.Controller, *playertest.Output) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests

	out := playertest.New()
	ctrl := player.NewController(out, player.Resolver{BasePath: "/srv/site"}, logger)
	return ctrl, out
}

func testAlbum() models.Album {
	return models.Album{
		ID:         "nfdsm",
		Name:       "Full Bloom",
		CoverImage: "images/album_cover/nfdsm.jpg",
		Year:       "2005",
		Type:       models.AlbumStudio,
		Songs: []models.Track{
			{ID: "a", Title: "A", Album: "Full Bloom", FilePath: "/music/a.mp3"},
			{ID: "b", Title: "B", Album: "Full Bloom", FilePath: "/music/b.mp3", Duration: 240},
			{ID: "c", Title: "C", Album: "Full Bloom", FilePath: "/music/c.mp3", CoverImage: "own.jpg"},
		},
	}
}

func TestPlayWithAlbum(t *testing.T) {
	ctrl, out := newTestController(t)
	ctx := context.Background()
	album := testAlbum()

	ctrl.Play(ctx, album.Songs[1], &album)

	snap := ctrl.Snapshot()
	if snap.Status != player.StatusPlaying || !snap.IsPlaying {
		t.Fatalf("Expected playing, got %s", snap.Status)
	}
	if snap.Track == nil || snap.Track.ID != "b" {
		t.Fatalf("Expected current track b, got %+v", snap.Track)
	}
	if snap.Index != 1 {
		t.Errorf("Expected index 1, got %d", snap.Index)
	}
	if snap.Track.CoverImage != album.CoverImage {
		t.Errorf("Expected inherited cover %q, got %q", album.CoverImage, snap.Track.CoverImage)
	}
	if snap.Duration != 240 {
		t.Errorf("Expected declared duration 240, got %v", snap.Duration)
	}
	if !snap.PlayerVisible {
		t.Error("Play should make the player visible")
	}
	if got := out.LastLoaded(); got != "/srv/site/music/b.mp3" {
		t.Errorf("Expected resolved locator, got %q", got)
	}

	tracks, index := ctrl.Playlist()
	if len(tracks) != 3 || index != 1 {
		t.Fatalf("Expected album playlist at index 1, got %d tracks at %d", len(tracks), index)
	}
	if tracks[0].CoverImage != album.CoverImage {
		t.Errorf("playlist entry without cover should inherit the album cover")
	}
	if tracks[2].CoverImage != "own.jpg" {
		t.Errorf("playlist entry with own cover must keep it, got %q", tracks[2].CoverImage)
	}
	if album.Songs[0].CoverImage != "" {
		t.Error("the caller's album must not be mutated")
	}
}

func TestPlayOutsidePlaylist(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()

	adhoc := models.NewTrack("Demo", "Singles", "/music/demo.mp3")
	ctrl.Play(ctx, adhoc, nil)

	snap := ctrl.Snapshot()
	if snap.Index != -1 {
		t.Errorf("Expected index -1 for a track outside the playlist, got %d", snap.Index)
	}
	if !snap.IsPlaying {
		t.Error("Expected ad-hoc track to play")
	}
}

func TestPlayFailureIsNotPropagated(t *testing.T) {
	tests := []struct {
		name    string
		loadErr error
		playErr error
	}{
		{name: "load rejected", loadErr: errors.New("unsupported format")},
		{name: "play rejected", playErr: errors.New("autoplay blocked")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, out := newTestController(t)
			out.LoadErr = tt.loadErr
			out.PlayErr = tt.playErr
			album := testAlbum()

			ctrl.Play(context.Background(), album.Songs[0], &album)

			snap := ctrl.Snapshot()
			if snap.IsPlaying {
				t.Error("Expected not playing after a failed play")
			}
			if snap.Status != player.StatusStopped {
				t.Errorf("Expected stopped, got %s", snap.Status)
			}
			if snap.Error == "" {
				t.Error("Expected the failure to be surfaced in the snapshot")
			}
		})
	}
}

func TestSequentialThenRepeatAllScenario(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()
	album := testAlbum()

	ctrl.Play(ctx, album.Songs[0], &album)

	for _, want := range []string{"b", "c"} {
		if !ctrl.Next(ctx) {
			t.Fatalf("Next should advance to %s", want)
		}
		if got := ctrl.Snapshot().Track.ID; got != want {
			t.Fatalf("Expected %s, got %s", want, got)
		}
	}

	if ctrl.Next(ctx) {
		t.Fatal("Next at the end of a sequential playlist should yield none")
	}
	snap := ctrl.Snapshot()
	if snap.IsPlaying || snap.Track.ID != "c" || snap.Index != 2 {
		t.Fatalf("Expected stopped on c at 2, got %s on %s at %d", snap.Status, snap.Track.ID, snap.Index)
	}

	ctrl.SetMode(playlist.RepeatAll)
	if !ctrl.Next(ctx) {
		t.Fatal("repeat-all Next should wrap")
	}
	snap = ctrl.Snapshot()
	if snap.Track.ID != "a" || snap.Index != 0 || !snap.IsPlaying {
		t.Errorf("Expected wrap to a at 0, got %s at %d", snap.Track.ID, snap.Index)
	}
}

func TestPreviousAtStartIsNoop(t *testing.T) {
	ctrl, out := newTestController(t)
	ctx := context.Background()
	album := testAlbum()

	ctrl.Play(ctx, album.Songs[0], &album)
	loads := len(out.Loaded)

	if ctrl.Previous(ctx) {
		t.Error("Previous from index 0 in sequential mode should be a no-op")
	}
	if len(out.Loaded) != loads {
		t.Error("no-op Previous must not load anything")
	}
	if !ctrl.Snapshot().IsPlaying {
		t.Error("no-op Previous must not stop playback")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()
	album := testAlbum()

	ctrl.Play(ctx, album.Songs[1], &album)
	ctrl.Seek(42)

	ctrl.Stop()
	once := ctrl.Snapshot()
	ctrl.Stop()
	twice := ctrl.Snapshot()

	for _, snap := range []player.Snapshot{once, twice} {
		if snap.CurrentTime != 0 || snap.IsPlaying || snap.Track == nil || snap.Track.ID != "b" {
			t.Errorf("Unexpected stop state: time=%v playing=%v track=%+v", snap.CurrentTime, snap.IsPlaying, snap.Track)
		}
		if snap.Status != player.StatusStopped {
			t.Errorf("Expected stopped, got %s", snap.Status)
		}
	}
	if once.Index != twice.Index {
		t.Errorf("Index changed between stops: %d vs %d", once.Index, twice.Index)
	}
}

func TestPauseResume(t *testing.T) {
	ctrl, out := newTestController(t)
	ctx := context.Background()
	album := testAlbum()

	ctrl.Play(ctx, album.Songs[0], &album)
	ctrl.Pause()
	if snap := ctrl.Snapshot(); snap.Status != player.StatusPaused || out.IsPlaying() {
		t.Fatalf("Expected paused, got %s", snap.Status)
	}

	ctrl.Resume(ctx)
	if snap := ctrl.Snapshot(); snap.Status != player.StatusPlaying || snap.Track.ID != "a" {
		t.Fatalf("Expected playing a, got %s", snap.Status)
	}

	ctrl.Pause()
	out.SetPlayErr(errors.New("autoplay blocked"))
	ctrl.Resume(ctx)
	if snap := ctrl.Snapshot(); snap.IsPlaying {
		t.Error("rejected resume must leave the player not playing")
	}
}

func TestResumeWithoutTrackIsNoop(t *testing.T) {
	ctrl, out := newTestController(t)
	ctrl.Resume(context.Background())
	if out.Plays != 0 {
		t.Error("Resume with nothing loaded should not touch the output")
	}
	if ctrl.Snapshot().Status != player.StatusEmpty {
		t.Error("Expected empty status")
	}
}

func TestRepeatOneRestartsOnEnd(t *testing.T) {
	ctrl, out := newTestController(t)
	ctx := context.Background()
	album := testAlbum()

	ctrl.SetMode(playlist.RepeatOne)
	ctrl.Play(ctx, album.Songs[2], &album)
	ctrl.HandleEvent(ctx, player.Event{Kind: player.EventTimeUpdate, Seconds: 100})

	loads := len(out.Loaded)
	ctrl.HandleEvent(ctx, player.Event{Kind: player.EventEnded})

	snap := ctrl.Snapshot()
	if snap.Track.ID != "c" || snap.CurrentTime != 0 || !snap.IsPlaying {
		t.Errorf("Expected c restarted at 0 and playing, got %s at %v playing=%v", snap.Track.ID, snap.CurrentTime, snap.IsPlaying)
	}
	if len(out.Loaded) != loads {
		t.Error("repeat-one restart should not reload the resource")
	}
	if out.Position != 0 {
		t.Errorf("Expected output rewound to 0, got %v", out.Position)
	}

	// explicit navigation still wraps like repeat-all
	if !ctrl.Next(ctx) || ctrl.Snapshot().Track.ID != "a" {
		t.Error("explicit Next in repeat-one should wrap to the first track")
	}
}

func TestEndedAdvancesAndStops(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()
	album := testAlbum()

	ctrl.Play(ctx, album.Songs[1], &album)
	ctrl.HandleEvent(ctx, player.Event{Kind: player.EventEnded})
	if got := ctrl.Snapshot().Track.ID; got != "c" {
		t.Fatalf("Expected end-of-track to advance to c, got %s", got)
	}

	ctrl.HandleEvent(ctx, player.Event{Kind: player.EventEnded})
	snap := ctrl.Snapshot()
	if snap.IsPlaying || snap.Status != player.StatusStopped || snap.Track.ID != "c" {
		t.Errorf("Expected stopped on c, got %s on %s", snap.Status, snap.Track.ID)
	}
}

func TestEndedOutsidePlaylistStartsOver(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()
	album := testAlbum()

	ctrl.Play(ctx, album.Songs[1], &album)
	ctrl.SetMode(playlist.RepeatAll)
	ctrl.Play(ctx, models.Track{ID: "x", Title: "X", FilePath: "/music/x.mp3"}, nil)

	ctrl.HandleEvent(ctx, player.Event{Kind: player.EventEnded})
	snap := ctrl.Snapshot()
	if snap.Track == nil || snap.Track.ID != "a" || snap.Index != 0 || !snap.IsPlaying {
		t.Fatalf("Expected end-of-track to start over at a, got %+v", snap)
	}

	ctrl.SetMode(playlist.Sequential)
	ctrl.Play(ctx, models.Track{ID: "x", Title: "X", FilePath: "/music/x.mp3"}, nil)
	ctrl.HandleEvent(ctx, player.Event{Kind: player.EventEnded})
	if snap := ctrl.Snapshot(); snap.IsPlaying || snap.Status != player.StatusStopped {
		t.Errorf("Expected sequential end outside the playlist to stop, got %s", snap.Status)
	}
}

func TestRemoveFromPlaylist(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()
	album := testAlbum()

	ctrl.Play(ctx, album.Songs[2], &album)

	if !ctrl.Remove("a") {
		t.Fatal("expected a to be removed")
	}
	if snap := ctrl.Snapshot(); snap.Index != 1 || !snap.IsPlaying {
		t.Errorf("removing before current should shift index to 1, got %d", snap.Index)
	}

	if !ctrl.Remove("c") {
		t.Fatal("expected c to be removed")
	}
	snap := ctrl.Snapshot()
	if snap.Index != -1 || snap.IsPlaying {
		t.Errorf("removing the current track should stop and clear the index, got %d playing=%v", snap.Index, snap.IsPlaying)
	}

	if ctrl.Remove("missing") {
		t.Error("removing an unknown id should report false")
	}
}

func TestClearStops(t *testing.T) {
	ctrl, _ := newTestController(t)
	album := testAlbum()
	ctrl.Play(context.Background(), album.Songs[0], &album)

	ctrl.Clear()

	tracks, index := ctrl.Playlist()
	snap := ctrl.Snapshot()
	if len(tracks) != 0 || index != -1 || snap.IsPlaying {
		t.Errorf("Clear left %d tracks, index %d, playing=%v", len(tracks), index, snap.IsPlaying)
	}
}

func TestAppendAndPlayAt(t *testing.T) {
	ctrl, out := newTestController(t)
	ctx := context.Background()
	album := testAlbum()

	if added := ctrl.AppendAlbum(album); added != 3 {
		t.Fatalf("Expected 3 added, got %d", added)
	}
	if ctrl.Append(album.Songs[0]) {
		t.Error("appending a duplicate should be a no-op")
	}

	if ctrl.PlayAt(ctx, 3) || ctrl.PlayAt(ctx, -1) {
		t.Error("out-of-range PlayAt should be ignored")
	}
	if len(out.Loaded) != 0 {
		t.Error("ignored PlayAt must not load anything")
	}

	if !ctrl.PlayAt(ctx, 2) {
		t.Fatal("PlayAt(2) should play")
	}
	snap := ctrl.Snapshot()
	if snap.Track.ID != "c" || snap.Index != 2 {
		t.Errorf("Expected c at 2, got %s at %d", snap.Track.ID, snap.Index)
	}
}

func TestRandomMode(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()
	album := testAlbum()

	ctrl.Play(ctx, album.Songs[0], &album)
	ctrl.SetMode(playlist.Random)

	order := ctrl.ShuffleOrder()
	if len(order) != 3 {
		t.Fatalf("Expected shuffle order of 3, got %v", order)
	}
	if order[0] == "a" {
		t.Errorf("current track must not be first in a fresh shuffle: %v", order)
	}

	seen := map[string]bool{"a": true}
	for i := 0; i < 2; i++ {
		if !ctrl.Next(ctx) {
			t.Fatal("random Next should always advance")
		}
		seen[ctrl.Snapshot().Track.ID] = true
	}
	if len(seen) != 3 {
		t.Errorf("walking the shuffle should visit every track, saw %v", seen)
	}

	ctrl.SetMode(playlist.Sequential)
	if len(ctrl.ShuffleOrder()) != 0 {
		t.Error("leaving random mode should drop the shuffle order")
	}
}

func TestTimeAndDurationEvents(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()
	album := testAlbum()

	ctrl.Play(ctx, album.Songs[0], &album)
	ctrl.HandleEvent(ctx, player.Event{Kind: player.EventDurationKnown, Seconds: 200})
	if got := ctrl.Snapshot().Duration; got != 200 {
		t.Errorf("Expected discovered duration 200, got %v", got)
	}

	ctrl.HandleEvent(ctx, player.Event{Kind: player.EventTimeUpdate, Seconds: 12.7})
	if got := ctrl.Snapshot().CurrentTime; got != 12 {
		t.Errorf("Expected elapsed 12, got %v", got)
	}
	ctrl.HandleEvent(ctx, player.Event{Kind: player.EventTimeUpdate, Seconds: 500})
	if got := ctrl.Snapshot().CurrentTime; got != 200 {
		t.Errorf("elapsed must not exceed duration, got %v", got)
	}

	ctrl.Play(ctx, album.Songs[1], nil)
	ctrl.HandleEvent(ctx, player.Event{Kind: player.EventDurationKnown, Seconds: 10})
	snap := ctrl.Snapshot()
	if snap.Duration != 240 {
		t.Errorf("declared duration should win, got %v", snap.Duration)
	}
	if snap.CurrentTime != 0 {
		t.Errorf("elapsed should reset on a new track, got %v", snap.CurrentTime)
	}
}

func TestErrorEvent(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()
	album := testAlbum()

	ctrl.Play(ctx, album.Songs[0], &album)
	ctrl.HandleEvent(ctx, player.Event{Kind: player.EventError, Err: errors.New("network")})

	snap := ctrl.Snapshot()
	if snap.IsPlaying || snap.Status != player.StatusStopped || snap.Error != "network" {
		t.Errorf("Expected stopped with error, got %s %q", snap.Status, snap.Error)
	}
}

func TestStaleConfirmationIsDiscarded(t *testing.T) {
	ctrl, out := newTestController(t)
	ctx := context.Background()
	album := testAlbum()

	out.SetPlayHook(func() {
		out.SetPlayHook(nil)
		ctrl.Pause()
	})
	ctrl.Play(ctx, album.Songs[0], &album)

	snap := ctrl.Snapshot()
	if snap.IsPlaying || snap.Status != player.StatusPaused {
		t.Errorf("confirmation landing after a pause must not flip to playing, got %s", snap.Status)
	}
	if out.IsPlaying() {
		t.Error("output should be silenced after a stale confirmation")
	}
}

func TestResumeAfterPauseDuringPendingLoad(t *testing.T) {
	ctrl, out := newTestController(t)
	ctx := context.Background()
	album := testAlbum()

	entered := make(chan struct{})
	release := make(chan struct{})
	out.SetPlayHook(func() {
		out.SetPlayHook(nil)
		close(entered)
		<-release
	})

	firstDone := make(chan struct{})
	go func() {
		ctrl.Play(ctx, album.Songs[0], &album)
		close(firstDone)
	}()
	<-entered

	secondDone := make(chan struct{})
	go func() {
		ctrl.PlayAt(ctx, 1)
		close(secondDone)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if snap := ctrl.Snapshot(); snap.Track != nil && snap.Track.ID == "b" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for b to become current")
		}
		time.Sleep(time.Millisecond)
	}

	ctrl.Pause()
	close(release)
	<-firstDone
	<-secondDone

	if got := out.LastLoaded(); got != "/srv/site/music/a.mp3" {
		t.Fatalf("Expected the paused load of b to be skipped, last loaded %q", got)
	}

	ctrl.Resume(ctx)
	snap := ctrl.Snapshot()
	if snap.Track == nil || snap.Track.ID != "b" || snap.Status != player.StatusPlaying {
		t.Fatalf("Expected b playing after resume, got %+v", snap)
	}
	if got := out.LastLoaded(); got != "/srv/site/music/b.mp3" {
		t.Errorf("resume must load the current track, output holds %q", got)
	}
	if !out.IsPlaying() {
		t.Error("Expected output playing after resume")
	}
}

func TestResumeAfterRestoreLoadsTrack(t *testing.T) {
	ctrl, out := newTestController(t)
	album := testAlbum()

	ctrl.Restore(album.Songs, 2, playlist.Sequential, 0.5)
	ctrl.Resume(context.Background())

	snap := ctrl.Snapshot()
	if snap.Track == nil || snap.Track.ID != "c" || !snap.IsPlaying {
		t.Fatalf("Expected c playing, got %+v", snap)
	}
	if got := out.LastLoaded(); got != "/srv/site/music/c.mp3" {
		t.Errorf("Expected restored track loaded, got %q", got)
	}
}

func TestVolumePassThrough(t *testing.T) {
	ctrl, out := newTestController(t)

	if out.Volume != player.DefaultVolume {
		t.Errorf("Expected default volume %v, got %v", player.DefaultVolume, out.Volume)
	}
	ctrl.SetVolume(1.5)
	if out.Volume != 1.5 || ctrl.Snapshot().Volume != 1.5 {
		t.Error("volume should be passed through unvalidated")
	}
}

func TestVisibility(t *testing.T) {
	ctrl, _ := newTestController(t)

	ctrl.ShowPlaylist()
	ctrl.TogglePlayer()
	snap := ctrl.Snapshot()
	if !snap.PlaylistVisible || !snap.PlayerVisible {
		t.Errorf("Expected both visible, got %+v", snap)
	}
	ctrl.HidePlayer()
	ctrl.TogglePlaylist()
	snap = ctrl.Snapshot()
	if snap.PlaylistVisible || snap.PlayerVisible {
		t.Errorf("Expected both hidden, got %+v", snap)
	}
}

func TestRestore(t *testing.T) {
	ctrl, out := newTestController(t)
	album := testAlbum()

	ctrl.Restore(album.Songs, 1, playlist.RepeatAll, 0.3)

	snap := ctrl.Snapshot()
	if snap.Track == nil || snap.Track.ID != "b" || snap.Index != 1 {
		t.Fatalf("Expected restored b at 1, got %+v", snap)
	}
	if snap.IsPlaying || snap.Status != player.StatusStopped {
		t.Error("restore must not start playback")
	}
	if snap.Mode != playlist.RepeatAll || out.Volume != 0.3 {
		t.Errorf("Expected mode and volume restored, got %s %v", snap.Mode, out.Volume)
	}
}

func TestSubscribeAndRun(t *testing.T) {
	ctrl, out := newTestController(t)
	album := testAlbum()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl.Play(ctx, album.Songs[0], &album)

	updates := ctrl.Subscribe()
	defer ctrl.Unsubscribe(updates)

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	out.Emit(player.Event{Kind: player.EventEnded})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.Track != nil && snap.Track.ID == "b" && snap.IsPlaying {
				cancel()
				if err := <-done; !errors.Is(err, context.Canceled) {
					t.Errorf("Run returned %v, want context.Canceled", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for the next track to start")
		}
	}
}

func TestResolver(t *testing.T) {
	tests := []struct {
		name     string
		resolver player.Resolver
		path     string
		want     string
	}{
		{name: "absolute url", resolver: player.Resolver{BasePath: "/base"}, path: "https://cdn/x.mp3", want: "https://cdn/x.mp3"},
		{name: "data url", resolver: player.Resolver{BasePath: "/base"}, path: "data:audio/mp3;base64,AAA", want: "data:audio/mp3;base64,AAA"},
		{name: "music base url", resolver: player.Resolver{BasePath: "/base", MusicBaseURL: "https://oss.example/"}, path: "/music/a.mp3", want: "https://oss.example/music/a.mp3"},
		{name: "non-music path ignores music base", resolver: player.Resolver{BasePath: "/base/", MusicBaseURL: "https://oss.example"}, path: "/images/a.jpg", want: "/base/images/a.jpg"},
		{name: "default base", resolver: player.Resolver{}, path: "music/a.mp3", want: "/music/a.mp3"},
		{name: "empty path", resolver: player.Resolver{BasePath: "/base"}, path: "/", want: "/base/"},
		{name: "empty path default base", resolver: player.Resolver{}, path: "", want: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.resolver.Resolve(tt.path); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

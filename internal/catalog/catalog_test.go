package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"nufang/pkg/models"

	"github.com/sirupsen/logrus"
)

const sampleJSON = `{
  "albums": [
    {
      "id": "wanfeng",
      "name": "晚风",
      "coverImage": "/images/wanfeng.jpg",
      "year": "2023",
      "type": "album",
      "songs": [
        {"id": "w1", "title": "晚风", "album": "晚风", "filePath": "/music/wanfeng/1.mp3", "duration": 215},
        {"id": "w2", "title": "归途", "album": "晚风", "filePath": "/music/wanfeng/2.wav", "coverImage": "/images/w2.jpg"}
      ]
    }
  ]
}`

const sampleYAML = `albums:
  - id: live
    name: 现场
    year: "2024"
    type: live
    coverImage: /images/live.jpg
    songs:
      - id: l1
        title: 开场
        album: 现场
        filePath: /music/live/1.mp3
`

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type fakeProber struct {
	mu        sync.Mutex
	durations map[string]float64
	calls     []string
}

func (p *fakeProber) ProbeDuration(path string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, path)
	if d, ok := p.durations[filepath.Base(path)]; ok {
		return d, nil
	}
	return 0, errors.New("unreadable")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadJSONFile(t *testing.T) {
	dir := t.TempDir()
	musicRoot := filepath.Join(dir, "music")
	writeFile(t, filepath.Join(musicRoot, "wanfeng", "2.wav"), "x")
	source := filepath.Join(dir, "albums.json")
	writeFile(t, source, sampleJSON)

	prober := &fakeProber{durations: map[string]float64{"2.wav": 187.4}}
	loader := NewLoader(nil, prober, musicRoot, quietLogger())

	albums := loader.Load(context.Background(), source)
	if len(albums) != 1 || albums[0].ID != "wanfeng" {
		t.Fatalf("Expected the wanfeng album, got %+v", albums)
	}
	songs := albums[0].Songs
	if songs[0].CoverImage != "/images/wanfeng.jpg" {
		t.Errorf("Expected song to inherit album cover, got %q", songs[0].CoverImage)
	}
	if songs[1].CoverImage != "/images/w2.jpg" {
		t.Errorf("Expected song to keep its own cover, got %q", songs[1].CoverImage)
	}
	if songs[0].Duration != 215 {
		t.Errorf("Declared duration should be kept, got %v", songs[0].Duration)
	}
	if songs[1].Duration != 187.4 {
		t.Errorf("Expected probed duration, got %v", songs[1].Duration)
	}
	if len(prober.calls) != 1 {
		t.Errorf("Expected one probe, got %v", prober.calls)
	}
	if albums[0].Type != models.AlbumStudio {
		t.Errorf("Expected studio type, got %q", albums[0].Type)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	source := filepath.Join(t.TempDir(), "albums.yml")
	writeFile(t, source, sampleYAML)

	albums := NewLoader(nil, nil, "", quietLogger()).Load(context.Background(), source)
	if len(albums) != 1 || albums[0].Type != models.AlbumLive {
		t.Fatalf("Expected one live album, got %+v", albums)
	}
	if albums[0].Songs[0].CoverImage != "/images/live.jpg" {
		t.Errorf("Expected cover enrichment, got %q", albums[0].Songs[0].CoverImage)
	}
}

func TestLoadFallsBackToPlaceholder(t *testing.T) {
	dir := t.TempDir()
	malformed := filepath.Join(dir, "bad.json")
	writeFile(t, malformed, `{"albums": [`)
	noAlbums := filepath.Join(dir, "empty.json")
	writeFile(t, noAlbums, `{"records": []}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	defer srv.Close()

	loader := NewLoader(srv.Client(), nil, "", quietLogger())
	sources := map[string]string{
		"missing file":    filepath.Join(dir, "absent.json"),
		"malformed":       malformed,
		"no albums array": noAlbums,
		"http 500":        srv.URL + "/data/albums.json",
		"empty source":    "",
	}
	for name, source := range sources {
		t.Run(name, func(t *testing.T) {
			albums := loader.Load(context.Background(), source)
			if len(albums) != 1 || albums[0].ID != PlaceholderAlbumID {
				t.Fatalf("Expected placeholder, got %+v", albums)
			}
			song := albums[0].Songs[0]
			if song.ID != PlaceholderSongID || song.FilePath != "/music/demo.mp3" {
				t.Errorf("Unexpected placeholder song %+v", song)
			}
		})
	}
}

func TestLoadFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/albums.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleJSON))
	}))
	defer srv.Close()

	loader := NewLoader(srv.Client(), nil, "", quietLogger())
	albums, err := loader.Fetch(context.Background(), srv.URL+"/data/albums.json?v=2")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(albums) != 1 || len(albums[0].Songs) != 2 {
		t.Errorf("Unexpected albums %+v", albums)
	}
}

func TestLocalPath(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		filePath string
		ok       bool
		want     string
	}{
		{"/music/a/b.mp3", true, filepath.Join(root, "a", "b.mp3")},
		{"c.mp3", true, filepath.Join(root, "c.mp3")},
		{"/music/../../etc/passwd", false, ""},
		{"https://cdn.example/a.mp3", false, ""},
		{"data:audio/mp3;base64,AA", false, ""},
	}
	for _, tt := range tests {
		got, ok := LocalPath(root, tt.filePath)
		if ok != tt.ok {
			t.Errorf("LocalPath(%q) ok = %v, want %v", tt.filePath, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("LocalPath(%q) = %q, want %q", tt.filePath, got, tt.want)
		}
	}
	if _, ok := LocalPath("", "/music/a.mp3"); ok {
		t.Error("Expected no mapping without a music root")
	}
}

func TestUpdateDurationsAndSave(t *testing.T) {
	dir := t.TempDir()
	musicRoot := filepath.Join(dir, "music")
	writeFile(t, filepath.Join(musicRoot, "wanfeng", "1.mp3"), "x")
	writeFile(t, filepath.Join(musicRoot, "wanfeng", "2.wav"), "x")

	cat, err := Parse([]byte(sampleJSON), "json")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	prober := &fakeProber{durations: map[string]float64{"1.mp3": 215.2, "2.wav": 99.6}}

	report := UpdateDurations(cat.Albums, musicRoot, prober)
	if report.Total != 2 || report.Updated != 1 || report.Missing != 0 || report.Failed != 0 {
		t.Errorf("Unexpected report %+v", report)
	}
	if cat.Albums[0].Songs[1].Duration != 100 {
		t.Errorf("Expected rounded duration 100, got %v", cat.Albums[0].Songs[1].Duration)
	}

	out := filepath.Join(dir, "out.yaml")
	if err := Save(out, cat); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	again, err := ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile of saved yaml failed: %v", err)
	}
	if again.Albums[0].Songs[1].Duration != 100 {
		t.Errorf("Saved catalog lost the update: %+v", again.Albums[0].Songs[1])
	}
}

func TestReadFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadFile(filepath.Join(dir, "absent.json")); err == nil {
		t.Error("Expected an error for a missing file")
	}

	broken := filepath.Join(dir, "broken.json")
	writeFile(t, broken, `{"albums": `)
	if _, err := ReadFile(broken); err == nil {
		t.Error("Expected an error for a truncated document")
	}

	if !IsRemote("https://cdn.example.com/albums.json") || IsRemote("./public/data/albums.json") {
		t.Error("IsRemote misclassified a source")
	}
}

type recordingSink struct {
	mu     sync.Mutex
	albums [][]models.Album
}

func (s *recordingSink) SetAlbums(albums []models.Album) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.albums = append(s.albums, albums)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.albums)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "albums.json")
	writeFile(t, source, sampleJSON)

	loader := NewLoader(nil, nil, "", quietLogger())
	sink := &recordingSink{}
	w, err := NewWatcher(loader, source, sink)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer func() {
		cancel()
		<-w.Done()
	}()

	// unrelated files and broken documents do not reach the sink
	writeFile(t, filepath.Join(dir, "notes.txt"), "hello")
	writeFile(t, source, `{"albums": [`)
	time.Sleep(2 * settleDelay)
	if sink.count() != 0 {
		t.Fatalf("Expected no reload for broken document, got %d", sink.count())
	}

	writeFile(t, source, sampleYAMLAsJSON)
	deadline := time.Now().Add(3 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if sink.count() == 0 {
		t.Fatal("Expected the watcher to push reloaded albums")
	}
	sink.mu.Lock()
	got := sink.albums[len(sink.albums)-1]
	sink.mu.Unlock()
	if len(got) != 1 || got[0].ID != "live" {
		t.Errorf("Unexpected reloaded albums %+v", got)
	}
}

const sampleYAMLAsJSON = `{"albums": [{"id": "live", "name": "现场", "songs": []}]}`

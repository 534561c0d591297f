package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nufang/internal/catalog"
	"nufang/internal/config"
	"nufang/internal/database"
	"nufang/pkg/models"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	musicRoot  string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	musicRoot := filepath.Join(base, "music")
	if err := os.MkdirAll(musicRoot, 0o755); err != nil {
		t.Fatalf("mkdir music: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Server.MusicRoot = musicRoot
	cfg.Catalog.Source = filepath.Join(base, "albums.json")
	cfg.Database.Path = filepath.Join(base, "nufang.db")
	cfg.Player.Output = "silent"

	configPath := filepath.Join(base, "config.toml")
	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("save config: %v", err)
	}

	writeCatalog(t, cfg.Catalog.Source, models.Catalog{Albums: []models.Album{
		{
			ID:   "a1",
			Name: "山海",
			Year: "2024",
			Type: models.AlbumStudio,
			Songs: []models.Track{
				{ID: "a1-1", Title: "晚风", FilePath: "/music/wind.wav"},
				{ID: "a1-2", Title: "潮汐", FilePath: "/music/missing.mp3", Duration: 95},
			},
		},
	}})

	return &cliTestEnv{cfg: cfg, configPath: configPath, musicRoot: musicRoot}
}

func writeCatalog(t *testing.T, path string, cat models.Catalog) {
	t.Helper()
	if err := catalog.Save(path, cat); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	full := append([]string{"--config", configPath, "--env-file", filepath.Join(t.TempDir(), "absent.env")}, args...)
	cmd.SetArgs(full)
	err := cmd.Execute()
	return out.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func writeWAV(t *testing.T, path string, seconds int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 8000, 16, 1, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           make([]int, 8000*seconds),
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatalf("write samples: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.musicRoot)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, err = runCLI(t, []string{"config", "init"}, target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote default configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, []string{"config", "init"}, target); err == nil {
		t.Fatal("expected config init to refuse overwriting")
	}
	if _, err := runCLI(t, []string{"config", "init", "--overwrite"}, target); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestAlbumsList(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, []string{"albums"}, env.configPath)
	if err != nil {
		t.Fatalf("albums: %v", err)
	}
	requireContains(t, out, "山海")
	requireContains(t, out, "2024")
	requireContains(t, out, "1:35")
}

func TestAlbumsDurations(t *testing.T) {
	env := setupCLITestEnv(t)
	writeWAV(t, filepath.Join(env.musicRoot, "wind.wav"), 3)

	out, err := runCLI(t, []string{"albums", "durations", "--dry-run"}, env.configPath)
	if err != nil {
		t.Fatalf("albums durations --dry-run: %v", err)
	}
	requireContains(t, out, "Catalog left unchanged")

	out, err = runCLI(t, []string{"albums", "durations"}, env.configPath)
	if err != nil {
		t.Fatalf("albums durations: %v", err)
	}
	requireContains(t, out, "Wrote 1 durations")

	cat, err := catalog.ReadFile(env.cfg.Catalog.Source)
	if err != nil {
		t.Fatalf("read catalog: %v", err)
	}
	songs := cat.Albums[0].Songs
	if songs[0].Duration != 3 {
		t.Errorf("expected probed duration 3, got %v", songs[0].Duration)
	}
	if songs[1].Duration != 95 {
		t.Errorf("expected missing file to keep its duration, got %v", songs[1].Duration)
	}
}

func TestHistoryCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	db, err := database.NewDatabase(env.cfg.Database.Path, logger)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	track := models.Track{ID: "a1-1", Title: "晚风", Album: "山海"}
	for i := 0; i < 3; i++ {
		if _, err := db.RecordPlay(track, time.Now().Add(time.Duration(-i)*time.Minute)); err != nil {
			t.Fatalf("record play: %v", err)
		}
	}
	db.Close()

	out, err := runCLI(t, []string{"history", "-n", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "晚风")

	out, err = runCLI(t, []string{"history", "--top"}, env.configPath)
	if err != nil {
		t.Fatalf("history --top: %v", err)
	}
	requireContains(t, out, "3")

	if _, err := runCLI(t, []string{"history", "-n", "0"}, env.configPath); err == nil {
		t.Fatal("expected a non-positive limit to fail")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[float64]string{
		0:     "-",
		-4:    "-",
		59.6:  "1:00",
		95:    "1:35",
		3600:  "60:00",
		200.2: "3:20",
	}
	for in, want := range tests {
		if got := formatDuration(in); got != want {
			t.Errorf("formatDuration(%v) = %q, want %q", in, got, want)
		}
	}
}

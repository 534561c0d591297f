// Package catalog loads the album catalog document and keeps it current.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"nufang/pkg/models"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// maxDocumentSize caps a fetched catalog document
const maxDocumentSize = 8 << 20

// Placeholder identifiers used when no catalog can be read
const (
	PlaceholderAlbumID = "demo"
	PlaceholderSongID  = "demo-1"
)

// DurationProber measures audio files on disk
type DurationProber interface {
	ProbeDuration(path string) (float64, error)
}

// Loader reads catalog documents from files or URLs
type Loader struct {
	client    *http.Client
	prober    DurationProber
	musicRoot string
	logger    *logrus.Logger
}

// NewLoader creates a loader. prober may be nil to skip duration probing;
// musicRoot is the directory that "/music/..." paths map onto.
func NewLoader(client *http.Client, prober DurationProber, musicRoot string, logger *logrus.Logger) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Loader{
		client:    client,
		prober:    prober,
		musicRoot: musicRoot,
		logger:    logger,
	}
}

// Placeholder returns the single album used when the catalog is unavailable
func Placeholder() []models.Album {
	return []models.Album{
		{
			ID:   PlaceholderAlbumID,
			Name: "演示专辑",
			Year: "2025",
			Songs: []models.Track{
				{
					ID:       PlaceholderSongID,
					Title:    "演示歌曲",
					Album:    "演示专辑",
					FilePath: "/music/demo.mp3",
				},
			},
		},
	}
}

// Load returns the enriched albums of source. Any failure is logged and the
// placeholder album is returned instead; Load never returns an empty result
// because of an error.
func (l *Loader) Load(ctx context.Context, source string) []models.Album {
	albums, err := l.Fetch(ctx, source)
	if err != nil {
		l.logger.WithError(err).WithField("source", source).Error("Failed to load album catalog, using placeholder")
		return enrich(Placeholder())
	}

	l.logger.WithFields(logrus.Fields{
		"source": source,
		"albums": len(albums),
	}).Info("Album catalog loaded")
	return albums
}

// Fetch reads and parses source, enriches its albums and fills in missing
// durations for files under the music root.
func (l *Loader) Fetch(ctx context.Context, source string) ([]models.Album, error) {
	data, err := l.read(ctx, source)
	if err != nil {
		return nil, err
	}

	cat, err := Parse(data, formatOf(source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source, err)
	}

	albums := enrich(cat.Albums)
	if l.prober != nil {
		l.probeMissing(albums)
	}
	return albums, nil
}

func (l *Loader) read(ctx context.Context, source string) ([]byte, error) {
	if source == "" {
		return nil, errors.New("no catalog source configured")
	}

	if !IsRemote(source) {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch catalog: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog body: %w", err)
	}
	return data, nil
}

// Parse decodes a catalog document. format is "json" or "yaml".
func Parse(data []byte, format string) (models.Catalog, error) {
	var cat models.Catalog
	var err error
	switch format {
	case "yaml":
		err = yaml.Unmarshal(data, &cat)
	default:
		err = json.Unmarshal(data, &cat)
	}
	if err != nil {
		return models.Catalog{}, err
	}
	if cat.Albums == nil {
		return models.Catalog{}, errors.New("document has no albums array")
	}
	return cat, nil
}

// ReadFile reads and parses the catalog document at path without enriching it
func ReadFile(path string) (models.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Catalog{}, fmt.Errorf("failed to read catalog: %w", err)
	}
	cat, err := Parse(data, formatOf(path))
	if err != nil {
		return models.Catalog{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cat, nil
}

// Save writes cat to path in the format implied by its extension
func Save(path string, cat models.Catalog) error {
	var (
		data []byte
		err  error
	)
	if formatOf(path) == "yaml" {
		data, err = yaml.Marshal(cat)
	} else {
		data, err = json.MarshalIndent(cat, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return nil
}

// LocalPath maps a track's filePath onto the music root. It reports false
// for remote locators and paths escaping the root.
func LocalPath(musicRoot, filePath string) (string, bool) {
	if musicRoot == "" || IsRemote(filePath) || strings.HasPrefix(filePath, "data:") || strings.HasPrefix(filePath, "blob:") {
		return "", false
	}

	rel := strings.TrimPrefix(filePath, "/music/")
	rel = strings.TrimPrefix(rel, "/")
	full := filepath.Join(musicRoot, filepath.FromSlash(rel))

	root, err := filepath.Abs(musicRoot)
	if err != nil {
		return "", false
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", false
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", false
	}
	return abs, true
}

func (l *Loader) probeMissing(albums []models.Album) {
	for i := range albums {
		for j := range albums[i].Songs {
			song := &albums[i].Songs[j]
			if song.HasDuration() {
				continue
			}
			path, ok := LocalPath(l.musicRoot, song.FilePath)
			if !ok {
				continue
			}
			if _, err := os.Stat(path); err != nil {
				continue
			}
			d, err := l.prober.ProbeDuration(path)
			if err != nil {
				l.logger.WithError(err).WithField("file_path", path).Debug("Could not probe duration")
				continue
			}
			song.Duration = d
		}
	}
}

// DurationReport summarises an UpdateDurations run
type DurationReport struct {
	Total   int
	Updated int
	Missing int
	Failed  int
}

// UpdateDurations probes every song under musicRoot and stores its length
// rounded to whole seconds. Songs whose file is absent or unreadable keep
// their previous value.
func UpdateDurations(albums []models.Album, musicRoot string, prober DurationProber) DurationReport {
	var report DurationReport
	for i := range albums {
		for j := range albums[i].Songs {
			song := &albums[i].Songs[j]
			report.Total++

			path, ok := LocalPath(musicRoot, song.FilePath)
			if !ok {
				report.Missing++
				continue
			}
			if _, err := os.Stat(path); err != nil {
				report.Missing++
				continue
			}
			d, err := prober.ProbeDuration(path)
			if err != nil {
				report.Failed++
				continue
			}
			rounded := math.Round(d)
			if rounded != song.Duration {
				song.Duration = rounded
				report.Updated++
			}
		}
	}
	return report
}

func enrich(albums []models.Album) []models.Album {
	out := make([]models.Album, len(albums))
	for i, album := range albums {
		out[i] = album.Enriched()
	}
	return out
}

// IsRemote reports whether source is fetched over HTTP
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func formatOf(source string) string {
	path := source
	if i := strings.IndexAny(path, "?#"); i >= 0 && IsRemote(source) {
		path = path[:i]
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

package metadata

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"nufang/internal/cache"
	"nufang/pkg/models"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// SupportedFormats lists the extensions the extractor can probe
var SupportedFormats = []string{".mp3", ".flac", ".wav", ".m4a"}

// ErrUnsupported is returned for files with an extension the extractor does not know
var ErrUnsupported = errors.New("unsupported format")

// Extractor probes audio files for their length and tags
type Extractor struct {
	logger        *logrus.Logger
	durations     *cache.DurationCache
	albumArtCache map[string][]byte
	albumArtMux   sync.RWMutex
}

// NewExtractor creates a new metadata extractor. A nil cache disables memoisation.
func NewExtractor(durations *cache.DurationCache, logger *logrus.Logger) *Extractor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Extractor{
		logger:        logger,
		durations:     durations,
		albumArtCache: make(map[string][]byte),
	}
}

// ProbeDuration returns the length of the file at path in seconds
func (e *Extractor) ProbeDuration(path string) (float64, error) {
	if e.durations != nil {
		if d, ok := e.durations.GetDuration(path); ok {
			return d, nil
		}
	}

	startTime := time.Now()
	d, err := e.calculateDuration(path)
	if err != nil {
		return 0, err
	}

	if e.durations != nil {
		e.durations.SetDuration(path, d)
	}
	e.logger.WithFields(logrus.Fields{
		"filePath":       path,
		"duration":       d,
		"processingTime": time.Since(startTime),
	}).Debug("Probed duration")
	return d, nil
}

// DescribeFile builds a track from the tags of the file at path. locator is
// stored as the track's file path; the title falls back to the file name.
func (e *Extractor) DescribeFile(path, locator string) (models.Track, error) {
	if e.durations != nil {
		if t, ok := e.durations.GetTrack(path); ok {
			return t, nil
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return models.Track{}, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	album := ""
	cover := ""

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": path,
			"error":    err.Error(),
		}).Debug("No readable tags, using filename")
	} else {
		if metadata.Title() != "" {
			title = metadata.Title()
		}
		album = metadata.Album()
		if artID, ok := e.extractAlbumArt(metadata); ok {
			cover = "/api/art/" + artID
		}
	}

	track := models.NewTrack(title, album, locator)
	track.CoverImage = cover
	if d, err := e.ProbeDuration(path); err == nil {
		track.Duration = d
	} else {
		e.logger.WithError(err).WithField("filePath", path).Warn("Failed to calculate duration")
	}

	if e.durations != nil {
		e.durations.SetTrack(path, track)
	}
	return track, nil
}

// calculateDuration dispatches on extension
func (e *Extractor) calculateDuration(path string) (float64, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp3":
		return e.durationMP3(path)
	case ".flac":
		return durationFLAC(path)
	case ".wav":
		return durationWAV(path)
	case ".m4a":
		return durationM4A(path)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

// MP3 duration by walking frames; falls back to a bitrate estimate when no frame decodes.
func (e *Extractor) durationMP3(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var (
		total   time.Duration
		skipped int
		frames  int
	)
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 {
				e.logger.WithField("filePath", path).Debug("No mp3 frames decoded, estimating from size")
				return estimateFromFileSize(f, 192000)
			}
			break
		}
		total += fr.Duration()
		frames++
	}
	if frames == 0 {
		return 0, errors.New("no mp3 frames found")
	}
	return total.Seconds(), nil
}

// FLAC duration via the STREAMINFO block
func durationFLAC(path string) (float64, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		return float64(si.NSamples) / float64(si.SampleRate), nil
	}
	return 0, errors.New("flac stream missing sample info")
}

// WAV duration from the header and PCM chunk size
func durationWAV(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, errors.New("invalid wav file")
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("invalid wav header: %w", err)
	}
	return d.Seconds(), nil
}

// M4A duration from the mvhd atom inside moov
func durationM4A(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	head := make([]byte, 8)
	for {
		if _, err := io.ReadFull(f, head); err != nil {
			return 0, fmt.Errorf("moov atom not found: %w", err)
		}
		size := int64(binary.BigEndian.Uint32(head[0:4]))
		if size < 8 {
			return 0, errors.New("invalid atom size")
		}
		if string(head[4:8]) == "moov" {
			return scanMVHD(f, size-8)
		}
		if _, err := f.Seek(size-8, io.SeekCurrent); err != nil {
			return 0, err
		}
	}
}

func scanMVHD(f io.ReadSeeker, limit int64) (float64, error) {
	head := make([]byte, 8)
	for read := int64(0); read < limit; {
		if _, err := io.ReadFull(f, head); err != nil {
			return 0, err
		}
		size := int64(binary.BigEndian.Uint32(head[0:4]))
		if size < 8 {
			return 0, errors.New("invalid sub-atom size")
		}
		if string(head[4:8]) != "mvhd" {
			if _, err := f.Seek(size-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			read += size
			continue
		}

		version := make([]byte, 4) // version + flags
		if _, err := io.ReadFull(f, version); err != nil {
			return 0, err
		}
		var timescale, units uint64
		if version[0] == 1 {
			buf := make([]byte, 8+8+4+8)
			if _, err := io.ReadFull(f, buf); err != nil {
				return 0, err
			}
			timescale = uint64(binary.BigEndian.Uint32(buf[16:20]))
			units = binary.BigEndian.Uint64(buf[20:28])
		} else {
			buf := make([]byte, 4+4+4+4)
			if _, err := io.ReadFull(f, buf); err != nil {
				return 0, err
			}
			timescale = uint64(binary.BigEndian.Uint32(buf[8:12]))
			units = uint64(binary.BigEndian.Uint32(buf[12:16]))
		}
		if timescale == 0 {
			return 0, errors.New("invalid timescale")
		}
		return float64(units) / float64(timescale), nil
	}
	return 0, errors.New("mvhd atom not found")
}

// estimateFromFileSize is the last resort when parsing fails
func estimateFromFileSize(f *os.File, bitrate int) (float64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if bitrate <= 0 {
		return 0, errors.New("invalid bitrate")
	}
	return float64(st.Size()*8) / float64(bitrate), nil
}

// extractAlbumArt caches embedded artwork under its content hash
func (e *Extractor) extractAlbumArt(metadata tag.Metadata) (string, bool) {
	picture := metadata.Picture()
	if picture == nil || len(picture.Data) == 0 {
		return "", false
	}

	hash := md5.Sum(picture.Data)
	artID := fmt.Sprintf("%x", hash)

	e.albumArtMux.Lock()
	e.albumArtCache[artID] = picture.Data
	e.albumArtMux.Unlock()

	return artID, true
}

// GetAlbumArt retrieves cached album art by ID
func (e *Extractor) GetAlbumArt(artID string) ([]byte, bool) {
	e.albumArtMux.RLock()
	data, exists := e.albumArtCache[artID]
	e.albumArtMux.RUnlock()
	return data, exists
}

// GetAlbumArtMimeType guesses the MIME type from the image header
func GetAlbumArtMimeType(data []byte) string {
	if len(data) < 4 {
		return "application/octet-stream"
	}

	if data[0] == 0xFF && data[1] == 0xD8 {
		return "image/jpeg"
	}
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 {
		return "image/gif"
	}

	return "application/octet-stream"
}

// IsAudioFile checks if a file has a supported audio extension
func IsAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// GetContentType returns the MIME type for an audio file
func GetContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}

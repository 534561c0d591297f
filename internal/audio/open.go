// Package audio provides player outputs: a speaker backed by beep and a
// silent virtual clock for headless hosts.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned for resources no decoder handles
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// maxRemoteSize caps how much of a remote resource is buffered in memory
const maxRemoteSize = 256 << 20

// open returns a seekable reader for locator: a local file or an http(s) URL
// fetched into memory.
func open(ctx context.Context, client *http.Client, locator string) (io.ReadCloser, error) {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", locator, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("failed to fetch %s: status %d", locator, resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSize))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", locator, err)
		}
		return nopCloser{bytes.NewReader(data)}, nil
	}

	if strings.HasPrefix(locator, "data:") || strings.HasPrefix(locator, "blob:") {
		return nil, fmt.Errorf("%w: %s locators", ErrUnsupportedFormat, strings.SplitN(locator, ":", 2)[0])
	}

	file, err := os.Open(locator)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	return file, nil
}

// decode opens locator and picks a decoder from its extension
func decode(ctx context.Context, client *http.Client, locator string) (beep.StreamSeekCloser, beep.Format, error) {
	ext := extension(locator)
	switch ext {
	case ".mp3", ".flac", ".wav":
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	rc, err := open(ctx, client, locator)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(rc)
	case ".flac":
		streamer, format, err = flac.Decode(rc)
	case ".wav":
		streamer, format, err = wav.Decode(rc)
	}
	if err != nil {
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("failed to decode %s: %w", locator, err)
	}
	return streamer, format, nil
}

// length returns the total duration of a decoded stream
func length(streamer beep.StreamSeekCloser, format beep.Format) time.Duration {
	if streamer.Len() <= 0 {
		return 0
	}
	return format.SampleRate.D(streamer.Len())
}

func extension(locator string) string {
	path := locator
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" && u.Path != "" {
		path = u.Path
	}
	return strings.ToLower(filepath.Ext(path))
}

// nopCloser wraps a bytes.Reader to implement io.ReadCloser.
type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"nufang/internal/metadata"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

const (
	// Buffer size for streaming (64KB)
	streamBufferSize = 64 * 1024
)

// handleStreamMusic serves audio files below the music root so catalog
// locators like /music/demo.mp3 resolve against this server.
func (ms *MusicServer) handleStreamMusic(w http.ResponseWriter, r *http.Request) {
	rel := sanitizeInput(chi.URLParam(r, "*"))
	if rel == "" {
		ms.respondWithError(w, r, http.StatusNotFound, "File not found", nil)
		return
	}

	absPath, verr := ms.validateFilePath(rel)
	if verr == nil {
		verr = validateContentType(absPath)
	}
	if verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	err := ms.streamFile(w, r, absPath, metadata.GetContentType(absPath))
	switch {
	case errors.Is(err, os.ErrNotExist):
		ms.respondWithError(w, r, http.StatusNotFound, "File not found", nil)
	case err != nil:
		ms.logger.WithError(err).WithField("path", rel).Warn("Error streaming file")
	}
}

// streamFile writes the file with caching headers and single-range support
func (ms *MusicServer) streamFile(w http.ResponseWriter, r *http.Request, filePath string, contentType string) error {
	stat, err := os.Stat(filePath)
	if err != nil {
		return err
	}
	if stat.IsDir() {
		return os.ErrNotExist
	}

	fileSize := stat.Size()
	etag := fmt.Sprintf(`"%d-%d"`, stat.ModTime().Unix(), fileSize)

	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		return ms.handleRangeRequest(w, r, file, fileSize, rangeHeader)
	}

	w.Header().Set("Content-Length", strconv.FormatInt(fileSize, 10))
	if r.Method == http.MethodHead {
		return nil
	}

	ms.logger.WithFields(logrus.Fields{
		"path": filePath,
		"size": formatBytes(int(fileSize)),
	}).Debug("Streaming file")

	bufferedReader := bufio.NewReaderSize(file, streamBufferSize)
	buffer := make([]byte, streamBufferSize)
	if _, err := io.CopyBuffer(w, bufferedReader, buffer); err != nil {
		return fmt.Errorf("error streaming file: %w", err)
	}
	return nil
}

// handleRangeRequest implements single-range byte serving for seeking
func (ms *MusicServer) handleRangeRequest(w http.ResponseWriter, r *http.Request, file *os.File, fileSize int64, rangeHeader string) error {
	start, end, ok := parseRange(rangeHeader, fileSize)
	if !ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", fileSize))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	contentLength := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, fileSize))
	w.Header().Set("Content-Length", strconv.FormatInt(contentLength, 10))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.CopyN(w, file, contentLength); err != nil {
		return fmt.Errorf("error streaming range: %w", err)
	}
	return nil
}

// parseRange reads "bytes=start-end", "bytes=start-" and "bytes=-suffix".
// An end past the file is clamped to the last byte.
func parseRange(header string, fileSize int64) (int64, int64, bool) {
	ranges, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(ranges, ",") || fileSize == 0 {
		return 0, 0, false
	}
	first, last, found := strings.Cut(strings.TrimSpace(ranges), "-")
	if !found {
		return 0, 0, false
	}

	if first == "" {
		suffix, err := strconv.ParseInt(last, 10, 64)
		if err != nil || suffix <= 0 {
			return 0, 0, false
		}
		if suffix > fileSize {
			suffix = fileSize
		}
		return fileSize - suffix, fileSize - 1, true
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 || start >= fileSize {
		return 0, 0, false
	}
	end := fileSize - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}
		if end >= fileSize {
			end = fileSize - 1
		}
	}
	return start, end, true
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"nufang/internal/metadata"

	"github.com/sirupsen/logrus"
)

// maxBodySize caps request bodies on the control surface
const maxBodySize = 1 << 20

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// respondJSON writes v as a JSON body with the given status
func (ms *MusicServer) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ms.logger.WithError(err).Warn("Failed to encode response")
	}
}

// respondWithValidationError sends a structured validation error response
func (ms *MusicServer) respondWithValidationError(w http.ResponseWriter, r *http.Request, errors []ValidationError) {
	ms.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"errors": errors,
	}).Warn("Validation failed")

	ms.respondJSON(w, http.StatusBadRequest, ValidationResult{
		Valid:  false,
		Errors: errors,
	})
}

// respondWithError sends a structured error response
func (ms *MusicServer) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	logEntry := ms.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": statusCode,
		"message":     message,
	})

	if err != nil {
		logEntry = logEntry.WithError(err)
	}

	if statusCode >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Warn("Client error")
	}

	ms.respondJSON(w, statusCode, map[string]any{
		"error":   message,
		"code":    statusCode,
		"success": false,
	})
}

// decodeBody reads a JSON request body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) *ValidationError {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &ValidationError{
			Field:   "body",
			Message: fmt.Sprintf("Invalid JSON body: %v", err),
			Code:    "INVALID_JSON",
		}
	}
	return nil
}

// validateID checks a track or album identifier taken from a path or body
func validateID(field, id string) *ValidationError {
	code := strings.ToUpper(field)
	if id == "" {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Code:    "MISSING_" + code,
		}
	}
	if len(id) > 256 {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s too long (max 256 characters)", field),
			Code:    code + "_TOO_LONG",
		}
	}
	if strings.ContainsAny(id, "\x00\r\n") {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s contains invalid characters", field),
			Code:    "INVALID_" + code + "_CHARACTERS",
		}
	}
	return nil
}

// validateIndex parses a playlist index from the URL path
func validateIndex(raw string) (int, *ValidationError) {
	if raw == "" {
		return 0, &ValidationError{
			Field:   "index",
			Message: "Index is required",
			Code:    "MISSING_INDEX",
		}
	}

	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ValidationError{
			Field:   "index",
			Message: "Index must be a valid integer",
			Code:    "INVALID_INDEX_FORMAT",
		}
	}

	if index < 0 {
		return 0, &ValidationError{
			Field:   "index",
			Message: "Index cannot be negative",
			Code:    "INVALID_INDEX_VALUE",
		}
	}

	return index, nil
}

// validateSeconds checks a required finite number of seconds
func validateSeconds(field string, v *float64) *ValidationError {
	if v == nil {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Code:    "MISSING_" + strings.ToUpper(field),
		}
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a finite number", field),
			Code:    "INVALID_" + strings.ToUpper(field),
		}
	}
	return nil
}

// validateFilePath ensures a path resolves inside the music root and returns
// the absolute path.
func (ms *MusicServer) validateFilePath(filePath string) (string, *ValidationError) {
	absMusicDir, err := filepath.Abs(ms.config.Server.MusicRoot)
	if err != nil || ms.config.Server.MusicRoot == "" {
		return "", &ValidationError{
			Field:   "file_path",
			Message: "Server configuration error",
			Code:    "CONFIG_ERROR",
		}
	}

	cleanPath := filepath.Clean(filePath)
	if !filepath.IsAbs(cleanPath) {
		cleanPath = filepath.Join(absMusicDir, cleanPath)
	}
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return "", &ValidationError{
			Field:   "file_path",
			Message: "Invalid file path",
			Code:    "INVALID_FILE_PATH",
		}
	}

	relPath, err := filepath.Rel(absMusicDir, absPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", &ValidationError{
			Field:   "file_path",
			Message: "File path outside allowed directory",
			Code:    "PATH_TRAVERSAL_DENIED",
		}
	}

	return absPath, nil
}

// validateContentType rejects files the player cannot decode
func validateContentType(filePath string) *ValidationError {
	if !metadata.IsAudioFile(filePath) {
		return &ValidationError{
			Field:   "file_type",
			Message: fmt.Sprintf("Unsupported file type: %s", strings.ToLower(filepath.Ext(filePath))),
			Code:    "UNSUPPORTED_FILE_TYPE",
		}
	}
	return nil
}

// sanitizeInput strips null bytes and surrounding whitespace
func sanitizeInput(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

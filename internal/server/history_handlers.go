package server

import (
	"net/http"
	"strconv"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// parseLimit reads ?limit=N, falling back to the default
func parseLimit(r *http.Request) (int, *ValidationError) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxHistoryLimit {
		return 0, &ValidationError{
			Field:   "limit",
			Message: "limit must be an integer between 1 and 500",
			Code:    "INVALID_LIMIT",
		}
	}
	return limit, nil
}

// handleGetHistory returns the most recent plays
func (ms *MusicServer) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if ms.history == nil {
		ms.respondWithError(w, r, http.StatusServiceUnavailable, "Play history is disabled", nil)
		return
	}
	limit, verr := parseLimit(r)
	if verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	plays, err := ms.history.RecentPlays(limit)
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving history", err)
		return
	}
	ms.respondJSON(w, http.StatusOK, map[string]any{"plays": plays})
}

// handleGetTopTracks returns the most played tracks
func (ms *MusicServer) handleGetTopTracks(w http.ResponseWriter, r *http.Request) {
	if ms.history == nil {
		ms.respondWithError(w, r, http.StatusServiceUnavailable, "Play history is disabled", nil)
		return
	}
	limit, verr := parseLimit(r)
	if verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	counts, err := ms.history.TopTracks(limit)
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving play counts", err)
		return
	}
	ms.respondJSON(w, http.StatusOK, map[string]any{"tracks": counts})
}

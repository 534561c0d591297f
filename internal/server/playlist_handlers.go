package server

import (
	"net/http"
	"strings"

	"nufang/pkg/models"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// PlaylistResponse is the playlist with the index of the current entry
type PlaylistResponse struct {
	Tracks       []models.Track `json:"tracks"`
	CurrentIndex int            `json:"currentIndex"`
	Mode         string         `json:"mode"`
	ShuffleOrder []string       `json:"shuffleOrder,omitempty"`
}

func (ms *MusicServer) playlistResponse() PlaylistResponse {
	tracks, index := ms.player.Playlist()
	return PlaylistResponse{
		Tracks:       tracks,
		CurrentIndex: index,
		Mode:         string(ms.player.Mode()),
		ShuffleOrder: ms.player.ShuffleOrder(),
	}
}

// handleGetPlaylist returns the playlist
func (ms *MusicServer) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	ms.respondJSON(w, http.StatusOK, ms.playlistResponse())
}

// handleAppendTrack queues a catalog track by id, an inline track, or an
// audio file under the music root.
func (ms *MusicServer) handleAppendTrack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackID  string        `json:"trackId,omitempty"`
		Track    *models.Track `json:"track,omitempty"`
		FilePath string        `json:"filePath,omitempty"`
	}
	if verr := decodeBody(r, &req); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	var track models.Track
	switch {
	case req.Track != nil:
		if verr := validateID("track.id", req.Track.ID); verr != nil {
			ms.respondWithValidationError(w, r, []ValidationError{*verr})
			return
		}
		track = *req.Track

	case req.TrackID != "":
		id := sanitizeInput(req.TrackID)
		if verr := validateID("trackId", id); verr != nil {
			ms.respondWithValidationError(w, r, []ValidationError{*verr})
			return
		}
		song, _, ok := ms.player.FindTrack(id)
		if !ok {
			ms.respondWithError(w, r, http.StatusNotFound, "Track not found", nil)
			return
		}
		track = song

	case req.FilePath != "":
		described, ok := ms.describeFile(w, r, sanitizeInput(req.FilePath))
		if !ok {
			return
		}
		track = described

	default:
		ms.respondWithValidationError(w, r, []ValidationError{{
			Field:   "trackId",
			Message: "One of trackId, track or filePath is required",
			Code:    "MISSING_TRACK",
		}})
		return
	}

	added := ms.player.Append(track)
	ms.respondJSON(w, http.StatusOK, map[string]any{
		"added":    added,
		"track":    track,
		"playlist": ms.playlistResponse(),
	})
}

// describeFile builds a track for an audio file under the music root
func (ms *MusicServer) describeFile(w http.ResponseWriter, r *http.Request, filePath string) (models.Track, bool) {
	rel := strings.TrimPrefix(strings.TrimPrefix(filePath, "/music/"), "/")
	absPath, verr := ms.validateFilePath(rel)
	if verr == nil {
		verr = validateContentType(absPath)
	}
	if verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return models.Track{}, false
	}
	if ms.extractor == nil {
		ms.respondWithError(w, r, http.StatusServiceUnavailable, "Metadata extraction unavailable", nil)
		return models.Track{}, false
	}

	track, err := ms.extractor.DescribeFile(absPath, "/music/"+rel)
	if err != nil {
		ms.respondWithError(w, r, http.StatusNotFound, "Audio file not readable", err)
		return models.Track{}, false
	}
	return track, true
}

// handleAppendAlbum queues every song of a catalog album
func (ms *MusicServer) handleAppendAlbum(w http.ResponseWriter, r *http.Request) {
	albumID := chi.URLParam(r, "albumID")
	if verr := validateID("albumId", albumID); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	album, ok := ms.player.Album(albumID)
	if !ok {
		ms.respondWithError(w, r, http.StatusNotFound, "Album not found", nil)
		return
	}

	added := ms.player.AppendAlbum(album)
	ms.logger.WithFields(logrus.Fields{
		"album_id": albumID,
		"added":    added,
	}).Debug("Album queued")
	ms.respondJSON(w, http.StatusOK, map[string]any{
		"added":    added,
		"playlist": ms.playlistResponse(),
	})
}

// handleRemoveTrack drops a track from the playlist
func (ms *MusicServer) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "trackID")
	if verr := validateID("trackId", trackID); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	if !ms.player.Remove(trackID) {
		ms.respondWithError(w, r, http.StatusNotFound, "Track not in playlist", nil)
		return
	}
	ms.respondJSON(w, http.StatusOK, ms.playlistResponse())
}

// handleClearPlaylist empties the playlist and stops playback
func (ms *MusicServer) handleClearPlaylist(w http.ResponseWriter, r *http.Request) {
	ms.player.Clear()
	ms.respondJSON(w, http.StatusOK, ms.playlistResponse())
}

// handlePlayAt starts the playlist entry at index
func (ms *MusicServer) handlePlayAt(w http.ResponseWriter, r *http.Request) {
	index, verr := validateIndex(chi.URLParam(r, "index"))
	if verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	if !ms.player.PlayAt(detached(r), index) {
		ms.respondWithError(w, r, http.StatusNotFound, "No playlist entry at index", nil)
		return
	}
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

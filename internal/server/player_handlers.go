package server

import (
	"net/http"

	"nufang/internal/playlist"
	"nufang/pkg/models"
)

type playRequest struct {
	TrackID string        `json:"trackId,omitempty"`
	AlbumID string        `json:"albumId,omitempty"`
	Track   *models.Track `json:"track,omitempty"`
	Album   *models.Album `json:"album,omitempty"`
}

// handleGetPlayerState returns the current player state
func (ms *MusicServer) handleGetPlayerState(w http.ResponseWriter, r *http.Request) {
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

// handlePlay starts a track, either by catalog identifiers or given inline
func (ms *MusicServer) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if verr := decodeBody(r, &req); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}
	req.TrackID = sanitizeInput(req.TrackID)
	req.AlbumID = sanitizeInput(req.AlbumID)

	track, album, status, verrs := ms.resolvePlayRequest(req)
	if len(verrs) > 0 {
		ms.respondWithValidationError(w, r, verrs)
		return
	}
	if status != http.StatusOK {
		ms.respondWithError(w, r, status, "Track or album not found", nil)
		return
	}

	ms.player.Play(detached(r), track, album)
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

// resolvePlayRequest turns a play request into a track and optional album
func (ms *MusicServer) resolvePlayRequest(req playRequest) (models.Track, *models.Album, int, []ValidationError) {
	switch {
	case req.Track != nil:
		if verr := validateID("track.id", req.Track.ID); verr != nil {
			return models.Track{}, nil, 0, []ValidationError{*verr}
		}
		return *req.Track, req.Album, http.StatusOK, nil

	case req.AlbumID != "":
		if verr := validateID("albumId", req.AlbumID); verr != nil {
			return models.Track{}, nil, 0, []ValidationError{*verr}
		}
		album, ok := ms.player.Album(req.AlbumID)
		if !ok || len(album.Songs) == 0 {
			return models.Track{}, nil, http.StatusNotFound, nil
		}
		if req.TrackID == "" {
			return album.Songs[0], &album, http.StatusOK, nil
		}
		song, ok := album.FindSong(req.TrackID)
		if !ok {
			return models.Track{}, nil, http.StatusNotFound, nil
		}
		return song, &album, http.StatusOK, nil

	case req.TrackID != "":
		if verr := validateID("trackId", req.TrackID); verr != nil {
			return models.Track{}, nil, 0, []ValidationError{*verr}
		}
		tracks, _ := ms.player.Playlist()
		for _, t := range tracks {
			if t.ID == req.TrackID {
				return t, nil, http.StatusOK, nil
			}
		}
		song, _, ok := ms.player.FindTrack(req.TrackID)
		if !ok {
			return models.Track{}, nil, http.StatusNotFound, nil
		}
		return song, nil, http.StatusOK, nil

	default:
		return models.Track{}, nil, 0, []ValidationError{{
			Field:   "trackId",
			Message: "One of trackId, albumId or track is required",
			Code:    "MISSING_PLAY_TARGET",
		}}
	}
}

func (ms *MusicServer) handlePause(w http.ResponseWriter, r *http.Request) {
	ms.player.Pause()
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

func (ms *MusicServer) handleResume(w http.ResponseWriter, r *http.Request) {
	ms.player.Resume(detached(r))
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

func (ms *MusicServer) handleStop(w http.ResponseWriter, r *http.Request) {
	ms.player.Stop()
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

func (ms *MusicServer) handleNext(w http.ResponseWriter, r *http.Request) {
	ms.player.Next(detached(r))
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

// handlePrevious is a no-op when there is nothing before the current track
func (ms *MusicServer) handlePrevious(w http.ResponseWriter, r *http.Request) {
	ms.player.Previous(detached(r))
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

func (ms *MusicServer) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time *float64 `json:"time"`
	}
	if verr := decodeBody(r, &req); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}
	if verr := validateSeconds("time", req.Time); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	ms.player.Seek(*req.Time)
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

// handleVolume passes the level through; the output decides what it accepts
func (ms *MusicServer) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
	}
	if verr := decodeBody(r, &req); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}
	if verr := validateSeconds("volume", req.Volume); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	ms.player.SetVolume(*req.Volume)
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

func (ms *MusicServer) handleMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if verr := decodeBody(r, &req); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	mode, err := playlist.ParseMode(sanitizeInput(req.Mode))
	if err != nil {
		ms.respondWithValidationError(w, r, []ValidationError{{
			Field:   "mode",
			Message: err.Error(),
			Code:    "INVALID_MODE",
		}})
		return
	}

	ms.player.SetMode(mode)
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

// handleReshuffle draws a new shuffle order in random mode
func (ms *MusicServer) handleReshuffle(w http.ResponseWriter, r *http.Request) {
	ms.player.Reshuffle()
	ms.respondJSON(w, http.StatusOK, map[string]any{
		"order": ms.player.ShuffleOrder(),
	})
}

// handleVisibility shows or hides the player and playlist panels. Omitted
// fields are left alone; "toggle" flips the current value.
func (ms *MusicServer) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player   *bool `json:"player,omitempty"`
		Playlist *bool `json:"playlist,omitempty"`
		Toggle   struct {
			Player   bool `json:"player,omitempty"`
			Playlist bool `json:"playlist,omitempty"`
		} `json:"toggle"`
	}
	if verr := decodeBody(r, &req); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	switch {
	case req.Toggle.Player:
		ms.player.TogglePlayer()
	case req.Player != nil && *req.Player:
		ms.player.ShowPlayer()
	case req.Player != nil:
		ms.player.HidePlayer()
	}

	switch {
	case req.Toggle.Playlist:
		ms.player.TogglePlaylist()
	case req.Playlist != nil && *req.Playlist:
		ms.player.ShowPlaylist()
	case req.Playlist != nil:
		ms.player.HidePlaylist()
	}

	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

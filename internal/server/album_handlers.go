package server

import (
	"net/http"

	"nufang/internal/metadata"

	"github.com/go-chi/chi/v5"
)

// handleGetAlbums returns the catalog
func (ms *MusicServer) handleGetAlbums(w http.ResponseWriter, r *http.Request) {
	ms.respondJSON(w, http.StatusOK, map[string]any{
		"albums": ms.player.Albums(),
	})
}

// handleGetAlbum returns one album
func (ms *MusicServer) handleGetAlbum(w http.ResponseWriter, r *http.Request) {
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
	ms.respondJSON(w, http.StatusOK, album)
}

// handleReloadAlbums re-reads the catalog source. A failed read falls back
// to the placeholder album like the initial load does.
func (ms *MusicServer) handleReloadAlbums(w http.ResponseWriter, r *http.Request) {
	if ms.catalog == nil {
		ms.respondWithError(w, r, http.StatusServiceUnavailable, "Catalog loading unavailable", nil)
		return
	}

	ms.reloadMu.Lock()
	albums := ms.catalog.Load(r.Context(), ms.config.Catalog.Source)
	ms.player.SetAlbums(albums)
	ms.reloadMu.Unlock()

	ms.respondJSON(w, http.StatusOK, map[string]any{
		"albums": ms.player.Albums(),
	})
}

// handleAlbumArt serves artwork embedded in files added from the music root
func (ms *MusicServer) handleAlbumArt(w http.ResponseWriter, r *http.Request) {
	artID := chi.URLParam(r, "artID")
	if verr := validateID("artId", artID); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}
	if ms.extractor == nil {
		ms.respondWithError(w, r, http.StatusNotFound, "Album art not found", nil)
		return
	}

	artData, exists := ms.extractor.GetAlbumArt(artID)
	if !exists {
		ms.respondWithError(w, r, http.StatusNotFound, "Album art not found", nil)
		return
	}

	w.Header().Set("Content-Type", metadata.GetAlbumArtMimeType(artData))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(artData)
}

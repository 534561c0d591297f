package server

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

// HealthStatus represents operational status for the /health endpoint.
type HealthStatus struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Database  string         `json:"database"`
	Storage   string         `json:"storage"`
	Player    string         `json:"player"`
	Albums    int            `json:"albumCount"`
	Playlist  int            `json:"playlistLength"`
	Details   map[string]any `json:"details,omitempty"`
}

// handleHealthCheck returns basic liveness + dependency checks.
func (ms *MusicServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	snap := ms.player.Snapshot()
	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Database:  "disabled",
		Storage:   "ok",
		Player:    string(snap.Status),
		Albums:    len(ms.player.Albums()),
		Playlist:  snap.PlaylistLength,
		Details:   make(map[string]any),
	}

	if ms.history != nil {
		health.Database = "ok"
		if err := ms.history.Ping(); err != nil {
			health.Status = "unhealthy"
			health.Database = "error"
			health.Details["database_error"] = err.Error()
		}
	}

	if err := ms.checkStorageHealth(); err != nil {
		health.Status = "unhealthy"
		health.Storage = "error"
		health.Details["storage_error"] = err.Error()
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	ms.respondJSON(w, status, health)
}

// checkStorageHealth verifies the music root is a readable directory
func (ms *MusicServer) checkStorageHealth() error {
	stat, err := os.Stat(ms.config.Server.MusicRoot)
	if err != nil {
		return err
	}
	if !stat.IsDir() {
		return fmt.Errorf("music root %s is not a directory", ms.config.Server.MusicRoot)
	}
	return nil
}

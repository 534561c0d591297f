package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"nufang/internal/catalog"
	"nufang/internal/config"
	"nufang/internal/database"
	"nufang/internal/metadata"
	"nufang/internal/player"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// HistoryStore serves the play history endpoints
type HistoryStore interface {
	RecentPlays(limit int) ([]database.Play, error)
	TopTracks(limit int) ([]database.PlayCount, error)
	Ping() error
}

// Dependencies are the components the control surface drives
type Dependencies struct {
	Player    *player.Controller
	Catalog   *catalog.Loader
	Extractor *metadata.Extractor
	History   HistoryStore // nil when play history is disabled
	Logger    *logrus.Logger
}

// MusicServer exposes the player over HTTP
type MusicServer struct {
	config    *config.Config
	logger    *logrus.Logger
	player    *player.Controller
	catalog   *catalog.Loader
	extractor *metadata.Extractor
	history   HistoryStore

	reloadMu sync.Mutex
	router   chi.Router
	server   *http.Server
}

// NewMusicServer creates a new server instance and builds its routes
func NewMusicServer(cfg *config.Config, deps Dependencies) *MusicServer {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}

	ms := &MusicServer{
		config:    cfg,
		logger:    logger,
		player:    deps.Player,
		catalog:   deps.Catalog,
		extractor: deps.Extractor,
		history:   deps.History,
	}
	ms.router = ms.setupRoutes()
	return ms
}

// Handler returns the routed handler
func (ms *MusicServer) Handler() http.Handler {
	return ms.router
}

func (ms *MusicServer) setupRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(ms.panicRecoveryMiddleware)
	r.Use(ms.requestLoggingMiddleware)
	r.Use(ms.corsMiddleware)

	r.Get("/health", ms.handleHealthCheck)
	r.Get("/music/*", ms.handleStreamMusic)
	r.Head("/music/*", ms.handleStreamMusic)

	r.Route("/api", func(r chi.Router) {
		r.Route("/player", func(r chi.Router) {
			r.Get("/state", ms.handleGetPlayerState)
			r.Post("/play", ms.handlePlay)
			r.Post("/pause", ms.handlePause)
			r.Post("/resume", ms.handleResume)
			r.Post("/stop", ms.handleStop)
			r.Post("/next", ms.handleNext)
			r.Post("/previous", ms.handlePrevious)
			r.Post("/seek", ms.handleSeek)
			r.Post("/volume", ms.handleVolume)
			r.Post("/mode", ms.handleMode)
			r.Post("/shuffle", ms.handleReshuffle)
			r.Post("/visibility", ms.handleVisibility)
		})

		r.Route("/playlist", func(r chi.Router) {
			r.Get("/", ms.handleGetPlaylist)
			r.Delete("/", ms.handleClearPlaylist)
			r.Post("/tracks", ms.handleAppendTrack)
			r.Delete("/tracks/{trackID}", ms.handleRemoveTrack)
			r.Post("/albums/{albumID}", ms.handleAppendAlbum)
			r.Post("/play/{index}", ms.handlePlayAt)
		})

		r.Get("/albums", ms.handleGetAlbums)
		r.Get("/albums/{albumID}", ms.handleGetAlbum)
		r.Post("/albums/reload", ms.handleReloadAlbums)
		r.Get("/art/{artID}", ms.handleAlbumArt)

		r.Get("/history", ms.handleGetHistory)
		r.Get("/history/top", ms.handleGetTopTracks)
	})

	return r
}

// Start serves until Shutdown is called
func (ms *MusicServer) Start() error {
	ms.server = &http.Server{
		Addr:              ms.config.GetAddress(),
		Handler:           ms.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(ms.config.Server.ReadTimeout) * time.Second,
	}

	ms.logger.WithFields(logrus.Fields{
		"address":    ms.config.GetAddress(),
		"music_root": ms.config.Server.MusicRoot,
	}).Info("Control surface listening")

	if err := ms.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (ms *MusicServer) Shutdown(ctx context.Context) error {
	if ms.server == nil {
		return nil
	}
	ms.logger.Info("Shutting down control surface")
	return ms.server.Shutdown(ctx)
}

// detached keeps playback commands running after the request that issued
// them has been answered or abandoned.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

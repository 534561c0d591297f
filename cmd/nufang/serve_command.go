package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"nufang/internal/audio"
	"nufang/internal/cache"
	"nufang/internal/catalog"
	"nufang/internal/config"
	"nufang/internal/database"
	"nufang/internal/history"
	"nufang/internal/metadata"
	"nufang/internal/ngrok"
	"nufang/internal/player"
	"nufang/internal/playlist"
	"nufang/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the player and its HTTP control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, logCloser, err := ctx.newLogger()
			if err != nil {
				return err
			}
			defer logCloser.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(runCtx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	if _, err := os.Stat(cfg.Server.MusicRoot); os.IsNotExist(err) {
		logger.WithField("music_root", cfg.Server.MusicRoot).Warn("Music directory does not exist; local files will not be served")
	}

	fetchTimeout := time.Duration(cfg.Player.FetchTimeout) * time.Second
	out, err := audio.New(cfg.Player.Output, fetchTimeout, logger)
	if err != nil {
		return fmt.Errorf("open audio output: %w", err)
	}
	defer out.Close()

	ctrl := player.NewController(out, player.Resolver{
		BasePath:     cfg.Player.BasePath,
		MusicBaseURL: cfg.Player.MusicBaseURL,
	}, logger)
	ctrl.SetMode(cfg.DefaultMode())
	ctrl.SetVolume(cfg.Player.Volume)

	durations := cache.NewDurationCache()
	defer durations.Close()
	extractor := metadata.NewExtractor(durations, logger)

	var prober catalog.DurationProber
	if cfg.Catalog.ProbeDurations {
		prober = extractor
	}
	loader := catalog.NewLoader(&http.Client{Timeout: fetchTimeout}, prober, cfg.Server.MusicRoot, logger)
	ctrl.SetAlbums(loader.Load(ctx, cfg.Catalog.Source))

	var db *database.Database
	var recorder *history.Recorder
	if cfg.Database.Enabled {
		db, err = database.NewDatabase(cfg.Database.Path, logger)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		if cfg.Database.RestoreQueue {
			restoreQueue(ctrl, db, cfg, logger)
		}
		recorder = history.NewRecorder(ctrl, db, logger)
	}

	deps := server.Dependencies{
		Player:    ctrl,
		Catalog:   loader,
		Extractor: extractor,
		Logger:    logger,
	}
	if db != nil {
		deps.History = db
	}
	ms := server.NewMusicServer(cfg, deps)

	go func() {
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("Player event loop stopped")
		}
	}()

	if recorder != nil {
		go func() {
			if err := recorder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("History recorder stopped")
			}
		}()
	}

	if cfg.Catalog.Watch && !catalog.IsRemote(cfg.Catalog.Source) {
		watcher, err := catalog.NewWatcher(loader, cfg.Catalog.Source, ctrl)
		if err != nil {
			logger.WithError(err).Warn("Catalog watcher unavailable")
		} else {
			go watcher.Run(ctx)
			logger.WithField("source", cfg.Catalog.Source).Info("Watching album catalog")
		}
	}

	tunnel, err := ngrok.NewService(&cfg.Ngrok, logger)
	if err != nil {
		logger.WithError(err).Warn("Ngrok disabled")
	}
	defer tunnel.Stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- ms.Start()
	}()

	if err := tunnel.StartTunnel(ctx, "localhost:"+cfg.Server.Port); err != nil {
		logger.WithError(err).Warn("Ngrok tunnel failed to start")
	} else if url := tunnel.GetPublicURL(); url != "" {
		logger.WithField("public_url", url).Info("Control surface reachable publicly")
	}

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("control surface: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	if recorder != nil {
		recorder.SaveQueue()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return ms.Shutdown(shutdownCtx)
}

// restoreQueue reloads the playlist saved by the previous run
func restoreQueue(ctrl *player.Controller, db *database.Database, cfg *config.Config, logger *logrus.Logger) {
	state, ok, err := db.LoadQueue()
	if err != nil {
		logger.WithError(err).Warn("Failed to load saved queue")
		return
	}
	if !ok || len(state.Tracks) == 0 {
		return
	}

	mode, err := playlist.ParseMode(state.Mode)
	if err != nil {
		mode = cfg.DefaultMode()
	}
	ctrl.Restore(state.Tracks, state.CurrentIndex, mode, state.Volume)
	logger.WithFields(logrus.Fields{
		"tracks": len(state.Tracks),
		"index":  state.CurrentIndex,
		"mode":   mode,
	}).Info("Restored saved queue")
}

package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"nufang/internal/cache"
	"nufang/internal/catalog"
	"nufang/internal/metadata"
	"nufang/pkg/models"
)

func newAlbumsCommand(ctx *commandContext) *cobra.Command {
	albumsCmd := &cobra.Command{
		Use:   "albums",
		Short: "List the album catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			loader := catalog.NewLoader(
				&http.Client{Timeout: time.Duration(cfg.Player.FetchTimeout) * time.Second},
				nil, cfg.Server.MusicRoot, ctx.quietLogger(),
			)
			albums, err := loader.Fetch(cmd.Context(), cfg.Catalog.Source)
			if err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAlbums(albums))
			return nil
		},
	}

	albumsCmd.AddCommand(newAlbumDurationsCommand(ctx))
	return albumsCmd
}

func renderAlbums(albums []models.Album) string {
	headers := []string{"ID", "Name", "Year", "Type", "Songs", "Length"}
	rows := make([][]string, 0, len(albums))
	for _, album := range albums {
		var total float64
		for _, song := range album.Songs {
			total += song.Duration
		}
		rows = append(rows, []string{
			album.ID,
			album.Name,
			album.Year,
			string(album.Type),
			strconv.Itoa(len(album.Songs)),
			formatDuration(total),
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight})
}

func newAlbumDurationsCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "durations",
		Short: "Probe audio files under the music root and store their lengths in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source := cfg.Catalog.Source
			if catalog.IsRemote(source) {
				return fmt.Errorf("catalog %s is remote; durations can only be written to a local file", source)
			}

			cat, err := catalog.ReadFile(source)
			if err != nil {
				return err
			}

			durations := cache.NewDurationCache()
			defer durations.Close()
			extractor := metadata.NewExtractor(durations, ctx.quietLogger())

			report := catalog.UpdateDurations(cat.Albums, cfg.Server.MusicRoot, extractor)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Songs", "Updated", "Missing", "Failed"},
				[][]string{{
					strconv.Itoa(report.Total),
					strconv.Itoa(report.Updated),
					strconv.Itoa(report.Missing),
					strconv.Itoa(report.Failed),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))

			if dryRun || report.Updated == 0 {
				fmt.Fprintln(out, "Catalog left unchanged")
				return nil
			}
			if err := catalog.Save(source, cat); err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote %d durations to %s\n", report.Updated, source)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report without writing the catalog")
	return cmd
}

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"nufang/internal/database"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var top bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently played or most played tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled {
				return fmt.Errorf("play history is disabled in %s", ctx.configPath())
			}
			if limit <= 0 {
				return fmt.Errorf("limit must be positive")
			}

			db, err := database.NewDatabase(cfg.Database.Path, ctx.quietLogger())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if top {
				counts, err := db.TopTracks(limit)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(counts))
				for _, c := range counts {
					rows = append(rows, []string{c.Title, c.Album, strconv.Itoa(c.Count)})
				}
				fmt.Fprintln(out, renderTable([]string{"Title", "Album", "Plays"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
				return nil
			}

			plays, err := db.RecentPlays(limit)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(plays))
			for _, p := range plays {
				rows = append(rows, []string{p.PlayedAt.Local().Format("2006-01-02 15:04"), p.Title, p.Album})
			}
			fmt.Fprintln(out, renderTable([]string{"Played", "Title", "Album"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().BoolVar(&top, "top", false, "Show the most played tracks instead of recent plays")
	return cmd
}

/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/thinkstack/apiserver/config"
	"github.com/thinkstack/apiserver/internal/storage"
)

var (
	snapshotLimit int
	snapshotKeep  int
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Leaderboard maintenance",
}

// snapshotCmd writes the current ranking to the configured object store.
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Store the current ranking as JSON in object storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.LoadConfig()
		logger := newLogger(cfg)

		objects, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure bucket: %w", err)
		}

		rt, err := openDeps(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		entries, err := rt.services.Leaderboard.Rank(ctx, snapshotLimit)
		if err != nil {
			return fmt.Errorf("rank leaderboard: %w", err)
		}

		key, err := storage.WriteSnapshot(ctx, objects, storage.Snapshot{
			TakenAt:    time.Now(),
			PointsMode: rt.services.Leaderboard.Policy().Mode,
			Entries:    entries,
		})
		if err != nil {
			return err
		}
		logger.Info("leaderboard snapshot stored", "bucket", objects.Bucket(), "key", key, "entries", len(entries))

		pruned, err := storage.PruneSnapshots(ctx, objects, snapshotKeep)
		if err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
		if len(pruned) > 0 {
			logger.Info("old leaderboard snapshots pruned", "count", len(pruned), "keep", snapshotKeep)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(leaderboardCmd)
	snapshotCmd.Flags().IntVar(&snapshotLimit, "limit", 100, "number of ranked entries to store")
	snapshotCmd.Flags().IntVar(&snapshotKeep, "keep", 0, "delete all but the newest N snapshots (0 keeps all)")
	leaderboardCmd.AddCommand(snapshotCmd)
}

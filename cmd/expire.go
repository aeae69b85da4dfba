/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/thinkstack/apiserver/config"
	"github.com/thinkstack/apiserver/internal/server"
)

// expireCmd completes active challenges whose deadline has passed. It is
// meant to be run from cron.
var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Complete active challenges past their deadline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)

		rt, err := openDeps(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		completed, err := rt.services.Challenges.ExpireOverdue(cmd.Context(), server.SystemActor)
		if err != nil {
			return fmt.Errorf("expire challenges: %w", err)
		}
		logger.Info("expiry finished", "completed", len(completed), "challenge_ids", completed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(expireCmd)
}

/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/thinkstack/apiserver/config"
	"github.com/thinkstack/apiserver/internal/db"
	"github.com/thinkstack/apiserver/internal/events"
	"github.com/thinkstack/apiserver/internal/logging"
	"github.com/thinkstack/apiserver/internal/mq"
	"github.com/thinkstack/apiserver/internal/server"
	"github.com/thinkstack/apiserver/internal/services"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "thinkstack",
	Short: "Challenge platform API server",
	Long: `thinkstack runs the challenge platform: accounts, challenges,
solutions and the leaderboard.

	thinkstack migrate up
	thinkstack server`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	logger := logging.New(os.Stderr, cfg.Log)
	slog.SetDefault(logger)
	return logger
}

// deps holds the connections a one-shot command opens.
type deps struct {
	db       *sql.DB
	broker   mq.Backend
	services *server.Services
}

func (r *deps) Close() {
	if r.broker != nil {
		_ = r.broker.Close()
	}
	if r.db != nil {
		_ = r.db.Close()
	}
}

// openDeps connects to the database and, when configured, the event
// broker, and wires the domain services over them.
func openDeps(ctx context.Context, cfg config.Config, logger *slog.Logger) (*deps, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	broker, err := mq.Open(ctx, cfg.Events)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open events backend: %w", err)
	}
	var publisher services.EventPublisher
	if broker != nil {
		publisher = events.NewPublisher(broker, time.Now)
	}

	return &deps{
		db:       dbConn,
		broker:   broker,
		services: server.NewServices(server.NewTransactor(dbConn), cfg.Policy, publisher, logger, time.Now),
	}, nil
}

/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thinkstack/apiserver/config"
	"github.com/thinkstack/apiserver/internal/events"
	"github.com/thinkstack/apiserver/internal/mq"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect domain events",
}

// watchCmd logs every event published on the configured broker.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Subscribe to domain events and log them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.Events)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("events backend is disabled; set EVENTS_BACKEND")
		}
		defer broker.Close()

		logger.Info("watching events", "backend", cfg.Events.Backend, "channel", events.Channel)
		err = events.Watch(ctx, broker, logger, func(ctx context.Context, envelope events.Envelope) error {
			logger.InfoContext(ctx, "event",
				"id", envelope.ID,
				"type", envelope.Type,
				"occurred_at", envelope.OccurredAt,
				"payload", string(envelope.Payload),
			)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(watchCmd)
}

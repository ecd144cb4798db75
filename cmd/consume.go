/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/intprep/apiserver/config"
	"github.com/intprep/apiserver/internal/logging"
	"github.com/intprep/apiserver/internal/mq"
	"github.com/intprep/apiserver/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// consumeCmd tails submission events from the configured message queue.
var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Log submission events from the message queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		logger, err := logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer func() { _ = broker.Close() }()

		logger.Info("consuming submission events",
			zap.String("backend", cfg.MQ.Backend),
			zap.String("channel", cfg.MQ.SubmissionChannel),
		)
		events := mq.NewSubmissionEvents(broker, cfg.MQ.SubmissionChannel)
		err = events.Consume(ctx, func(ctx context.Context, event types.SubmissionEvent) error {
			logger.Info("submission event",
				zap.String("id", event.ID),
				zap.Int64("submission_id", event.SubmissionID),
				zap.Int("user_id", event.UserID),
				zap.Int("problem_id", event.ProblemID),
				zap.String("status", string(event.Status)),
				zap.Time("created_at", event.CreatedAt),
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}

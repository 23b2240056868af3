package main

import (
	"context"

	"github.com/spf13/cobra"

	"interview-processor-go/internal/queue"
	"interview-processor-go/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume interview messages from the queue until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		if err := cfg.ValidateQueue(); err != nil {
			return err
		}
		log.WithField("queue_backend", cfg.Queue.Backend).Info("starting worker")
		defer log.Info("worker stopped")

		d, err := newDeps(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := d.Close(); err != nil {
				log.WithError(err).Warn("closing clients")
			}
		}()

		q, err := d.openQueue()
		if err != nil {
			return err
		}
		wf, err := d.buildWorkflow(q)
		if err != nil {
			return err
		}

		if cfg.MetricsAddress != "" {
			srv := server.New(cfg.MetricsAddress, log.Entry)
			go func() {
				if err := srv.Run(ctx); err != nil {
					log.WithError(err).Error("metrics server failed")
				}
			}()
		}

		consumer := queue.NewConsumer(q, queue.ConsumerConfig{
			WaitTime:          cfg.Queue.WaitTime,
			HandlerVisibility: cfg.Queue.VisibilityTimeout,
		}, log.Entry)
		return consumer.Run(ctx, func(ctx context.Context, interviewID string, msg queue.Message) bool {
			return wf.ProcessInterview(ctx, interviewID, &msg)
		})
	},
}

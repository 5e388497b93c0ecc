package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	pipelinepkg "github.com/otherjamesbrown/mailgraph/pkg/extraction/pipeline"
	"github.com/otherjamesbrown/mailgraph/pkg/jobqueue"
	"github.com/otherjamesbrown/mailgraph/pkg/jobqueue/worker"
	"github.com/otherjamesbrown/mailgraph/pkg/logging"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the C5 attachment worker pool, draining queued extraction jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			d, err := newDeps(ctx, appCfg, logger)
			if err != nil {
				return err
			}
			defer d.close()

			workerCfg := worker.DefaultConfig()
			if appCfg.WorkerConcurrency > 0 {
				workerCfg.Concurrency = appCfg.WorkerConcurrency
			}
			if appCfg.SoftTimeLimitSeconds > 0 {
				workerCfg.SoftTimeLimit = appCfg.SoftTimeLimit()
			}
			if appCfg.HardTimeLimitSeconds > 0 {
				workerCfg.HardTimeLimit = appCfg.HardTimeLimit()
			}

			handle := func(ctx context.Context, job jobqueue.Job) error {
				var payload pipelinepkg.Job
				if err := json.Unmarshal(job.Payload, &payload); err != nil {
					return fmt.Errorf("decoding job payload: %w", err)
				}
				return d.pipeline.Process(ctx, payload)
			}

			pool := worker.NewPool(workerCfg, d.dispatcher, handle, logger)
			pool.Start()
			logger.Info("worker pool started", logging.F("concurrency", workerCfg.Concurrency))

			<-ctx.Done()
			logger.Info("shutdown signal received, draining in-flight jobs")
			pool.Stop()

			return nil
		},
	}
}

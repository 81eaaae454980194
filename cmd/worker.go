package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/orchestrator"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the ingestion and enrichment task worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		acts, err := buildActivities(env)
		if err != nil {
			return err
		}

		tc, err := orchestrator.NewTemporalClient(cfg.Temporal)
		if err != nil {
			return eris.Wrap(err, "temporal dial")
		}
		defer tc.Close()

		zap.L().Info("worker starting",
			zap.String("address", cfg.Temporal.Address),
			zap.String("task_queue", cfg.Temporal.TaskQueue),
		)
		return orchestrator.RunWorker(ctx, tc, cfg.Temporal, acts)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

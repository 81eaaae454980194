package orchestrator

import (
	"context"

	"github.com/rotisserie/eris"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/config"
)

// NewTemporalClient dials the configured Temporal frontend.
func NewTemporalClient(cfg config.TemporalConfig) (temporalclient.Client, error) {
	address := cfg.Address
	if address == "" {
		address = "localhost:7233"
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "default"
	}

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  address,
		Namespace: namespace,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "orchestrator: dial temporal %s", address)
	}
	return c, nil
}

// taskQueue resolves the configured queue, defaulting to TaskQueue.
func taskQueue(cfg config.TemporalConfig) string {
	if cfg.TaskQueue != "" {
		return cfg.TaskQueue
	}
	return TaskQueue
}

// RunWorker registers every workflow and activity and polls until ctx is
// canceled.
func RunWorker(ctx context.Context, tc temporalclient.Client, cfg config.TemporalConfig, acts *Activities) error {
	queue := taskQueue(cfg)
	w := worker.New(tc, queue, worker.Options{})

	w.RegisterWorkflow(DeckIngestWorkflow)
	w.RegisterWorkflow(RefreshDealWorkflow)
	w.RegisterWorkflow(CompanyEnrichmentWorkflow)
	w.RegisterWorkflow(FounderEnrichmentWorkflow)
	w.RegisterWorkflow(PaperTextWorkflow)
	w.RegisterActivity(acts)

	zap.L().Info("worker polling", zap.String("task_queue", queue))

	if err := w.Start(); err != nil {
		return eris.Wrap(err, "orchestrator: start worker")
	}
	defer w.Stop()

	<-ctx.Done()
	zap.L().Info("worker stopping")
	return nil
}

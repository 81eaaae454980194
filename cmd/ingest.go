package main

import (
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/blob"
	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/internal/orchestrator"
)

var ingestDealName string

var ingestCmd = &cobra.Command{
	Use:   "ingest <deck.pdf>",
	Short: "Ingest a local pitch deck and start the processing chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tc, err := orchestrator.NewTemporalClient(cfg.Temporal)
		if err != nil {
			return eris.Wrap(err, "temporal dial")
		}
		defer tc.Close()
		starter := orchestrator.NewStarter(tc, cfg.Temporal)

		f, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "open %s", path)
		}
		defer f.Close()

		name := ingestDealName
		if name == "" {
			name = filepath.Base(path)
		}

		deal := model.Deal{
			Name:             name,
			Draft:            true,
			Status:           model.DealNew,
			ProcessingStatus: model.StatusPending,
		}
		if err := env.Store.CreateDeal(ctx, &deal); err != nil {
			return eris.Wrap(err, "create deal")
		}

		file := model.File{
			ID:               uuid.New(),
			DealID:           deal.ID,
			Kind:             model.KindDeck,
			Name:             filepath.Base(path),
			MimeType:         mime.TypeByExtension(filepath.Ext(path)),
			ProcessingStatus: model.StatusPending,
		}
		file.BlobPath = blob.Path("file", file.ID, file.Name)

		if err := env.Blob.Put(ctx, file.BlobPath, f); err != nil {
			return eris.Wrap(err, "store deck blob")
		}
		if err := env.Store.CreateFile(ctx, &file); err != nil {
			return eris.Wrap(err, "create file")
		}

		runID, err := starter.StartDeckIngest(ctx, deal.ID, file.ID)
		if err != nil {
			return eris.Wrap(err, "start ingestion")
		}

		zap.L().Info("deck ingestion started",
			zap.String("deal_id", deal.ID.String()),
			zap.String("deck_id", file.ID.String()),
			zap.String("run_id", runID),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDealName, "name", "", "deal name (default: file name)")
	rootCmd.AddCommand(ingestCmd)
}

package main

import (
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/orchestrator"
)

var refreshEnrichCompany bool

var refreshCmd = &cobra.Command{
	Use:   "refresh <deal-id>",
	Short: "Re-run company enrichment and re-assess an existing deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		dealID, err := uuid.Parse(args[0])
		if err != nil {
			return eris.Wrapf(err, "invalid deal id %q", args[0])
		}

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

		if refreshEnrichCompany {
			deal, err := env.Store.GetDeal(ctx, dealID)
			if err != nil {
				return eris.Wrap(err, "get deal")
			}
			if deal.CompanyID == nil {
				return eris.New("deal has no linked company to enrich")
			}
			runID, err := starter.StartCompanyEnrichment(ctx, *deal.CompanyID, dealID)
			if err != nil {
				return eris.Wrap(err, "start company enrichment")
			}
			zap.L().Info("company enrichment started",
				zap.String("company_id", deal.CompanyID.String()),
				zap.String("run_id", runID),
			)
		}

		runID, err := starter.StartRefreshDeal(ctx, dealID)
		if err != nil {
			return eris.Wrap(err, "start refresh")
		}

		zap.L().Info("deal refresh started",
			zap.String("deal_id", dealID.String()),
			zap.String("run_id", runID),
		)
		return nil
	},
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshEnrichCompany, "enrich", false, "also re-run the company enrichment fan-out first")
	rootCmd.AddCommand(refreshCmd)
}

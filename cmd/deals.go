package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/internal/store"
)

var dealsCmd = &cobra.Command{
	Use:   "deals",
	Short: "Inspect the deal pipeline",
	Long:  "Commands for listing deals and checking their readiness.",
}

// -- deals list --

var dealsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		status, _ := cmd.Flags().GetString("status")
		procStatus, _ := cmd.Flags().GetString("processing-status")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.DealFilter{
			Status:           model.DealStatus(status),
			ProcessingStatus: model.ProcessingStatus(procStatus),
			Limit:            limit,
		}

		deals, err := env.Store.ListDeals(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "deals list")
		}

		if len(deals) == 0 {
			fmt.Fprintln(os.Stderr, "No deals found.")
			return nil
		}

		formatDealsList(os.Stdout, deals)
		return nil
	},
}

// -- deals show --

var dealsShowCmd = &cobra.Command{
	Use:   "show <deal-id>",
	Short: "Show full details of a deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := uuid.Parse(args[0])
		if err != nil {
			return eris.Wrapf(err, "invalid deal id %q", args[0])
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		deal, err := env.Store.GetDeal(ctx, id)
		if err != nil {
			return eris.Wrap(err, "deals show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(deal)
	},
}

// -- deals status --

var dealsStatusCmd = &cobra.Command{
	Use:   "status <deal-id>",
	Short: "Show a deal's processing status and readiness",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := uuid.Parse(args[0])
		if err != nil {
			return eris.Wrapf(err, "invalid deal id %q", args[0])
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		deal, err := env.Store.GetDeal(ctx, id)
		if err != nil {
			return eris.Wrap(err, "get deal")
		}
		files, err := env.Store.ListDealFiles(ctx, id)
		if err != nil {
			return eris.Wrap(err, "list files")
		}

		formatDealStatus(os.Stdout, deal, files)
		return nil
	},
}

func init() {
	dealsListCmd.Flags().String("status", "", "filter by deal status (NEW, ACTIVE, PASSED, INVESTED, ARCHIVED)")
	dealsListCmd.Flags().String("processing-status", "", "filter by processing status (PENDING, STARTED, SUCCESS, FAILURE, RETRY, REVOKED)")
	dealsListCmd.Flags().Int("limit", 50, "max number of deals to display")

	dealsCmd.AddCommand(dealsListCmd)
	dealsCmd.AddCommand(dealsShowCmd)
	dealsCmd.AddCommand(dealsStatusCmd)
	rootCmd.AddCommand(dealsCmd)
}

// formatDealsList writes a tabular list of deals to w.
func formatDealsList(out io.Writer, deals []model.Deal) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPROCESSING\tSTAGE\tCREATED")
	for _, d := range deals {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, truncate(d.Name, 40), d.Status, d.ProcessingStatus,
			d.Stage, d.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatDealStatus writes the readiness breakdown for a single deal.
func formatDealStatus(out io.Writer, deal *model.Deal, files []model.File) {
	fmt.Fprintf(out, "Deal:              %s (%s)\n", deal.Name, deal.ID)
	fmt.Fprintf(out, "Status:            %s\n", deal.Status)
	fmt.Fprintf(out, "Processing status: %s\n", deal.ProcessingStatus)
	if deal.CompanyID != nil {
		fmt.Fprintf(out, "Company:           %s\n", deal.CompanyID)
	} else {
		fmt.Fprintln(out, "Company:           (unlinked)")
	}
	fmt.Fprintf(out, "Ready:             %t\n", model.DealReady(deal, files))

	if len(files) == 0 {
		return
	}
	fmt.Fprintln(out, "\nFiles:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "  ID\tKIND\tNAME\tPROCESSING")
	for _, f := range files {
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
			f.ID, f.Kind, truncate(f.Name, 40), f.ProcessingStatus)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

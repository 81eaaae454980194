package main

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/company"
	"github.com/sells-group/dealflow/internal/merge"
	"github.com/sells-group/dealflow/internal/model"
)

var (
	importXLSXPath  string
	importSheet     string
	importOverwrite bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import companies from an XLSX sheet",
	Long:  "Reads a spreadsheet of companies and merges each row into the store under the field-merge policy: existing values win unless --overwrite is set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rows, header, err := readCompanySheet(importXLSXPath, importSheet)
		if err != nil {
			return err
		}

		resolver := company.NewResolver(env.Store)

		var created, updated, skipped int
		for i, row := range rows {
			seed, candidates := companyRow(header, row)
			if seed.Name == "" && seed.Website == "" {
				zap.L().Warn("import: row has no name or website, skipping", zap.Int("row", i+2))
				skipped++
				continue
			}

			comp, isNew, err := resolver.FindOrCreate(ctx, seed)
			if err != nil {
				if eris.Is(err, company.ErrAmbiguous) {
					zap.L().Warn("import: ambiguous company, skipping",
						zap.Int("row", i+2),
						zap.String("name", seed.Name),
						zap.String("website", seed.Website),
					)
					skipped++
					continue
				}
				return eris.Wrapf(err, "import row %d", i+2)
			}
			if isNew {
				created++
			}

			changed, err := merge.Apply(comp, candidates, importOverwrite)
			if err != nil {
				return eris.Wrapf(err, "import row %d", i+2)
			}
			if len(changed) == 0 {
				continue
			}
			fields, err := merge.Select(comp, changed)
			if err != nil {
				return eris.Wrapf(err, "import row %d", i+2)
			}
			if err := env.Store.UpdateCompanyFields(ctx, comp.ID, fields); err != nil {
				return eris.Wrapf(err, "import row %d", i+2)
			}
			if !isNew {
				updated++
			}
		}

		zap.L().Info("import complete",
			zap.Int("created", created),
			zap.Int("updated", updated),
			zap.Int("skipped", skipped),
			zap.String("xlsx", importXLSXPath),
		)
		return nil
	},
}

// readCompanySheet reads the sheet into a header map and string rows.
func readCompanySheet(path, sheetName string) ([][]string, map[string]int, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "open xlsx")
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, nil, eris.Errorf("sheet %q not found", sheetName)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, nil, eris.New("workbook has no sheets")
		}
		sheet = f.Sheets[0]
	}
	if len(sheet.Rows) == 0 {
		return nil, nil, eris.New("sheet is empty")
	}

	header := make(map[string]int)
	for i, cell := range sheet.Rows[0].Cells {
		key := strings.ToLower(strings.TrimSpace(cell.String()))
		if key != "" {
			header[key] = i
		}
	}

	rows := make([][]string, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		rows = append(rows, cells)
	}
	return rows, header, nil
}

// companyRow maps one sheet row onto a resolution seed plus merge candidates.
func companyRow(header map[string]int, row []string) (model.Company, map[string]any) {
	get := func(col string) string {
		i, ok := header[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	seed := model.Company{
		Name:         get("name"),
		Website:      get("website"),
		CrunchbaseID: get("crunchbase_id"),
	}

	candidates := map[string]any{}
	for _, col := range []string{
		"legal_name", "description", "city", "state", "country",
		"last_funding_stage", "ipo_status", "crunchbase_id",
	} {
		if v := get(col); v != "" {
			candidates[col] = v
		}
	}
	if v := get("founded_year"); v != "" {
		if year, err := strconv.Atoi(v); err == nil {
			candidates["founded_year"] = &year
		}
	}
	if v := get("funding_total_usd"); v != "" {
		if usd, err := strconv.ParseInt(v, 10, 64); err == nil {
			candidates["funding_total_usd"] = &usd
		}
	}
	if v := get("industries"); v != "" {
		candidates["industries"] = splitList(v)
	}
	if v := get("technology_types"); v != "" {
		candidates["technology_types"] = splitList(v)
	}
	return seed, candidates
}

// splitList splits a semicolon- or comma-separated cell into trimmed values.
func splitList(s string) []string {
	sep := ";"
	if !strings.Contains(s, ";") {
		sep = ","
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func init() {
	importCmd.Flags().StringVar(&importXLSXPath, "xlsx", "", "path to XLSX file (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "sheet name (default: first sheet)")
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "overwrite existing values instead of filling blanks")
	_ = importCmd.MarkFlagRequired("xlsx")
	rootCmd.AddCommand(importCmd)
}

package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/btp-research/internal/export"
	"github.com/sells-group/btp-research/internal/model"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export catalog data",
}

var exportCatalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Write the catalog with stored classifications to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("out")

		env, err := initEnv(ctx, "export", envNeeds{store: true})
		if err != nil {
			return err
		}
		defer env.Close()

		services, err := env.Catalog.ListServices(ctx)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(services))
		for _, s := range services {
			ids = append(ids, s.TechnicalID)
		}
		records, err := env.Store.GetRelevanceBatch(ctx, ids)
		if err != nil {
			zap.L().Warn("export: relevance lookup failed, exporting without classifications", zap.Error(err))
			records = map[string]model.RelevanceRecord{}
		}

		if out == "-" {
			return export.WriteCatalogWorkbook(cmd.OutOrStdout(), services, records)
		}

		f, err := os.Create(out)
		if err != nil {
			return eris.Wrapf(err, "export: create %s", out)
		}
		if err := export.WriteCatalogWorkbook(f, services, records); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "export: close %s", out)
		}
		fmt.Fprintf(os.Stderr, "Wrote %d services (%d classified) to %s\n", len(services), len(records), out)
		return nil
	},
}

func init() {
	exportCatalogCmd.Flags().String("out", "btp_services.xlsx", "output file, or - for stdout")
	exportCmd.AddCommand(exportCatalogCmd)
	rootCmd.AddCommand(exportCmd)
}

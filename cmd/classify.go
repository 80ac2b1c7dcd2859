package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/btp-research/internal/catalog"
	"github.com/sells-group/btp-research/internal/model"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [ids...]",
	Short: "Classify services by relevance for SAP Basis administrators",
	Long: `Classifies the given services, or every service with --all. Stored
classifications are reused unless --force is set, which reclassifies each
service and overwrites its stored record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		all, _ := cmd.Flags().GetBool("all")
		force, _ := cmd.Flags().GetBool("force")
		asJSON, _ := cmd.Flags().GetBool("json")

		if !all && len(args) == 0 {
			return eris.New("classify: pass service ids or --all")
		}

		env, err := initEnv(ctx, "classify", envNeeds{relevance: true})
		if err != nil {
			return err
		}
		defer env.Close()

		services, err := env.Catalog.ListServices(ctx)
		if err != nil {
			return err
		}
		selected, missing := selectServices(services, args, all)
		for _, id := range missing {
			zap.L().Warn("classify: unknown service id", zap.String("id", id))
		}

		var records map[string]model.RelevanceRecord
		if force {
			records = make(map[string]model.RelevanceRecord, len(selected))
			for _, svc := range selected {
				rec, err := env.Filler.Reclassify(ctx, svc)
				if err != nil {
					zap.L().Warn("classify: reclassify failed", zap.String("id", svc.TechnicalID), zap.Error(err))
					continue
				}
				records[svc.TechnicalID] = *rec
			}
		} else {
			records = env.Filler.ClassifyAll(ctx, selected)
		}

		if asJSON {
			return writeJSONTo(cmd.OutOrStdout(), records)
		}
		if err := printServices(cmd.OutOrStdout(), selected, records); err != nil {
			return err
		}
		if n := len(selected) - len(records); n > 0 {
			fmt.Fprintf(os.Stderr, "%d of %d services unclassified.\n", n, len(selected))
		}
		return nil
	},
}

// selectServices returns the services named by ids in the given order, or
// every service when all is set. Unknown ids are returned separately.
func selectServices(services []model.ServiceSummary, ids []string, all bool) ([]model.ServiceSummary, []string) {
	if all {
		return services, nil
	}
	var selected []model.ServiceSummary
	var missing []string
	for _, id := range ids {
		svc, ok := catalog.FindByID(services, id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		selected = append(selected, svc)
	}
	return selected, missing
}

func init() {
	classifyCmd.Flags().Bool("all", false, "classify every service in the catalog")
	classifyCmd.Flags().Bool("force", false, "ignore stored classifications and overwrite them")
	classifyCmd.Flags().Bool("json", false, "print JSON")
	rootCmd.AddCommand(classifyCmd)
}

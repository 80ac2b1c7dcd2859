package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/btp-research/internal/analysis"
	"github.com/sells-group/btp-research/internal/catalog"
	"github.com/sells-group/btp-research/internal/model"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Browse the SAP BTP service catalog",
}

// -- catalog list --

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List services, optionally filtered",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "catalog", envNeeds{})
		if err != nil {
			return err
		}
		defer env.Close()

		services, err := env.Catalog.ListServices(ctx)
		if err != nil {
			return err
		}

		text, _ := cmd.Flags().GetString("query")
		category, _ := cmd.Flags().GetString("category")
		asJSON, _ := cmd.Flags().GetBool("json")

		filtered := catalog.Filter(services, catalog.Query{Text: text, Category: category})
		if asJSON {
			return writeJSONTo(cmd.OutOrStdout(), filtered)
		}
		if len(filtered) == 0 {
			fmt.Fprintln(os.Stderr, "No services found.")
			return nil
		}
		return printServices(cmd.OutOrStdout(), filtered, nil)
	},
}

// -- catalog categories --

var catalogCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List service categories",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "catalog", envNeeds{})
		if err != nil {
			return err
		}
		defer env.Close()

		services, err := env.Catalog.ListServices(ctx)
		if err != nil {
			return err
		}
		for _, c := range catalog.Categories(services) {
			fmt.Fprintln(cmd.OutOrStdout(), c)
		}
		return nil
	},
}

// -- catalog show --

var catalogShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a service with its links, plans and support components",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "catalog", envNeeds{})
		if err != nil {
			return err
		}
		defer env.Close()

		svc, detail, err := loadService(cmd, env, args[0])
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return writeJSONTo(cmd.OutOrStdout(), map[string]any{"service": svc, "detail": detail})
		}
		printService(cmd.OutOrStdout(), svc, detail)
		return nil
	},
}

// loadService finds id in the inventory and fetches its detail. A missing
// detail document is not an error.
func loadService(cmd *cobra.Command, env *appEnv, id string) (model.ServiceSummary, *model.ServiceDetail, error) {
	ctx := cmd.Context()
	services, err := env.Catalog.ListServices(ctx)
	if err != nil {
		return model.ServiceSummary{}, nil, err
	}
	svc, ok := catalog.FindByID(services, id)
	if !ok {
		return model.ServiceSummary{}, nil, eris.Errorf("service %q not found", id)
	}
	detail, err := env.Catalog.GetServiceDetail(ctx, svc.FileName)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return svc, nil, err
	}
	return svc, detail, nil
}

func printServices(w io.Writer, services []model.ServiceSummary, records map[string]model.RelevanceRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if records == nil {
		fmt.Fprintln(tw, "ID\tNAME\tCATEGORY")
	} else {
		fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tRELEVANCE\tREASON")
	}
	for _, s := range services {
		if records == nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.TechnicalID, s.DisplayName, s.Category)
			continue
		}
		level, reason := "-", ""
		if rec, ok := records[s.TechnicalID]; ok {
			level, reason = string(rec.Relevance), rec.Reason
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.TechnicalID, s.DisplayName, s.Category, level, reason)
	}
	return tw.Flush()
}

func printService(w io.Writer, svc model.ServiceSummary, detail *model.ServiceDetail) {
	fmt.Fprintf(w, "%s (%s)\n", svc.DisplayName, svc.TechnicalID)
	if svc.Category != "" {
		fmt.Fprintf(w, "Category: %s\n", svc.Category)
	}
	if svc.Description != "" {
		fmt.Fprintf(w, "\n%s\n", svc.Description)
	}
	if detail == nil {
		return
	}

	for _, g := range analysis.GroupLinks(detail.Links) {
		fmt.Fprintf(w, "\n%s:\n", g.Classification)
		for _, l := range g.Links {
			fmt.Fprintf(w, "  %s\n", l.Value)
		}
	}
	if len(detail.ServicePlans) > 0 {
		fmt.Fprintln(w, "\nPlans:")
		for _, p := range detail.ServicePlans {
			price := "paid"
			if p.IsFree {
				price = "free"
			}
			fmt.Fprintf(w, "  %s (%s) %s\n", p.Name, price, strings.Join(p.Regions, ", "))
		}
	}
	if len(detail.SupportComponents) > 0 {
		fmt.Fprintln(w, "\nSupport components:")
		for _, s := range detail.SupportComponents {
			fmt.Fprintf(w, "  %s\n", s.Value)
		}
	}
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode json")
	}
	return nil
}

func init() {
	catalogListCmd.Flags().StringP("query", "q", "", "case- and accent-insensitive text search")
	catalogListCmd.Flags().String("category", "", "exact category (case-insensitive)")
	catalogListCmd.Flags().Bool("json", false, "print JSON")
	catalogShowCmd.Flags().Bool("json", false, "print JSON")

	catalogCmd.AddCommand(catalogListCmd, catalogCategoriesCmd, catalogShowCmd)
	rootCmd.AddCommand(catalogCmd)
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/btp-research/internal/analysis"
	"github.com/sells-group/btp-research/internal/export"
	"github.com/sells-group/btp-research/internal/guest"
	"github.com/sells-group/btp-research/internal/model"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <id>",
	Short: "Research a service and print or export the analysis",
	Long: `Researches one service against its documentation links with a
search-augmented model. Without --token the run counts against the local
guest allowance; only successful analyses are counted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		quick, _ := cmd.Flags().GetBool("quick")
		outDir, _ := cmd.Flags().GetString("out")
		clipboard, _ := cmd.Flags().GetBool("copy")
		systemPrompt, _ := cmd.Flags().GetString("system-prompt")
		token, _ := cmd.Flags().GetString("token")

		env, err := initEnv(ctx, "analyze", envNeeds{analysis: true, state: true})
		if err != nil {
			return err
		}
		defer env.Close()

		limiter := env.Guest
		if hasToken(token) {
			limiter = nil
		}
		var slot *guest.Reservation
		if limiter != nil {
			if slot, err = limiter.Reserve(ctx); err != nil {
				return err
			}
			defer slot.Release()
		}

		svc, detail, err := loadService(cmd, env, args[0])
		if err != nil {
			return err
		}

		mode := model.AnalysisFull
		if quick {
			mode = model.AnalysisQuick
		}
		req := analysis.NewRequest(svc, detail, mode, env.Catalog.DetailURL(svc.FileName))
		req.SystemPrompt = systemPrompt

		result, err := env.Analyzer.Analyze(ctx, req)
		if err != nil {
			return err
		}

		if slot != nil {
			if err := slot.Commit(ctx); err != nil {
				zap.L().Warn("analyze: record guest usage", zap.Error(err))
			}
			if remaining, err := limiter.Remaining(ctx); err == nil {
				fmt.Fprintf(os.Stderr, "%d guest analyses remaining.\n", remaining)
			}
		}

		out := cmd.OutOrStdout()
		if clipboard {
			fmt.Fprint(out, export.ClipboardText(result.Content, result.Citations))
			return nil
		}

		doc := export.Document{
			ServiceName: svc.DisplayName,
			Category:    svc.Category,
			Model:       result.Model,
			Content:     result.Content,
			Citations:   result.Citations,
			Date:        time.Now(),
		}
		name, body := export.Markdown(doc)
		if outDir == "" {
			_, err := out.Write(body)
			return err
		}

		path := filepath.Join(outDir, name)
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return eris.Wrapf(err, "create %s", outDir)
		}
		if err := os.WriteFile(path, body, 0o644); err != nil { //nolint:gosec
			return eris.Wrapf(err, "write %s", path)
		}
		fmt.Fprintln(os.Stderr, "Wrote", path)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().Bool("quick", false, "2-3 sentence summary instead of the full analysis")
	analyzeCmd.Flags().String("out", "", "directory to write the Markdown export to (default stdout)")
	analyzeCmd.Flags().Bool("copy", false, "print the plain text body without the metadata block")
	analyzeCmd.Flags().String("system-prompt", "", "override the configured system prompt")
	analyzeCmd.Flags().String("token", "", "API token; bypasses the guest allowance")
	rootCmd.AddCommand(analyzeCmd)
}

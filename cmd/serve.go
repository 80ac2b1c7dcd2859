package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/btp-research/internal/prefs"
	"github.com/sells-group/btp-research/internal/server"
)

var servePort int

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve", envNeeds{store: true, relevance: true, analysis: true, state: true})
		if err != nil {
			return err
		}
		defer env.Close()

		preferences := prefs.New(env.State)
		if err := preferences.Load(ctx); err != nil {
			return err
		}

		srvCfg := cfg.Server
		if servePort != 0 {
			srvCfg.Port = servePort
		}

		srv := server.New(srvCfg, server.Deps{
			Catalog:    env.Catalog,
			Classifier: env.Classifier,
			Filler:     env.Filler,
			Cache:      env.Store,
			Analyzer:   env.Analyzer,
			Guest:      env.Guest,
			Prefs:      preferences,
			Metrics:    env.Metrics,
			SourceRef:  env.Catalog.DetailURL,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return eris.Wrap(err, "server listen")
			}
			return nil
		case <-ctx.Done():
		}

		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

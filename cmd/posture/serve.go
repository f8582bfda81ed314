package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vulnverified/posture/internal/api"
	"github.com/vulnverified/posture/internal/config"
	"github.com/vulnverified/posture/internal/engine"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(v *viper.Viper, g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve snapshots over a JSON HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, g.configFile)
			if err != nil {
				return err
			}
			logger, err := newLogger(g.verbose, g.silent, true)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := interruptContext()
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			run := func(ctx context.Context, domain string) (*engine.Snapshot, error) {
				return a.run(ctx, domain, nil)
			}
			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           api.New(run, a.store, logger.Named("api")).Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			logger.Info("listening", zap.String("addr", cfg.ListenAddr))

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().String("listen", ":8080", "Address to listen on")
	_ = v.BindPFlag("listen_addr", cmd.Flags().Lookup("listen"))
	return cmd
}

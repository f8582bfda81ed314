package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vulnverified/posture/internal/config"
	"github.com/vulnverified/posture/internal/output"
)

// Set via ldflags at build time.
var version = "dev"

type globalFlags struct {
	configFile string
	noColor    bool
	silent     bool
	verbose    bool
}

func main() {
	output.Version = version

	v := config.New()
	v.SetDefault("user_agent", fmt.Sprintf("posture/%s (+https://github.com/vulnverified/posture)", version))

	var g globalFlags
	rootCmd := newRootCmd(v, &g)
	rootCmd.AddCommand(newServeCmd(v, &g))

	rootCmd.PersistentFlags().StringVar(&g.configFile, "config", "", "Config file (default ./posture.yaml, then ~/.posture.yaml)")
	rootCmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable terminal colors")
	rootCmd.PersistentFlags().BoolVar(&g.silent, "silent", false, "Results only, no progress or logs")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Per-block progress and debug logs")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("posture {{.Version}}\n")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper, g *globalFlags) *cobra.Command {
	var (
		jsonOutput bool
		yamlOutput bool
		save       bool
	)

	cmd := &cobra.Command{
		Use:   "posture <domain>",
		Short: "Passive security posture snapshot for a domain",
		Long: "Collects DNS governance, email authentication, TLS, technology, exposure and " +
			"breach-history signals for a domain without scanning it, then synthesizes cross-block flags.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Respect NO_COLOR env var.
			if _, ok := os.LookupEnv("NO_COLOR"); ok {
				g.noColor = true
			}

			cfg, err := config.Load(v, g.configFile)
			if err != nil {
				return err
			}

			logger, err := newLogger(g.verbose, g.silent, false)
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

			showProgress := !jsonOutput && !yamlOutput && !g.silent
			progress := output.NewProgress(os.Stderr, g.verbose, !showProgress)

			if showProgress {
				output.WriteHeader(os.Stderr, g.noColor)
			}

			snap, err := a.run(ctx, args[0], progress)
			if err != nil {
				return err
			}

			if showProgress {
				progress.Complete()
			}

			if save {
				if err := a.store.SaveSnapshot(ctx, snap); err != nil {
					return fmt.Errorf("save snapshot: %w", err)
				}
			}

			switch {
			case jsonOutput:
				return output.WriteJSON(os.Stdout, snap)
			case yamlOutput:
				return output.WriteYAML(os.Stdout, snap)
			}

			output.WriteTable(os.Stdout, snap, g.noColor)
			output.WriteSummary(os.Stdout, snap, g.noColor)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the snapshot as JSON to stdout")
	cmd.Flags().BoolVar(&yamlOutput, "yaml", false, "Output the snapshot as YAML to stdout")
	cmd.Flags().BoolVar(&save, "save", false, "Archive the snapshot in the configured store")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml")
	return cmd
}

// interruptContext is cancelled on Ctrl+C.
func interruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

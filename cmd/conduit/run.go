package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/conduit/internal/echo"
	"mercator-hq/conduit/pkg/cli"
	"mercator-hq/conduit/pkg/config"
	"mercator-hq/conduit/pkg/server"
	"mercator-hq/conduit/pkg/telemetry/health"
	"mercator-hq/conduit/pkg/telemetry/logging"
	"mercator-hq/conduit/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the broker listeners",
	Long: `Start every configured listener and the admin endpoint.

Accepted connections are served by the built-in echo handler, which starts
reading once the broker reports ready and writes every frame back.

Examples:
  # Start with default config file
  conduit run

  # Start with custom config
  conduit run --config /etc/conduit/config.yaml

  # Override the address of the first listener
  conduit run --listen 0.0.0.0:6650

  # Validate config without starting
  conduit run --dry-run`,
	RunE: runBroker,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override the address of the first listener")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

// loadConfig loads the configuration file, or the built-in defaults when no
// file is given, applies flag overrides and publishes the result as the
// process configuration.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if cfgFile == "" {
		cfg = config.DefaultConfig()
	} else {
		loaded, err := config.LoadConfigWithEnvOverrides(cfgFile)
		if err != nil {
			return nil, cli.WrapConfigError("failed to load config", err)
		}
		cfg = loaded
	}

	if runFlags.listenAddress != "" && len(cfg.Listeners) > 0 {
		cfg.Listeners[0].Address = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if err := config.Validate(cfg); err != nil {
		return nil, cli.WrapConfigError("invalid config", err)
	}
	config.SetConfig(cfg)
	return cfg, nil
}

func runBroker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Telemetry.Logging, os.Stderr)
	if err != nil {
		return cli.WrapConfigError("invalid logging config", err)
	}
	slog.SetDefault(logger)

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	tp, err := tracing.New(ctx, &cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown failed", "error", err)
		}
	}()

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	srv, err := server.New(cfg, echo.NewFactory(checker, logger),
		server.WithLogger(logger),
		server.WithChecker(checker),
		server.WithVersion(versionInfo()),
	)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	printListeners(cmd, cfg, srv)

	reload, stopReload := cli.ReloadNotify()
	defer stopReload()
	waitForShutdown(ctx, reload, logger)

	fmt.Fprintln(out, "\nShutting down gracefully...")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown failed", "error", err)
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Broker stopped")
	return nil
}

// waitForShutdown blocks until ctx is done, re-reading the config file on
// every reload signal.
func waitForShutdown(ctx context.Context, reload <-chan os.Signal, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-reload:
			reloadConfig(cfgFile, logger)
		}
	}
}

// reloadConfig republishes the process configuration from path. A failed
// reload keeps the previous configuration.
func reloadConfig(path string, logger *slog.Logger) {
	if path == "" {
		logger.Info("config reload skipped, no config file")
		return
	}
	if err := config.ReloadConfig(path); err != nil {
		logger.Error("config reload failed", "path", path, "error", err)
		return
	}
	logger.Info("config reloaded", "path", path)
}

func printListeners(cmd *cobra.Command, cfg *config.Config, srv *server.Server) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Conduit v%s\n", Version)
	for _, l := range srv.Listeners() {
		mode := "plain"
		if l.Options().EnableTLS {
			mode = "tls"
		}
		fmt.Fprintf(out, "✓ Listener %s on %s (%s)\n", l.Name(), l.Addr(), mode)
	}
	if addr := srv.AdminAddr(); addr != nil {
		if cfg.Telemetry.Health.Enabled {
			fmt.Fprintf(out, "✓ Health endpoint: http://%s%s\n", addr, cfg.Telemetry.Health.LivenessPath)
		}
		if cfg.Telemetry.Metrics.Enabled {
			fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", addr, cfg.Telemetry.Metrics.Path)
		}
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"demosim/internal/config"
	"demosim/internal/logging"
	"demosim/pkg/demosim"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "demosimctl",
		Short: "Demographic agent-based simulation",
		Long: `demosimctl runs a demographic agent-based simulation: single runs,
repeats and parameter sweeps, optionally on a bounded worker pool.

Every run writes params_used.json and time_series_outputs.csv into its
output directory and is indexed in the configured run store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.Bool("json", false, "Output as JSON")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error")
	flags.String("output-root", "", "Directory runs are written below")
	flags.String("store", "", "Run store backend: memory, sqlite, postgres")
	flags.String("db-dsn", "", "sqlite path or postgres connection string")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newRepsCmd(),
		newSweepCmd(),
		newRunsCmd(),
		newGrowthCmd(),
		newTrajectoryCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "demosimctl version %s\n", version)
			return nil
		},
	}
}

// loadConfig layers the global flags over the config file and environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v, _ := cmd.Flags().GetString("output-root"); v != "" {
		cfg.OutputRoot = v
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		cfg.Store.Kind = v
	}
	if v, _ := cmd.Flags().GetString("db-dsn"); v != "" {
		cfg.Store.DSN = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.Metrics.Addr = v
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if cfg.Logging.Format == "json" {
		return logging.NewJSONLogger(cfg.Logging.Level, w)
	}
	return logging.NewLogger(cfg.Logging.Level, w)
}

// openClient builds the client and, when configured, the metrics endpoint.
// The returned func releases both.
func openClient(cmd *cobra.Command) (*demosim.Client, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	client, err := demosim.New(cmd.Context(), demosim.Options{Config: cfg, Logger: logger})
	if err != nil {
		return nil, nil, err
	}

	stopMetrics := func() {}
	if cfg.Metrics.Addr != "" {
		stopMetrics, err = serveMetrics(cfg.Metrics.Addr, client.Metrics().Handler(), logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}
	return client, func() {
		stopMetrics()
		if err := client.Close(); err != nil {
			logger.Warn("closing run store failed", "error", err)
		}
	}, nil
}

func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", listener.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

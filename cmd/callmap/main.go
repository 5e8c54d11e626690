package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"callmap/internal/core/config"
	"callmap/internal/shared/observability"
)

const version = "0.1.0"

const defaultConfigPath = "callmap.toml"

var (
	flagConfig  string
	flagFormat  string
	flagVerbose bool
	flagWorkers int
	flagTests   bool
)

// Set up by the root command before any subcommand runs.
var (
	cfg             *config.Config
	shutdownTracing func(context.Context) error
	metricsServer   *http.Server
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "callmap",
	Short:             "Static call graphs for Python source trees",
	Long:              "callmap parses Python sources with tree-sitter, resolves calls across modules and answers caller, reachability and public-surface queries.",
	Version:           version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ./callmap.toml when present)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: text|json")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&flagWorkers, "workers", 0, "parser workers (default: config or GOMAXPROCS)")
	rootCmd.PersistentFlags().BoolVar(&flagTests, "include-tests", false, "analyze test_*.py and *_test.py files")

	rootCmd.AddCommand(analyzeCmd, watchCmd)
	rootCmd.AddCommand(callersCmd, calleesCmd, reachCmd, pathCmd, pathsCmd, treeCmd, findCmd, surfaceCmd, unreferencedCmd, statsCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	if flagFormat != "text" && flagFormat != "json" {
		return fmt.Errorf("invalid --format %q: must be text or json", flagFormat)
	}

	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	loaded, err := loadConfig()
	if err != nil {
		return err
	}
	if flagWorkers > 0 {
		loaded.Analysis.Workers = flagWorkers
	}
	if flagTests {
		loaded.Analysis.IncludeTests = true
	}
	cfg = loaded

	shutdownTracing, err = observability.InitTracing(cmd.Context(), cfg.Observability.OTLPEndpoint, cfg.Observability.ServiceName)
	if err != nil {
		return err
	}
	startMetricsServer(cfg.Observability.MetricsAddr)
	return nil
}

func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err != nil {
			return config.Default(), nil
		}
		path = defaultConfigPath
	}
	loaded, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	slog.Debug("loaded config", "path", path)
	return loaded, nil
}

func startMetricsServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", addr)
}

func teardown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}
	if shutdownTracing != nil {
		return shutdownTracing(ctx)
	}
	return nil
}

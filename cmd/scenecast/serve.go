package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luciancaetano/scenecast/internal/broadcaster"
	"github.com/luciancaetano/scenecast/internal/config"
	"github.com/luciancaetano/scenecast/internal/logging"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	configPath string
	tcpAddr    string
	httpAddr   string
	logLevel   string
	keepEmpty  bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broadcaster",
		Long: `Run the broadcaster until interrupted.

Settings come from a TOML file; a missing file means defaults.
Flags override the file.

Examples:
  scenecast serve
  scenecast serve --config scenecast.toml
  scenecast serve --tcp 127.0.0.1:12800 --http ""`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd, opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "scenecast.toml", "Path to the TOML config file")
	cmd.Flags().StringVar(&opts.tcpAddr, "tcp", "", "Raw TCP listen address (empty string disables)")
	cmd.Flags().StringVar(&opts.httpAddr, "http", "", "WebSocket and metrics listen address (empty string disables)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.keepEmpty, "keep-empty-rooms", false, "Keep rooms and their content after the last client leaves")

	return cmd
}

// loadServeConfig reads the config file and applies the flags that were set.
func loadServeConfig(cmd *cobra.Command, opts serveOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("tcp") {
		cfg.Server.TCPAddress = opts.tcpAddr
	}
	if flags.Changed("http") {
		cfg.Server.HTTPAddress = opts.httpAddr
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("keep-empty-rooms") {
		cfg.Rooms.KeepEmpty = opts.keepEmpty
	}
	return cfg, cfg.Validate()
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server := broadcaster.New(broadcaster.ConfigFrom(cfg, log, reg))
	if err := server.Start(ctx); err != nil {
		return err
	}
	log.Info("scenecast started",
		zap.String("version", version),
		zap.String("tcp", server.TCPAddr()),
		zap.String("http", server.HTTPAddr()))

	<-ctx.Done()
	log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Stop(stopCtx)
}

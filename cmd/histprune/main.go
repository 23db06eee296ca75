package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rpattn/histprune/internal/cleanup"
	"github.com/rpattn/histprune/internal/config"
	"github.com/rpattn/histprune/internal/db"
	"github.com/rpattn/histprune/internal/logging"
	"github.com/rpattn/histprune/internal/registry"
	"github.com/rpattn/histprune/internal/repository"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "histprune",
	Short: "Maintenance tooling for entity history tables",
	Long: `histprune removes redundant rows from history tables: consecutive
versions of an entity whose tracked fields did not change, and optionally
versions older than a retention threshold.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// appContext bundles the per-run wiring shared by the subcommands.
type appContext struct {
	cfg      config.Config
	logger   *zap.Logger
	conn     *db.Connection
	registry *registry.Registry
	service  *cleanup.Service
}

func (a *appContext) Close() {
	if a.conn != nil {
		a.conn.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func newAppContext(cmd *cobra.Command, portableScan bool) (*appContext, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.NewLogger(level)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	conn, err := db.NewConnection(cmd.Context(), cfg.Database)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	reg, err := registry.New(cfg.Models)
	if err != nil {
		conn.Close()
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to build model registry: %w", err)
	}

	opts := []cleanup.Option{cleanup.WithStepSize(cfg.Cleanup.StepSize)}
	if portableScan || cfg.Cleanup.PortableScan {
		opts = append(opts, cleanup.WithPortableScan())
	}
	service := cleanup.NewService(conn, repository.NewHistoryRepository(conn.Pool), logger, opts...)

	return &appContext{
		cfg:      cfg,
		logger:   logger,
		conn:     conn,
		registry: reg,
		service:  service,
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nostrkv/kvgate/config"
	"github.com/nostrkv/kvgate/internal/logger"
	"github.com/nostrkv/kvgate/server"
)

var (
	configDir    string
	environment  string
	registryPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway server",
	Example: `  # Run with config/<env>.yaml selected by KVGATE_ENV
  kvgate serve

  # Run against an explicit config directory and registry document
  kvgate serve --config-dir ./config --registry ./registry.json`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&configDir, "config-dir", "c", "config", "directory containing <env>.yaml config files")
	serveCmd.Flags().StringVarP(&environment, "env", "e", "", "environment name (overrides KVGATE_ENV)")
	serveCmd.Flags().StringVarP(&registryPath, "registry", "r", "", "path to the on-disk connection registry document")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Best-effort: a .env file is a developer convenience for populating the
	// KVGATE_* overrides and ${VAR} substitutions config.Load reads next. Its
	// absence in production, where vars come from the process environment
	// directly, is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir, Environment: environment})
	if err != nil {
		return err
	}

	log := buildLogger(cfg)
	log.Info("configuration loaded",
		logger.String("environment", cfg.Environment),
		logger.String("namespace", cfg.Namespace),
		logger.Int("relays", len(cfg.Relays)),
	)

	srv, err := server.New(cfg, log, registryPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

func buildLogger(cfg *config.Config) logger.Logger {
	level := logger.InfoLevel
	if cfg.Logging != nil {
		switch strings.ToUpper(cfg.Logging.Level) {
		case "DEBUG":
			level = logger.DebugLevel
		case "WARN":
			level = logger.WarnLevel
		case "ERROR":
			level = logger.ErrorLevel
		}
	}
	return logger.NewLogger(os.Stdout, level)
}

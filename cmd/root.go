package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/wisq/autocrew/internal/config"
)

var (
	configPath string
	logLevel   string
	logger     *slog.Logger

	// v collects defaults, environment and bound flags; cfg is decoded
	// from it before any subcommand runs.
	v   = config.New()
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "autocrew",
	Short: "Target motion analysis from bearings-only observations",
	Long: `autocrew estimates a contact's position, course and speed from a
series of bearings taken by a maneuvering observer, either once from a
scenario file or continuously as a server fed with new observations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Setup logger
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)

		loaded, err := config.LoadFrom(v, configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (YAML, JSON or TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("data-dir", "./data", "Base directory for checkpoints and traces")
	_ = v.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
}

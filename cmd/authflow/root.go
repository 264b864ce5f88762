package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string
	verbose bool
	cfg     *fileConfig
	logger  *slog.Logger
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "authflow",
	Short: "Session mirror and credential reset client",
	Long: `authflow signs in against an Ory Kratos server, mirrors the session into
local storage and runs the forgot-password flow.

Example usage:
  authflow session login --identifier alice@example.com
  authflow session show
  authflow forgot-password --method email --email alice@example.com
  authflow forgot-password --method phone --phone 5551234567 --captcha-token T`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string reported by "authflow version".
func SetVersion(v string) {
	version = v
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "authflow", version)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./authflow.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func initConfig() error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	loaded, err := loadConfig(cfgFile, envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = loaded

	if cfg.Log.Level == "debug" && !verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	logger.Debug("configuration loaded",
		"kratos_url", cfg.Kratos.PublicURL,
		"redis_addr", cfg.Redis.Addr,
		"file_path", cfg.Client.Storage.FilePath,
	)
	return nil
}

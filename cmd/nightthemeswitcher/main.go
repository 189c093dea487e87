package main

import (
	"fmt"
	"os"

	"nightthemeswitcher/internal/config"
	"nightthemeswitcher/internal/settings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const appName = "nightthemeswitcher"

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	debug    bool
	readOnly bool
	envFile  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          appName,
		Short:        "Switch the desktop between day and night themes",
		Long:         "Follows the sun or a manual schedule and switches the color scheme, themes and commands between day and night.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&readOnly, "read-only", false, "log changes instead of making them")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file to load")

	cmd.AddCommand(
		newRunCmd(),
		newToggleCmd(),
		newSuntimesCmd(),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig merges the environment with the command line flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Debug = true
	}
	if readOnly {
		cfg.ReadOnly = true
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func settingsPath(cfg *config.Config) (string, error) {
	if cfg.SettingsFile != "" {
		return cfg.SettingsFile, nil
	}
	return settings.DefaultPath(appName)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
		},
	}
}

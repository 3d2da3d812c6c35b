package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/logging"
)

var (
	configPath   string
	leaveRunning bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mc-panel",
		Short: "Remote control panel for a Minecraft server",
		Long: `mc-panel launches and supervises a single Minecraft server process and
exposes its lifecycle, console and status over an authenticated HTTP API.

Run without a subcommand to serve the panel.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: $CONFIG_PATH or ./configs/config.yaml)")
	cmd.Flags().BoolVar(&leaveRunning, "leave-running", false, "Leave the game server running when the panel exits")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newHashPasswordCommand())
	cmd.AddCommand(newAddUserCommand())

	return cmd
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the panel API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	cmd.Flags().BoolVar(&leaveRunning, "leave-running", false, "Leave the game server running when the panel exits")
	return cmd
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.GetConfigPath()
}

func loadConfig() (*config.Config, string, error) {
	path := resolveConfigPath()
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, path, nil
}

func setupLogging(cfg *config.Config) error {
	if cfg != nil && strings.TrimSpace(cfg.Logging.File) == "" {
		dataDir := cfg.Storage.DataDir
		if dataDir == "" {
			dataDir = "./data"
		}
		cfg.Logging.File = filepath.Join(dataDir, "logs", "panel.log")
	}
	if cfg != nil && strings.TrimSpace(cfg.Logging.File) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return err
		}
	}
	_, err := logging.Init(cfg.Logging)
	return err
}

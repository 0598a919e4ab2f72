// Package cli implements the formless command line interface.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"formless/internal/config"
)

const (
	envConfigFile         = "FORMLESS_CONFIG_FILE"
	defaultConfigFilePath = "config/formless.json"
)

// NewRootCommand builds the formless command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "formless",
		Short:         "Form autofill backend driven by remembered user data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// Credentials may arrive via .env; a missing file is fine.
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().String("config", "", "path to the configuration file")

	root.AddCommand(newServeCommand())
	root.AddCommand(newMemoryCommand())

	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := resolveConfigFilePath(cmd)
	if err != nil {
		return config.Config{}, err
	}

	return config.LoadFile(path)
}

func resolveConfigFilePath(cmd *cobra.Command) (string, error) {
	if flagPath, err := cmd.Flags().GetString("config"); err == nil {
		if trimmed := strings.TrimSpace(flagPath); trimmed != "" {
			return trimmed, nil
		}
	}
	if envPath := strings.TrimSpace(os.Getenv(envConfigFile)); envPath != "" {
		return envPath, nil
	}

	info, err := os.Stat(defaultConfigFilePath)
	if err == nil {
		if info.IsDir() {
			return "", fmt.Errorf("config file %s is a directory", defaultConfigFilePath)
		}
		return defaultConfigFilePath, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat config file %s: %w", defaultConfigFilePath, err)
	}

	return "", fmt.Errorf(
		"config file not found; create %s, set %s, or pass --config",
		defaultConfigFilePath,
		envConfigFile,
	)
}

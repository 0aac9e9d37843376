// Package cli provides utility functions for command line interface applications.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgeapi/forgeapi/internal/constants"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// InitViperConfig initializes the Viper configuration for a command.
//
// The configuration file is either the one given with --config or cmdName.{yaml,json,toml} searched in the
// current directory, the user configuration directory and /etc/cmdName. Environment variables prefixed
// with the upper-cased command name override file values.
func InitViperConfig(cmdName string, cmd *cobra.Command, vip *viper.Viper) error {
	// Flag also finds the persistent flags of the command and its parents before they are parsed.
	if f := cmd.Flag("config"); f != nil && f.Value.String() != "" {
		vip.SetConfigFile(f.Value.String())
	} else {
		vip.SetConfigName(cmdName)
		vip.AddConfigPath(".")
		vip.AddConfigPath(constants.GetDefaultConfigPath())
		vip.AddConfigPath("/etc/" + cmdName)

		if binPath, err := os.Executable(); err != nil {
			slog.Warn("Failed to get current executable path, not adding it as a config dir", "error", err)
		} else {
			vip.AddConfigPath(filepath.Dir(binPath))
		}
	}
	if err := vip.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if errors.As(err, &e) {
			slog.Info("No configuration file.\nWe will only use the defaults, env variables or flags.", "error", e)
		} else {
			return fmt.Errorf("invalid configuration file: %w", err)
		}
	} else {
		slog.Info("Using configuration file", "file", vip.ConfigFileUsed())
	}

	// Handle environment.
	vip.SetEnvPrefix(cmdName)
	vip.AutomaticEnv()

	// Visit manually env to bind every possibly related environment variable to be able to unmarshal
	// those into a struct.
	// More context on https://github.com/spf13/viper/pull/1429.
	prefix := strings.ToUpper(strings.ReplaceAll(cmdName, "-", "_")) + "_"
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, prefix) {
			continue
		}

		s := strings.Split(e, "=")
		k := strings.ReplaceAll(strings.TrimPrefix(s[0], prefix), "_", ".")
		if err := vip.BindEnv(strings.ToLower(k), s[0]); err != nil {
			return fmt.Errorf("could not bind environment variable: %w", err)
		}
	}

	return nil
}

// LoadEnvFile loads the variables of an env file into the process environment.
//
// Variables already set are kept. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("No environment file", "path", path)
			return nil
		}
		return fmt.Errorf("invalid environment file %s: %w", path, err)
	}
	slog.Debug("Loaded environment file", "path", path)
	return nil
}

// InstallConfigFlag adds a config flag to the command.
func InstallConfigFlag(cmd *cobra.Command) *string {
	return cmd.PersistentFlags().String("config", "", "use a specific configuration file")
}

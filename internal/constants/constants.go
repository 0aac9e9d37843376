// Package constants is responsible for defining the constants used in the application.
// It also provides utility functions to get the default configuration path.
package constants

import (
	"log/slog"
	"os"
	"path/filepath"
)

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// CmdName is the name of the command line tool.
	CmdName = "forgeapi"

	// DefaultAppFolder is the name of the default configuration folder.
	DefaultAppFolder = "forgeapi"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelInfo
)

// Project layout.
const (
	// DataModelFile is the default name of the project data model.
	DataModelFile = "datamodel.json"

	// DynamicConfigFile is the default name of the watched series and clients configuration.
	DynamicConfigFile = "series.json"

	// MigrationsDir is the default directory of the SQL migrations.
	MigrationsDir = "migrations"

	// PackagesDir is the directory holding package data models.
	PackagesDir = "packages"

	// EnvFile is the name of the environment file loaded at startup.
	EnvFile = ".env"

	// TokenSecretEnv is the environment variable holding the token signing secret.
	TokenSecretEnv = "FORGEAPI_AUTH_SECRET"
)

type options struct {
	baseDir func() (string, error)
}

type option func(*options)

// GetDefaultConfigPath is the default path to the configuration directory.
func GetDefaultConfigPath(opts ...option) string {
	o := options{baseDir: os.UserConfigDir}
	for _, opt := range opts {
		opt(&o)
	}

	return filepath.Join(getBaseDir(o.baseDir), DefaultAppFolder)
}

// getBaseDir is a helper function to handle the case where the baseDir function returns an error, and instead return an empty string.
func getBaseDir(baseDirFunc func() (string, error)) string {
	dir, err := baseDirFunc()
	if err != nil {
		return ""
	}
	return dir
}

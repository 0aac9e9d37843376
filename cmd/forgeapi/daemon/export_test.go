package daemon

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type (
	AppConfig = appConfig
)

// Config returns the configuration of the app.
func (a *App) Config() AppConfig {
	return a.config
}

// Addr waits for the web service to listen and returns its address, or an empty string if it never does.
func (a *App) Addr() string {
	a.WaitReady()
	if a.daemon == nil {
		return ""
	}
	for range 100 {
		if addr := a.daemon.Addr(); addr != "" {
			return addr
		}
		time.Sleep(50 * time.Millisecond)
	}
	return ""
}

// NewForTests creates a new App reading conf as its configuration file and no environment file.
func NewForTests(t *testing.T, conf map[string]any, args ...string) *App {
	t.Helper()

	p := GenerateTestConfig(t, conf)
	argsWithConf := append(args, "--config", p)
	if !slices.Contains(args, "--env-file") {
		argsWithConf = append(argsWithConf, "--env-file", filepath.Join(filepath.Dir(p), "missing.env"))
	}

	a, err := New()
	require.NoError(t, err, "Setup: failed to create app")
	a.cmd.SetArgs(argsWithConf)
	return a
}

// GenerateTestConfig generates a temporary config file for testing.
func GenerateTestConfig(t *testing.T, conf map[string]any) string {
	t.Helper()

	if conf == nil {
		conf = map[string]any{}
	}
	if _, ok := conf["verbosity"]; !ok {
		conf["verbosity"] = 2
	}

	d, err := yaml.Marshal(conf)
	require.NoError(t, err, "Setup: failed to marshal config for tests")

	confPath := filepath.Join(t.TempDir(), "testconfig.yaml")
	require.NoError(t, os.WriteFile(confPath, d, 0600), "Setup: failed to write config for tests")

	return confPath
}

// SetArgs set some arguments on root command for tests.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}

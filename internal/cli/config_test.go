package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgeapi/forgeapi/internal/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitViperConfig(t *testing.T) {
	tests := map[string]struct {
		content    string
		env        map[string]string
		noFile     bool
		subcommand bool

		wantPort int
		wantHost string
		wantErr  bool
	}{
		"Reads configuration file":           {content: "daemon:\n  listen-port: 9000\n", wantPort: 9000},
		"Reads configuration file of parent": {content: "daemon:\n  listen-port: 9002\n", subcommand: true, wantPort: 9002},
		"Environment overrides file": {
			content:  "daemon:\n  listen-port: 9000\n",
			env:      map[string]string{"FORGEAPI_DAEMON_LISTEN-PORT": "9001"},
			wantPort: 9001,
		},
		"Nested environment without file": {
			noFile:   true,
			env:      map[string]string{"FORGEAPI_DAEMON_LISTEN-HOST": "127.0.0.1"},
			wantHost: "127.0.0.1",
		},

		"Error on invalid configuration file": {content: "daemon: [", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cmd := &cobra.Command{Use: "forgeapi"}
			cli.InstallConfigFlag(cmd)
			path := filepath.Join(t.TempDir(), "forgeapi.yaml")
			if !tc.noFile {
				require.NoError(t, os.WriteFile(path, []byte(tc.content), 0600), "Setup: failed to write config file")
				require.NoError(t, cmd.PersistentFlags().Set("config", path), "Setup: failed to set config flag")
			}

			target := cmd
			if tc.subcommand {
				target = &cobra.Command{Use: "version"}
				cmd.AddCommand(target)
			}

			vip := viper.New()
			err := cli.InitViperConfig("forgeapi", target, vip)
			if tc.wantErr {
				require.Error(t, err, "InitViperConfig should fail")
				return
			}
			require.NoError(t, err, "InitViperConfig should succeed")

			var got struct {
				Daemon struct {
					ListenHost string `mapstructure:"listen-host"`
					ListenPort int    `mapstructure:"listen-port"`
				}
			}
			require.NoError(t, vip.Unmarshal(&got), "Unmarshal should succeed")
			assert.Equal(t, tc.wantPort, got.Daemon.ListenPort, "unexpected port")
			assert.Equal(t, tc.wantHost, got.Daemon.ListenHost, "unexpected host")
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("FORGEAPI_TEST_FROM_FILE=file\nFORGEAPI_TEST_PRESET=file\n"), 0600),
		"Setup: failed to write env file")

	t.Setenv("FORGEAPI_TEST_PRESET", "env")
	// Registers a cleanup restoring the unset state once the file has set it.
	t.Setenv("FORGEAPI_TEST_FROM_FILE", "")
	require.NoError(t, os.Unsetenv("FORGEAPI_TEST_FROM_FILE"), "Setup: failed to unset variable")

	require.NoError(t, cli.LoadEnvFile(path), "LoadEnvFile should succeed")
	assert.Equal(t, "file", os.Getenv("FORGEAPI_TEST_FROM_FILE"), "variable should be loaded from the file")
	assert.Equal(t, "env", os.Getenv("FORGEAPI_TEST_PRESET"), "existing variables should be kept")

	require.NoError(t, cli.LoadEnvFile(filepath.Join(dir, "missing.env")), "a missing file should not be an error")

	bad := filepath.Join(dir, "bad.env")
	require.NoError(t, os.Mkdir(bad, 0700), "Setup: failed to create directory")
	require.Error(t, cli.LoadEnvFile(bad), "a directory should not be a valid env file")
}

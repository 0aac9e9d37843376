package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/forgeapi/forgeapi/internal/cli"
	"github.com/forgeapi/forgeapi/internal/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		verbosity int

		want slog.Level
	}{
		"No flags":            {want: constants.DefaultLogLevel},
		"One flag":            {verbosity: 1, want: slog.LevelDebug},
		"Stops at debug":      {verbosity: 5, want: slog.LevelDebug},
		"Negative is ignored": {verbosity: -2, want: constants.DefaultLogLevel},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, cli.LogLevel(tc.verbosity), "unexpected level")
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		verbosity int
		jsonLogs  bool

		wantDebug bool
	}{
		"Text":         {},
		"Text verbose": {verbosity: 1, wantDebug: true},
		"JSON":         {jsonLogs: true},
		"JSON verbose": {verbosity: 2, jsonLogs: true, wantDebug: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			l := cli.NewLogger(&out, tc.verbosity, tc.jsonLogs)
			l.Debug("Debug record", "model", "order")
			l.Info("Info record", "model", "order")

			lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
			if tc.wantDebug {
				require.Len(t, lines, 2, "debug records should be written")
			} else {
				require.Len(t, lines, 1, "debug records should be dropped")
			}

			last := lines[len(lines)-1]
			if !tc.jsonLogs {
				assert.Contains(t, string(last), `msg="Info record" model=order`, "unexpected text record")
				return
			}
			var got map[string]any
			require.NoError(t, json.Unmarshal(last, &got), "records should be JSON")
			assert.Equal(t, "Info record", got["msg"], "unexpected message")
			assert.Equal(t, "order", got["model"], "unexpected attribute")
		})
	}
}

// hacky way to allow us to reset the default logger.
var defaultLogger = *slog.Default()

func TestSetSlog(t *testing.T) {
	tests := map[string]struct {
		verbosity int
		jsonLogs  bool
	}{
		"Text default": {},
		"Text debug":   {verbosity: 1},
		"JSON default": {jsonLogs: true},
		"JSON debug":   {verbosity: 2, jsonLogs: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			slog.SetDefault(&defaultLogger)
			t.Cleanup(func() { slog.SetDefault(&defaultLogger) })

			cli.SetSlog(tc.verbosity, tc.jsonLogs)

			_, isJSON := slog.Default().Handler().(*slog.JSONHandler)
			assert.Equal(t, tc.jsonLogs, isJSON, "unexpected log handler type")
			want := cli.LogLevel(tc.verbosity)
			assert.True(t, slog.Default().Enabled(context.Background(), want), "level %v should be enabled", want)
			assert.False(t, slog.Default().Enabled(context.Background(), want-1), "level below %v should be disabled", want)
		})
	}
}

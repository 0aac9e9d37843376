package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/forgeapi/forgeapi/internal/config"
	"github.com/forgeapi/forgeapi/internal/testutils"
	"github.com/forgeapi/forgeapi/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `{
	"series": {
		"openOrders": {
			"model": "order",
			"fields": ["id", "total", "customer.name"],
			"filters": [{"field": "status", "op": "eq", "value": "open"}],
			"sort": [{"field": "total", "desc": true}],
			"pageSize": 50
		},
		"customers": {"model": "customer"}
	},
	"clients": [
		{"id": "reporting", "secretHash": "$2a$10$abcdefghijklmnopqrstuv", "roles": ["reader"]}
	]
}`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "series.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600), "Setup: failed to write config file")
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	cm := config.New(writeConfig(t, t.TempDir(), validConfig))
	require.NoError(t, cm.Load(), "Load should succeed on a valid configuration")

	s, ok := cm.Series("openOrders")
	require.True(t, ok, "openOrders should be configured")
	assert.Equal(t, query.Series{
		Name:     "openOrders",
		Model:    "order",
		Fields:   []string{"id", "total", "customer.name"},
		Filters:  []query.Filter{{Field: "status", Op: query.OpEq, Value: "open"}},
		Sort:     []query.Sort{{Field: "total", Desc: true}},
		PageSize: 50,
	}, s, "unexpected series")

	assert.Equal(t, []string{"customers", "openOrders"}, cm.SeriesNames(), "series names should be sorted")

	c, ok := cm.Client("reporting")
	require.True(t, ok, "reporting client should be configured")
	assert.Equal(t, []string{"reader"}, c.Roles, "unexpected client roles")

	_, ok = cm.Series("missing")
	assert.False(t, ok, "unknown series should not be found")
	_, ok = cm.Client("missing")
	assert.False(t, ok, "unknown client should not be found")
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content   string
		validator func(query.Series) error
		noFile    bool
	}{
		"Missing file":           {noFile: true},
		"Malformed JSON":         {content: `{"series": {`},
		"Unknown field":          {content: `{"routes": []}`},
		"Series without model":   {content: `{"series": {"a": {"fields": ["id"]}}}`},
		"Series name mismatch":   {content: `{"series": {"a": {"name": "b", "model": "order"}}}`},
		"Client without id":      {content: `{"clients": [{"secretHash": "x"}]}`},
		"Client without secret":  {content: `{"clients": [{"id": "a"}]}`},
		"Duplicate client":       {content: `{"clients": [{"id": "a", "secretHash": "x"}, {"id": "a", "secretHash": "y"}]}`},
		"Series rejected by validator": {
			content:   `{"series": {"a": {"model": "order"}}}`,
			validator: func(query.Series) error { return errors.New("error requested by test") },
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "series.json")
			if !tc.noFile {
				path = writeConfig(t, filepath.Dir(path), tc.content)
			}

			var opts []config.Options
			if tc.validator != nil {
				opts = append(opts, config.WithSeriesValidator(tc.validator))
			}
			cm := config.New(path, opts...)
			require.Error(t, cm.Load(), "Load should fail")
			assert.Empty(t, cm.SeriesNames(), "a failed load should not change the configuration")
		})
	}
}

func TestFailedReloadKeepsConfiguration(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), validConfig)
	cm := config.New(path)
	require.NoError(t, cm.Load(), "Setup: initial load should succeed")

	writeConfig(t, filepath.Dir(path), `{"series": {"broken": {}}}`)
	require.Error(t, cm.Load(), "Load should fail on an invalid configuration")
	assert.Equal(t, []string{"customers", "openOrders"}, cm.SeriesNames(), "previous configuration should be kept")
}

func TestWatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `{"series": {"customers": {"model": "customer"}}}`)
	cm := config.New(path)

	changes, errs, err := cm.Watch(t.Context())
	require.NoError(t, err, "Watch should succeed")
	assert.Equal(t, []string{"customers"}, cm.SeriesNames(), "Watch should load the initial configuration")

	// Other files of the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0600), "Setup: failed to write other file")
	writeConfig(t, dir, validConfig)

	select {
	case <-changes:
	case err := <-errs:
		require.Fail(t, "unexpected watcher error", "%v", err)
	case <-time.After(5 * time.Second):
		require.Fail(t, "configuration was not reloaded in time")
	}
	assert.Equal(t, []string{"customers", "openOrders"}, cm.SeriesNames(), "configuration should be reloaded")
}

func TestWatchLogsFailedReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, validConfig)
	h := &testutils.MockHandler{}
	cm := config.New(path, config.WithLogger(slog.New(h)))

	_, _, err := cm.Watch(t.Context())
	require.NoError(t, err, "Watch should succeed")

	writeConfig(t, dir, `{"series": {"broken": {}}}`)
	require.Eventually(t, func() bool {
		return h.Has(slog.LevelWarn, "Error reloading config")
	}, 5*time.Second, 10*time.Millisecond, "a failed reload should be logged as a warning")
	assert.Equal(t, []string{"customers", "openOrders"}, cm.SeriesNames(), "previous configuration should be kept")
}

func TestWatchMissingDirectory(t *testing.T) {
	t.Parallel()

	cm := config.New(filepath.Join(t.TempDir(), "missing", "series.json"))
	_, _, err := cm.Watch(t.Context())
	require.Error(t, err, "Watch should fail when the directory does not exist")
}

func TestReadWhileLoad(t *testing.T) {
	t.Parallel()

	cm := config.New(writeConfig(t, t.TempDir(), validConfig))
	require.NoError(t, cm.Load(), "Setup: initial load should succeed")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 50 {
			_ = cm.Load()
		}
	}()
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cm.Series("openOrders")
			_ = cm.SeriesNames()
			_, _ = cm.Client("reporting")
		}()
	}
	wg.Wait()
}

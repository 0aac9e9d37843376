// Package config provides a manager that loads and watches the dynamic configuration file of the web service.
//
// The dynamic configuration holds the named data series and the API clients. It can change while the
// service runs: a reload that fails keeps the previous configuration.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/forgeapi/forgeapi/internal/auth"
	"github.com/forgeapi/forgeapi/pkg/query"
	"github.com/fsnotify/fsnotify"
)

// Conf represents the dynamic configuration structure.
type Conf struct {
	Series  map[string]query.Series `json:"series"`
	Clients []auth.Client           `json:"clients"`
}

// Manager is a struct that manages the dynamic configuration.
type Manager struct {
	config     Conf
	lock       sync.RWMutex
	configPath string

	validate func(query.Series) error
	log      *slog.Logger
}

type options struct {
	Logger   *slog.Logger
	Validate func(query.Series) error
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// WithLogger is an option to set the logger for the Manager.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.Logger = l
	}
}

// WithSeriesValidator checks every series of a loaded configuration, typically against the data model.
func WithSeriesValidator(validate func(query.Series) error) Options {
	return func(o *options) {
		o.Validate = validate
	}
}

// New creates a new configuration manager with the specified path.
func New(path string, args ...Options) *Manager {
	opts := options{
		Logger:   slog.Default(),
		Validate: func(query.Series) error { return nil },
	}

	for _, opt := range args {
		opt(&opts)
	}

	return &Manager{
		configPath: filepath.Clean(path),
		validate:   opts.Validate,
		log:        opts.Logger,
	}
}

// Load reads the configuration from the specified file and updates the internal state.
// The state is left untouched if the file is not a valid configuration.
func (cm *Manager) Load() error {
	file, err := os.Open(cm.configPath)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer file.Close()

	var newConfig Conf
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&newConfig); err != nil {
		return fmt.Errorf("decoding config JSON: %w", err)
	}

	if err := cm.check(&newConfig); err != nil {
		return err
	}

	cm.lock.Lock()
	cm.config = newConfig
	cm.lock.Unlock()

	cm.log.Info("Configuration loaded", "series", len(newConfig.Series), "clients", len(newConfig.Clients))
	return nil
}

// check validates a decoded configuration and names each series after its key.
func (cm *Manager) check(c *Conf) error {
	var errs []error
	for name, s := range c.Series {
		if s.Name != "" && s.Name != name {
			errs = append(errs, fmt.Errorf("series %q: name %q does not match its key", name, s.Name))
			continue
		}
		s.Name = name
		if s.Model == "" {
			errs = append(errs, fmt.Errorf("series %q: missing model", name))
			continue
		}
		if err := cm.validate(s); err != nil {
			errs = append(errs, fmt.Errorf("series %q: %w", name, err))
			continue
		}
		c.Series[name] = s
	}

	seen := make(map[string]bool)
	for _, cl := range c.Clients {
		switch {
		case cl.ID == "":
			errs = append(errs, errors.New("client with empty id"))
		case seen[cl.ID]:
			errs = append(errs, fmt.Errorf("duplicate client %q", cl.ID))
		case cl.SecretHash == "":
			errs = append(errs, fmt.Errorf("client %q: missing secret hash", cl.ID))
		}
		seen[cl.ID] = true
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Watch starts watching the configuration file for changes.
//
// It returns two channels: one for configuration changes which result in a successful load and another for unrecoverable watcher errors.
func (cm *Manager) Watch(ctx context.Context) (changes <-chan struct{}, errors <-chan error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	configDir, _ := filepath.Split(cm.configPath)
	if configDir == "" {
		configDir = "."
	}
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", configDir, err)
	}

	cm.log.Info("Watching configuration directory", "dir", configDir)
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	// Initial load of the configuration
	if err := cm.Load(); err != nil {
		cm.log.Warn("Error loading initial config", "err", err)
	}

	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				cm.log.Info("Configuration watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				if filepath.Clean(event.Name) != cm.configPath {
					continue
				}

				cm.log.Debug("Configuration file changed. Reloading...")
				if err := cm.Load(); err != nil {
					cm.log.Warn("Error reloading config", "err", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
					return
				}
				cm.log.Warn("Watcher error", "err", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}

// Series returns the named data series.
func (cm *Manager) Series(name string) (query.Series, bool) {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	s, ok := cm.config.Series[name]
	return s, ok
}

// SeriesNames returns the sorted names of the configured data series.
func (cm *Manager) SeriesNames() []string {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return slices.Sorted(maps.Keys(cm.config.Series))
}

// Client returns the API client with the given id.
func (cm *Manager) Client(id string) (auth.Client, bool) {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	for _, c := range cm.config.Clients {
		if c.ID == id {
			return c, true
		}
	}
	return auth.Client{}, false
}

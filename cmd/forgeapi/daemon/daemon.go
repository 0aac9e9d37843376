// Package daemon provides the forgeapi command line: the web service and the project tooling.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/forgeapi/forgeapi/internal/auth"
	"github.com/forgeapi/forgeapi/internal/cli"
	"github.com/forgeapi/forgeapi/internal/config"
	"github.com/forgeapi/forgeapi/internal/constants"
	"github.com/forgeapi/forgeapi/internal/database"
	"github.com/forgeapi/forgeapi/internal/webservice"
	"github.com/forgeapi/forgeapi/pkg/datamodel"
	"github.com/forgeapi/forgeapi/pkg/query"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd     *cobra.Command
	viper   *viper.Viper
	config  appConfig
	envFile string

	// ctx is canceled by Quit to interrupt the tooling subcommands.
	ctx    context.Context
	cancel context.CancelFunc

	daemon *webservice.Server

	ready     chan struct{}
	readyOnce sync.Once
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool `mapstructure:"json-logs"`

	DataModel  string
	Migrations string

	Daemon webservice.StaticConfig
	DB     database.Config
	Auth   authConfig
}

type authConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// LogValue hides the secrets of the configuration from the logs.
func (c appConfig) LogValue() slog.Value {
	redact := func(s string) string {
		if s == "" {
			return ""
		}
		return "<redacted>"
	}
	c.DB.Password = redact(c.DB.Password)
	c.Auth.Secret = redact(c.Auth.Secret)
	return slog.AnyValue(struct {
		Verbosity  int
		JSONLogs   bool
		DataModel  string
		Migrations string
		Daemon     webservice.StaticConfig
		DB         database.Config
		Auth       authConfig
	}(c))
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.cmd = &cobra.Command{
		Use:           constants.CmdName,
		Short:         "Serve a REST API derived from a data model",
		Long:          "forgeapi serves the models of a data model as authenticated REST endpoints over PostgreSQL, and generates the code and migrations of the project.",
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			if err := cli.LoadEnvFile(a.envFile); err != nil {
				return err
			}
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
			slog.Debug("Got app config", "config", a.config)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	a.installMigrate()
	a.installGenerate()
	a.installInit()
	a.installToken()
	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	defaultConf := webservice.StaticConfig{
		ConfigPath: constants.DynamicConfigFile,

		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		RequestTimeout: 10 * time.Second,
		MaxHeaderBytes: 1 << 13, // 8 KB
		MaxUploadBytes: 1 << 20, // 1 MB

		DefaultPageSize: query.DefaultPageSize,
		MaxPageSize:     query.MaxPageSize,

		TokenRate:  webservice.DefaultTokenRate,
		TokenBurst: webservice.DefaultTokenBurst,

		ListenPort:  8080,
		MetricsPort: 2112,
	}

	pf := cmd.PersistentFlags()
	pf.CountVarP(&app.config.Verbosity, "verbose", "v", "issue DEBUG logs (-v)")
	pf.BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")
	pf.StringVar(&app.envFile, "env-file", constants.EnvFile, "environment file loaded before the configuration")
	pf.StringVar(&app.config.DataModel, "datamodel", constants.DataModelFile, "path to the project data model")
	pf.StringVar(&app.config.Migrations, "migrations", constants.MigrationsDir, "directory of the SQL migrations")
	pf.StringVar(&app.config.Auth.Issuer, "token-issuer", constants.CmdName, "issuer of the signed tokens")
	pf.DurationVar(&app.config.Auth.TTL, "token-ttl", auth.DefaultTTL, "lifetime of the signed tokens")
	addDBFlags(pf, &app.config.DB)

	// Daemon flags
	f := cmd.Flags()
	f.StringVarP(&app.config.Daemon.ConfigPath, "daemon-config", "c", defaultConf.ConfigPath, "path to the series and clients configuration file")

	f.DurationVar(&app.config.Daemon.ReadTimeout, "read-timeout", defaultConf.ReadTimeout, "read timeout for HTTP server")
	f.DurationVar(&app.config.Daemon.WriteTimeout, "write-timeout", defaultConf.WriteTimeout, "write timeout for HTTP server")
	f.DurationVar(&app.config.Daemon.RequestTimeout, "request-timeout", defaultConf.RequestTimeout, "request timeout for HTTP server")
	f.IntVar(&app.config.Daemon.MaxHeaderBytes, "max-header-bytes", defaultConf.MaxHeaderBytes, "maximum header bytes for HTTP server")
	f.IntVar(&app.config.Daemon.MaxUploadBytes, "max-upload-bytes", defaultConf.MaxUploadBytes, "maximum request body bytes for HTTP server")

	f.IntVar(&app.config.Daemon.DefaultPageSize, "default-page-size", defaultConf.DefaultPageSize, "page size of series which do not set one")
	f.IntVar(&app.config.Daemon.MaxPageSize, "max-page-size", defaultConf.MaxPageSize, "largest page size accepted")
	f.Float64Var(&app.config.Daemon.TokenRate, "token-rate", defaultConf.TokenRate, "token requests allowed per second and client address")
	f.IntVar(&app.config.Daemon.TokenBurst, "token-burst", defaultConf.TokenBurst, "token requests burst per client address")

	f.StringVar(&app.config.Daemon.ListenHost, "listen-host", defaultConf.ListenHost, "host to listen on")
	f.IntVar(&app.config.Daemon.ListenPort, "listen-port", defaultConf.ListenPort, "port to listen on")

	f.StringVar(&app.config.Daemon.MetricsHost, "metrics-host", defaultConf.MetricsHost, "host for the metrics endpoint")
	f.IntVar(&app.config.Daemon.MetricsPort, "metrics-port", defaultConf.MetricsPort, "port for the metrics endpoint")

	bindFlags(app.viper, pf, map[string]string{
		"verbose":      "verbosity",
		"json-logs":    "json-logs",
		"datamodel":    "datamodel",
		"migrations":   "migrations",
		"token-issuer": "auth.issuer",
		"token-ttl":    "auth.ttl",
		"db-host":      "db.host",
		"db-port":      "db.port",
		"db-user":      "db.user",
		"db-password":  "db.password",
		"db-name":      "db.dbname",
		"db-sslmode":   "db.sslmode",
	})
	bindFlags(app.viper, f, map[string]string{
		"daemon-config":     "daemon.config-path",
		"read-timeout":      "daemon.read-timeout",
		"write-timeout":     "daemon.write-timeout",
		"request-timeout":   "daemon.request-timeout",
		"max-header-bytes":  "daemon.max-header-bytes",
		"max-upload-bytes":  "daemon.max-upload-bytes",
		"default-page-size": "daemon.default-page-size",
		"max-page-size":     "daemon.max-page-size",
		"token-rate":        "daemon.token-rate",
		"token-burst":       "daemon.token-burst",
		"listen-host":       "daemon.listen-host",
		"listen-port":       "daemon.listen-port",
		"metrics-host":      "daemon.metrics-host",
		"metrics-port":      "daemon.metrics-port",
	})

	if err := cmd.MarkFlagFilename("daemon-config", "json"); err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark daemon-config flag as filename: %v", err))
	}
	if err := cmd.MarkPersistentFlagFilename("datamodel", "json", "yaml", "yml"); err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark datamodel flag as filename: %v", err))
	}
	if err := cmd.MarkPersistentFlagDirname("migrations"); err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark migrations flag as directory: %v", err))
	}
}

func addDBFlags(flags *pflag.FlagSet, config *database.Config) {
	flags.StringVar(&config.Host, "db-host", "localhost", "database host")
	flags.IntVarP(&config.Port, "db-port", "p", 5432, "database port")
	flags.StringVarP(&config.User, "db-user", "u", "", "database user")
	flags.StringVarP(&config.Password, "db-password", "P", "", "database password")
	flags.StringVarP(&config.DBName, "db-name", "n", "", "database name")
	flags.StringVarP(&config.SSLMode, "db-sslmode", "s", "", "database SSL mode")
}

// bindFlags binds flags to their configuration keys, so flags override the file and environment values.
func bindFlags(vip *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if err := vip.BindPFlag(key, flags.Lookup(name)); err != nil {
			// This should never happen.
			panic(fmt.Sprintf("failed to bind flag %s: %v", name, err))
		}
	}
}

// Run executes the command and associated process, returning an error if any.
func (a *App) Run() error {
	defer a.setReady()
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a *App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a *App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon and interrupts the running subcommand.
func (a *App) Quit() {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
	a.cancel()
}

// WaitReady waits for the daemon to be ready, or for the command to stop.
func (a *App) WaitReady() {
	<-a.ready
}

func (a *App) setReady() {
	a.readyOnce.Do(func() { close(a.ready) })
}

// RootCmd returns the root command.
func (a *App) RootCmd() *cobra.Command {
	return a.cmd
}

func (a *App) run() (err error) {
	defer a.setReady()

	schema, err := datamodel.Load(a.config.DataModel)
	if err != nil {
		return fmt.Errorf("failed to load data model: %v", err)
	}
	issuer, err := a.issuer()
	if err != nil {
		return err
	}

	a.config.Daemon.ConfigPath, err = filepath.Abs(a.config.Daemon.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for config file: %v", err)
	}
	dConf := a.config.Daemon

	db, err := database.New(a.ctx, a.config.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("Failed to close database connection", "error", err)
		}
	}()

	builder := query.NewBuilder(schema, query.WithPageSizes(dConf.DefaultPageSize, dConf.MaxPageSize))
	cm := config.New(dConf.ConfigPath, config.WithSeriesValidator(func(s query.Series) error {
		_, err := builder.Select(s)
		return err
	}))

	// The server context is not the app one: cancelling it would skip the graceful shutdown.
	srv, err := webservice.New(context.Background(), cm, db, schema, issuer, dConf)
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
	}
	a.daemon = srv
	a.setReady()

	return srv.Run()
}

func (a *App) issuer() (*auth.Issuer, error) {
	if a.config.Auth.Secret == "" {
		return nil, fmt.Errorf("token signing secret is not set: define %s or auth.secret", constants.TokenSecretEnv)
	}
	issuer, err := auth.NewIssuer([]byte(a.config.Auth.Secret), a.config.Auth.Issuer, auth.WithTTL(a.config.Auth.TTL))
	if err != nil {
		return nil, fmt.Errorf("invalid token configuration: %w", err)
	}
	return issuer, nil
}

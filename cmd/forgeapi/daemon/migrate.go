package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx" // PGX driver for golang-migrate
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
)

func (a *App) installMigrate() {
	var steps int

	migrateCmd := &cobra.Command{
		Use:   "migrate [path-to-migration-scripts]",
		Short: "Run migration scripts",
		Long: `Run migration scripts to update the database schema or data.
If no path is provided, the configured migrations directory is used.
Without --steps, every pending migration is applied. A positive number of steps applies that many
migrations, a negative one reverts them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = false

			if len(args) == 1 {
				a.config.Migrations = args[0]
			}

			fileInfo, err := os.Stat(a.config.Migrations)
			if err != nil {
				return fmt.Errorf("the provided path to migration scripts is not valid: %v", err)
			}
			if !fileInfo.IsDir() {
				return errors.New("the provided path to migration scripts should be a directory, not a file")
			}

			a.cmd.SilenceUsage = true

			slog.Info("Running migrate command", "dir", a.config.Migrations, "steps", steps)
			return a.migrateRun(steps)
		},
	}
	migrateCmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to apply, negative to revert (default all up)")

	a.cmd.AddCommand(migrateCmd)
}

func (a *App) migrateRun(steps int) error {
	dir, err := filepath.Abs(a.config.Migrations)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for migrations: %v", err)
	}

	m, err := migrate.New("file://"+filepath.ToSlash(dir), a.config.DB.URI("pgx"))
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %v", err)
	}
	defer func() {
		if sErr, dbErr := m.Close(); sErr != nil || dbErr != nil {
			if sErr != nil {
				slog.Error("failed to close migration instance", "error", sErr)
			}
			if dbErr != nil {
				slog.Error("failed to close database connection", "error", dbErr)
			}
		}
	}()

	// Quitting stops after the migration in progress.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-a.ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	if steps == 0 {
		err = m.Up()
	} else {
		err = m.Steps(steps)
	}
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("No new migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %v", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %v", err)
	}
	slog.Info("Migrations applied successfully", "version", version, "dirty", dirty)
	return nil
}

package testutils

import (
	"context"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/forgeapi/forgeapi/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer is a disposable PostgreSQL server.
type PostgresContainer struct {
	Container testcontainers.Container
	Config    database.Config
}

// StartPostgresContainer starts a PostgreSQL container terminated at the end of the test.
//
// The test is skipped in short mode, outside of Linux or without a container provider.
func StartPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	const (
		user     = "postgres"
		password = "postgres"
		name     = "forgeapi"
	)

	if testing.Short() {
		t.Skip("Skipping PostgreSQL container test in short mode")
	}
	if runtime.GOOS != "linux" {
		t.Skip("Skipping PostgreSQL container test on non-Linux OS")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     user,
			"POSTGRES_PASSWORD": password,
			"POSTGRES_DB":       name,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(time.Minute),
	}
	ctx := t.Context()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Setup: failed to start PostgreSQL container")
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		assert.NoError(t, container.Terminate(ctx), "Cleanup: failed to terminate PostgreSQL container")
	})

	host, err := container.Host(ctx)
	require.NoError(t, err, "Setup: failed to get container host")
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err, "Setup: failed to get mapped port")
	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err, "Setup: invalid mapped port")

	return &PostgresContainer{
		Container: container,
		Config: database.Config{
			Host:     host,
			Port:     p,
			User:     user,
			Password: password,
			DBName:   name,
			SSLMode:  "disable",
		},
	}
}

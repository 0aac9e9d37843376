package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forgeapi/forgeapi/internal/database"
	"github.com/forgeapi/forgeapi/pkg/orm"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ orm.Querier = (*database.Manager)(nil)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		newPoolErr error
		pingErr    error

		wantErr bool
	}{
		"Connects and pings": {},

		"Error on pool creation failure": {newPoolErr: errors.New("error requested by test"), wantErr: true},
		"Error on ping failure":          {pingErr: errors.New("error requested by test"), wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pool := &mockDBPool{pingErr: tc.pingErr}
			var gotDSN string
			newPool := func(_ context.Context, dsn string) (database.DBPool, error) {
				gotDSN = dsn
				if tc.newPoolErr != nil {
					return nil, tc.newPoolErr
				}
				return pool, nil
			}

			cfg := database.Config{Host: "localhost", Port: 5432, User: "forge", DBName: "app"}
			mgr, err := database.New(t.Context(), cfg, database.WithNewPool(newPool))
			assert.Equal(t, "postgres://forge@localhost:5432/app", gotDSN, "unexpected connection string")
			if tc.wantErr {
				require.Error(t, err, "New should fail")
				if tc.pingErr != nil {
					assert.True(t, pool.closed, "pool should be closed when ping fails")
				}
				return
			}
			require.NoError(t, err, "New should succeed")
			require.NoError(t, mgr.Close(), "Close should succeed")
		})
	}
}

func TestQueriesAfterClose(t *testing.T) {
	t.Parallel()

	pool := &mockDBPool{}
	mgr, err := database.New(t.Context(), database.Config{}, database.WithNewPool(
		func(context.Context, string) (database.DBPool, error) { return pool, nil }))
	require.NoError(t, err, "Setup: New should succeed")

	_, err = mgr.Exec(t.Context(), "SELECT 1")
	require.NoError(t, err, "Exec should succeed on an open pool")
	_, err = mgr.Query(t.Context(), "SELECT 1")
	require.NoError(t, err, "Query should succeed on an open pool")
	require.NoError(t, mgr.QueryRow(t.Context(), "SELECT 1").Scan(), "QueryRow should succeed on an open pool")
	require.NoError(t, mgr.Ping(t.Context()), "Ping should succeed on an open pool")
	assert.Equal(t, []string{"SELECT 1", "SELECT 1", "SELECT 1"}, pool.statements, "statements should reach the pool")

	require.NoError(t, mgr.Close(), "Close should succeed")
	require.NoError(t, mgr.Close(), "Closing twice should be a no-op")

	_, err = mgr.Exec(t.Context(), "SELECT 1")
	require.ErrorIs(t, err, database.ErrClosed, "Exec should fail once closed")
	_, err = mgr.Query(t.Context(), "SELECT 1")
	require.ErrorIs(t, err, database.ErrClosed, "Query should fail once closed")
	require.ErrorIs(t, mgr.QueryRow(t.Context(), "SELECT 1").Scan(), database.ErrClosed, "QueryRow should fail once closed")
	require.ErrorIs(t, mgr.Ping(t.Context()), database.ErrClosed, "Ping should fail once closed")
}

func TestCloseTimeout(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("Skipping close timeout test in short mode")
	}

	pool := &mockDBPool{closeDelay: 11 * time.Second}
	mgr, err := database.New(t.Context(), database.Config{}, database.WithNewPool(
		func(context.Context, string) (database.DBPool, error) { return pool, nil }))
	require.NoError(t, err, "Setup: New should succeed")

	require.Error(t, mgr.Close(), "Close should time out")
}

func TestURI(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		config database.Config
		scheme string

		want string
	}{
		"Full config": {
			config: database.Config{Host: "db", Port: 5433, User: "u", Password: "p@ss", DBName: "forge", SSLMode: "disable"},
			scheme: "pgx",
			want:   "pgx://u:p%40ss@db:5433/forge?sslmode=disable",
		},
		"No port nor password": {
			config: database.Config{Host: "db", User: "u", DBName: "forge"},
			scheme: "postgres",
			want:   "postgres://u@db/forge",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, tc.config.URI(tc.scheme), "unexpected URI")
		})
	}
}

type mockDBPool struct {
	statements []string
	pingErr    error
	closeDelay time.Duration
	closed     bool
}

func (m *mockDBPool) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	m.statements = append(m.statements, sql)
	return pgconn.CommandTag{}, nil
}

func (m *mockDBPool) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	m.statements = append(m.statements, sql)
	return nil, nil
}

func (m *mockDBPool) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	m.statements = append(m.statements, sql)
	return mockRow{}
}

func (m *mockDBPool) Ping(context.Context) error {
	return m.pingErr
}

func (m *mockDBPool) Close() {
	if m.closeDelay > 0 {
		time.Sleep(m.closeDelay)
	}
	m.closed = true
}

type mockRow struct{}

func (mockRow) Scan(...any) error { return nil }

package testutil

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/nkiryanov/refledger/internal/db"
)

// Tables holding rows of tests that commit, children first
var tables = []string{
	"admin_actions",
	"withdrawal_requests",
	"referrals",
	"ledger_transactions",
	"orders",
	"wallets",
	"accounts",
	"refresh_tokens",
	"admins",
}

// Return random free port on 127.0.0.1 address
func RandomPort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		return 0, err
	}
	defer ln.Close() // nolint:errcheck

	return ln.Addr().(*net.TCPAddr).Port, nil
}

type PostgresContainer struct {
	DSN           string
	Pool          *pgxpool.Pool
	SchemaVersion uint
	Terminate     func()
}

// StartPostgresContainer runs migrated postgres for the test package.
// Fails the test right away when docker is not usable, so a green run always means the db was there.
func StartPostgresContainer(t *testing.T) PostgresContainer {
	t.Helper()

	provider, err := testcontainers.NewDockerProvider()
	require.NoError(t, err, "docker provider is not available")
	defer provider.Close() // nolint:errcheck
	require.NoError(t, provider.Health(t.Context()), "docker is not running")

	port, err := RandomPort()
	require.NoError(t, err, "Error happened when acquiring random port to start postgres")

	container, err := postgres.Run(t.Context(),
		"postgres:17-alpine",
		postgres.WithDatabase("refledger-test"),
		postgres.WithUsername("refledger"),
		postgres.WithPassword("pwd"),
		postgres.BasicWaitStrategies(),
		testcontainers.CustomizeRequestOption(func(req *testcontainers.GenericContainerRequest) error {
			req.ExposedPorts = []string{fmt.Sprintf("%d:5432", port)}
			return nil
		}),
	)
	require.NoError(t, err, "Error happened when starting container with postgres")

	dsn, err := container.ConnectionString(t.Context(), "sslmode=disable")
	require.NoError(t, err, "Error happened when getting connection string from container")
	t.Logf("Container with pg started, DSN=%v", dsn)

	pool, version, err := db.ConnectAndMigrate(t.Context(), dsn, db.WithMaxConns(8))
	require.NoError(t, err, "Error happened when connecting to postgres and migrating schema")

	return PostgresContainer{
		DSN:           dsn,
		Pool:          pool,
		SchemaVersion: version,
		Terminate: func() {
			pool.Close()
			testcontainers.CleanupContainer(t, container)
		},
	}
}

type beginner interface {
	Begin(context.Context) (pgx.Tx, error)
}

// WithTx runs testFunc inside a transaction rolled back at the end, so the db stays unchanged.
// Nested calls on a pgx.Tx become savepoints.
func WithTx(db beginner, t *testing.T, testFunc func(tx pgx.Tx)) {
	tx, err := db.Begin(t.Context())
	require.NoError(t, err)

	defer func() {
		err := tx.Rollback(t.Context())
		require.NoError(t, err)
	}()

	testFunc(tx)
}

// Truncate removes rows committed by a test that can not run in a single transaction
func Truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	quoted := make([]string, len(tables))
	for i, name := range tables {
		quoted[i] = pgx.Identifier{name}.Sanitize()
	}

	_, err := pool.Exec(context.Background(), "TRUNCATE "+strings.Join(quoted, ", "))
	require.NoError(t, err, "Error happened when truncating tables")
}

// RequireMoney compares amounts by value, so "6" equals "6.00"
func RequireMoney(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()

	want := decimal.RequireFromString(expected)
	if !want.Equal(actual) {
		require.Fail(t, fmt.Sprintf("amounts differ: want %s, got %s", want, actual), msgAndArgs...)
	}
}

// Package testutil starts throwaway infrastructure for integration tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cory-johannsen/duelsim/internal/config"
	"github.com/cory-johannsen/duelsim/internal/storage/postgres"
	"github.com/cory-johannsen/duelsim/migrations"
)

const (
	postgresImage = "postgres:16-alpine"
	postgresPort  = "5432/tcp"
	credential    = "duelsim_test"
)

// Postgres is a disposable PostgreSQL server owned by one test.
type Postgres struct {
	Pool   *postgres.Pool
	Config config.DatabaseConfig
}

// StartPostgres runs a PostgreSQL container for t and connects a Pool to
// it. With migrate set the batch schema is applied first. The container
// is removed when t finishes; under -short the test is skipped.
//
// Precondition: A Docker daemon is reachable.
// Postcondition: Returns a connected server or fails t.
func StartPostgres(t *testing.T, migrate bool) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test needs docker")
	}
	ctx := context.Background()
	began := time.Now()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{postgresPort},
			Env: map[string]string{
				"POSTGRES_USER":     credential,
				"POSTGRES_PASSWORD": credential,
				"POSTGRES_DB":       credential,
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort(postgresPort).WithStartupTimeout(time.Minute),
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(time.Minute),
			),
		},
	})
	require.NoError(t, err, "starting %s", postgresImage)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, postgresPort)
	require.NoError(t, err)

	db := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            credential,
		Password:        credential,
		Name:            credential,
		SSLMode:         "disable",
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Minute,
	}

	if migrate {
		res, err := migrations.Apply(db.DSN(), "up", 0)
		require.NoError(t, err)
		t.Logf("schema at version %d", res.Version)
	}

	pool, err := postgres.NewPool(ctx, db)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	t.Logf("postgres ready on %s:%d [%s]", host, db.Port, time.Since(began))
	return &Postgres{Pool: pool, Config: db}
}

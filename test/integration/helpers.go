// Shared infrastructure for the integration tests: container lifecycle,
// database connections, and truncation helpers.  Containers start once per
// test binary and are reused by every test that needs them.
package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/PriorityCraft/internal/config"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/database/postgres"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/database/redis"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
)

const (
	postgresImage = "postgres:16-alpine"
	redisImage    = "redis:7-alpine"

	testDBUser = "pcraft"
	testDBPass = "pcraft"
	testDBName = "pcraft_test"

	setupTimeout = 2 * time.Minute
)

// migrationPath is relative to this package's directory.
const migrationPath = "../../migrations"

var (
	pgOnce sync.Once
	pgConn *postgres.Connection
	pgErr  error

	redisOnce   sync.Once
	redisClient *redis.Client
	redisErr    error
)

func skipUnlessIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in -short mode")
	}
}

func testLogger() logging.Logger {
	return logging.NewNopLogger()
}

// postgresConnection starts (once) a disposable PostgreSQL container, runs
// the migrations against it, and returns the shared connection.
func postgresConnection(t *testing.T) *postgres.Connection {
	t.Helper()
	skipUnlessIntegration(t)

	pgOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
		defer cancel()

		ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        postgresImage,
				ExposedPorts: []string{"5432/tcp"},
				Env: map[string]string{
					"POSTGRES_USER":     testDBUser,
					"POSTGRES_PASSWORD": testDBPass,
					"POSTGRES_DB":       testDBName,
				},
				WaitingFor: wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(90 * time.Second),
			},
			Started: true,
		})
		if err != nil {
			pgErr = fmt.Errorf("start postgres container: %w", err)
			return
		}

		host, err := ctr.Host(ctx)
		if err != nil {
			pgErr = fmt.Errorf("postgres container host: %w", err)
			return
		}
		port, err := ctr.MappedPort(ctx, "5432/tcp")
		if err != nil {
			pgErr = fmt.Errorf("postgres container port: %w", err)
			return
		}

		conn, err := postgres.NewConnection(config.DatabaseConfig{
			Host:          host,
			Port:          port.Int(),
			User:          testDBUser,
			Password:      testDBPass,
			DBName:        testDBName,
			SSLMode:       "disable",
			MaxConns:      5,
			MigrationPath: migrationPath,
		}, testLogger())
		if err != nil {
			pgErr = fmt.Errorf("connect to postgres container: %w", err)
			return
		}
		if err := conn.RunMigrations(); err != nil {
			pgErr = fmt.Errorf("run migrations: %w", err)
			return
		}
		pgConn = conn
	})
	if pgErr != nil {
		t.Fatalf("postgres setup failed: %v", pgErr)
	}
	return pgConn
}

// redisConnection starts (once) a disposable Redis container and returns
// the shared client.
func redisConnection(t *testing.T) *redis.Client {
	t.Helper()
	skipUnlessIntegration(t)

	redisOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
		defer cancel()

		ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        redisImage,
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor: wait.ForLog("Ready to accept connections").
					WithStartupTimeout(60 * time.Second),
			},
			Started: true,
		})
		if err != nil {
			redisErr = fmt.Errorf("start redis container: %w", err)
			return
		}

		host, err := ctr.Host(ctx)
		if err != nil {
			redisErr = fmt.Errorf("redis container host: %w", err)
			return
		}
		port, err := ctr.MappedPort(ctx, "6379/tcp")
		if err != nil {
			redisErr = fmt.Errorf("redis container port: %w", err)
			return
		}

		client, err := redis.NewClient(config.RedisConfig{
			Addr: fmt.Sprintf("%s:%s", host, port.Port()),
		}, testLogger())
		if err != nil {
			redisErr = fmt.Errorf("connect to redis container: %w", err)
			return
		}
		redisClient = client
	})
	if redisErr != nil {
		t.Fatalf("redis setup failed: %v", redisErr)
	}
	return redisClient
}

// truncateTables clears the named tables between tests.  CASCADE keeps the
// approvals foreign key from getting in the way.
func truncateTables(t *testing.T, conn *postgres.Connection, tables ...string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, tbl := range tables {
		if _, err := conn.DB().ExecContext(ctx, "TRUNCATE TABLE "+tbl+" CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", tbl, err)
		}
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

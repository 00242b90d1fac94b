//go:build integration

package testutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Containers holds the backing services of an integration run
type Containers struct {
	Postgres    testcontainers.Container
	NATS        testcontainers.Container
	PostgresURL string
	NATSURL     string
}

// StartPostgres starts a PostgreSQL container
func StartPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	pg, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("jira"),
		postgres.WithUsername("jira"),
		postgres.WithPassword("jirapass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pg.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}
	return pg, dsn, nil
}

// StartNATS starts a NATS server with JetStream enabled
func StartNATS(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			Cmd:          []string{"-js"},
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			WaitingFor: wait.ForLog("Server is ready").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to start nats container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get nats host: %w", err)
	}

	port, err := container.MappedPort(ctx, nat.Port("4222/tcp"))
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get nats port: %w", err)
	}

	return container, fmt.Sprintf("nats://%s:%s", host, port.Port()), nil
}

// StartContainers starts PostgreSQL and NATS
func StartContainers(ctx context.Context) (*Containers, error) {
	c := &Containers{}

	pg, dsn, err := StartPostgres(ctx)
	if err != nil {
		return nil, err
	}
	c.Postgres, c.PostgresURL = pg, dsn

	nc, natsURL, err := StartNATS(ctx)
	if err != nil {
		_ = c.Cleanup(ctx)
		return nil, err
	}
	c.NATS, c.NATSURL = nc, natsURL

	return c, nil
}

// Cleanup terminates all containers
func (c *Containers) Cleanup(ctx context.Context) error {
	var errs []error
	if c.Postgres != nil {
		if err := c.Postgres.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate postgres: %w", err))
		}
	}
	if c.NATS != nil {
		if err := c.NATS.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate nats: %w", err))
		}
	}
	return errors.Join(errs...)
}

// OpenSQL opens a database/sql handle for asserting on rows directly
func OpenSQL(t testing.TB, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

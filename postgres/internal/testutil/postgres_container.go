package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	pgOnce     sync.Once
	pgEndpoint string
	pgErr      error
)

// GetPostgresEndpoint returns a DSN for a shared Testcontainers Postgres
// instance. If the container cannot be started (e.g. Docker not available),
// tests are skipped.
func GetPostgresEndpoint(t *testing.T) string {
	t.Helper()

	pgOnce.Do(func() {
		pgEndpoint, pgErr = startPostgresContainer()
	})

	if pgErr != nil {
		t.Skipf("skipping Postgres tests: %v", pgErr)
	}

	return pgEndpoint
}

func startPostgresContainer() (endpoint string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	// Guard against Testcontainers panicking (e.g. rootless Docker on Windows).
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("starting Postgres testcontainer panicked: %v", r)
		}
	}()

	pgC, err := testcontainers.Run(
		ctx, "postgres:16",
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "contactflow",
			"POSTGRES_PASSWORD": "contactflow",
			"POSTGRES_DB":       "contactflow",
		}),
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start Postgres testcontainer: %w", err)
	}

	// Cleanup is intentionally not tied to a single test; Docker reaps the
	// container at process exit.

	host, err := pgC.Host(ctx)
	if err != nil {
		_ = pgC.Terminate(context.Background())
		return "", fmt.Errorf("failed to get Postgres container host: %w", err)
	}

	port, err := pgC.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = pgC.Terminate(context.Background())
		return "", fmt.Errorf("failed to get Postgres container mapped port: %w", err)
	}

	if host == "" || host == "localhost" || host == "::1" {
		host = "127.0.0.1"
	}

	return fmt.Sprintf("postgres://contactflow:contactflow@%s:%s/contactflow?sslmode=disable", host, port.Port()), nil
}

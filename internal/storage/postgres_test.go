//go:build integration

package storage

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/facefind/internal/config"
)

func setupPostgres(t *testing.T) config.DatabaseConfig {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}
	p, err := strconv.Atoi(port.Port())
	if err != nil {
		t.Fatalf("Failed to parse port: %v", err)
	}

	return config.DatabaseConfig{
		Driver:   config.DriverPostgres,
		Host:     host,
		Port:     p,
		Name:     "testdb",
		User:     "test",
		Password: "test",
		MaxConns: 5,
	}
}

func TestPostgresStore(t *testing.T) {
	cfg := setupPostgres(t)
	ctx := context.Background()

	runStoreSuite(t, func(t *testing.T) Store {
		s, err := Open(ctx, cfg, 0)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		pg := s.(*PostgresStore)
		if _, err := pg.pool.Exec(ctx,
			`TRUNCATE embedding_vectors, embeddings, file_chunks, files, faces RESTART IDENTITY CASCADE`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

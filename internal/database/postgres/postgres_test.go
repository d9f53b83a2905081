//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/logging"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testDim = 4

func setupTestContainer(t *testing.T) (*IdentityRepository, func()) {
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
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		EncodingDim:  testDim,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	repo := NewIdentityRepository(pool, testDim, logging.Discard())
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return repo, cleanup
}

func TestIdentityRepository(t *testing.T) {
	repo, cleanup := setupTestContainer(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("Insert and Read", func(t *testing.T) {
		ok := repo.Insert(ctx, database.IdentityRecord{Name: "alice", Encoding: database.Encoding{0, 0, 0, 0}})
		if !ok {
			t.Fatal("expected insert to succeed")
		}
		ok = repo.Insert(ctx, database.IdentityRecord{Name: "face_1", Encoding: database.Encoding{1, 1, 1, 1}})
		if !ok {
			t.Fatal("expected insert to succeed")
		}

		records, err := repo.Read(ctx)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if records[0].Name != "alice" || records[1].Type != database.TypeUnknown {
			t.Errorf("unexpected records: %+v", records)
		}
	})

	t.Run("Duplicate name", func(t *testing.T) {
		if repo.Insert(ctx, database.IdentityRecord{Name: "alice", Encoding: database.Encoding{5, 5, 5, 5}}) {
			t.Error("expected duplicate insert to fail")
		}
	})

	t.Run("FindNearest", func(t *testing.T) {
		neighbors, err := repo.FindNearest(ctx, database.Encoding{0.9, 0.9, 0.9, 0.9}, 1)
		if err != nil {
			t.Fatalf("FindNearest failed: %v", err)
		}
		if len(neighbors) != 1 || neighbors[0].Record.Name != "face_1" {
			t.Fatalf("expected face_1 nearest, got %+v", neighbors)
		}
		if neighbors[0].Distance < 0.19 || neighbors[0].Distance > 0.21 {
			t.Errorf("expected distance ~0.2, got %f", neighbors[0].Distance)
		}
	})

	t.Run("Corrupt encoding", func(t *testing.T) {
		_, err := repo.pool.Exec(ctx, `
			INSERT INTO identities (name, type, encoding, created_at, embedding)
			VALUES ('broken', 'KNOWN', '[1 2 x 4]', 'now', '[1,2,3,4]')
		`)
		if err != nil {
			t.Fatalf("raw insert failed: %v", err)
		}
		if _, err := repo.Read(ctx); !errors.Is(err, database.ErrCorruptEncoding) {
			t.Errorf("expected ErrCorruptEncoding, got %v", err)
		}
	})

	t.Run("DeleteAll", func(t *testing.T) {
		if err := repo.DeleteAll(ctx); err != nil {
			t.Fatalf("DeleteAll failed: %v", err)
		}
		records, err := repo.Read(ctx)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("expected no records, got %d", len(records))
		}
	})
}

func TestMigrations(t *testing.T) {
	repo, cleanup := setupTestContainer(t)
	defer cleanup()

	ctx := context.Background()

	versions, err := repo.pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("MigrationsApplied failed: %v", err)
	}
	if len(versions) == 0 || versions[0] != "001_identities.sql" {
		t.Errorf("unexpected migrations: %v", versions)
	}

	// Re-running is a no-op.
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	if err := repo.DropSchema(ctx); err != nil {
		t.Fatalf("DropSchema failed: %v", err)
	}
	tables, err := repo.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables failed: %v", err)
	}
	if database.HasIdentitiesTable(tables) {
		t.Errorf("identities table still present: %v", tables)
	}
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDatabase creates a PostgreSQL testcontainer and runs migrations
func setupTestDatabase(t *testing.T) *PostgresRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("reports_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, runMigrations(connStr))

	repo, err := NewPostgresRepository(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

// runMigrations runs SQL migrations from the migrations directory
func runMigrations(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	migrationSQL, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_init.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}
	return nil
}

func TestNewPostgresRepository(t *testing.T) {
	tests := []struct {
		name       string
		connString string
	}{
		{name: "invalid connection string", connString: "invalid://connection"},
		{name: "unreachable host", connString: "postgres://u:p@127.0.0.1:1/db?sslmode=disable&connect_timeout=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := NewPostgresRepository(ctx, tt.connString)
			require.Error(t, err)
		})
	}
}

func TestPostgresRepository_Templates(t *testing.T) {
	runTemplateContract(t, setupTestDatabase(t))
}

func TestPostgresRepository_Reports(t *testing.T) {
	runReportContract(t, setupTestDatabase(t))
}

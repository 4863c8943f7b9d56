package testutil

import (
	"context"
	"testing"
	"time"

	"digido/database"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDatabase bundles a throwaway Postgres container with a migrated
// connection pool
type TestDatabase struct {
	DB        *database.DB
	container *postgres.PostgresContainer
}

// SetupTestDatabase starts a Postgres container, applies all migrations and
// returns a connected pool. The container is torn down when the test ends.
func SetupTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("digido_test"),
		postgres.WithUsername("digido"),
		postgres.WithPassword("digido"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	databaseURL, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := database.RunMigrationsWithURL(databaseURL); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	db, err := database.NewConnection(ctx, databaseURL)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(db.Close)

	return &TestDatabase{DB: db, container: container}
}

package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/nezuni1812/bidhub/internal/testutil/containers"
)

// TestDB is a migrated database on a disposable container.
type TestDB struct {
	Pool *pgxpool.Pool
	URL  string
}

// NewTestDB spins up a postgres container, applies all migrations, and
// registers cleanup. Skipped under -short.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := containers.NewPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() {
		_ = pg.Terminate(context.Background())
	})

	if err := applyMigrations(pg.ConnectionString); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, pg.ConnectionString)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return &TestDB{Pool: pool, URL: pg.ConnectionString}
}

// Truncate wipes all bidding tables between test cases.
func (db *TestDB) Truncate(t *testing.T) {
	t.Helper()
	_, err := db.Pool.Exec(context.Background(),
		`TRUNCATE orders, auction_exclusions, proxy_bid_configs, bids, auctions`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func applyMigrations(url string) error {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return err
	}
	defer db.Close()

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir(), "postgres", driver)
	if err != nil {
		return err
	}
	return m.Up()
}

func migrationsDir() string {
	// Resolve relative to this source file so tests work from any package.
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/nezuni1812/bidhub/internal/infrastructure/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to configuration file")
		action     = flag.String("action", "up", "migration action: up, down, version")
		dir        = flag.String("dir", "migrations", "migrations directory")
		steps      = flag.Int("steps", 0, "number of migrations to run (0 = all)")
	)
	flag.Parse()

	if err := run(*configPath, *action, *dir, *steps); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

func run(configPath, action, dir string, steps int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("init driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}

	switch action {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return nil
		}
		if verr != nil {
			return verr
		}
		fmt.Printf("version %d (dirty: %v)\n", version, dirty)
		return nil
	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", action)
		os.Exit(2)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("no change")
		return nil
	}
	return err
}

package main

import (
	"database/sql"
	"errors"
	"flag"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/whataybo/api/internal/config"
)

func main() {
	dir := flag.String("path", "migrations", "Directory holding the migration files")
	steps := flag.Int("steps", 0, "Apply N steps (negative rolls back); 0 runs the whole direction")
	flag.Parse()

	direction := flag.Arg(0)
	if direction == "" {
		direction = "up"
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("create migrate driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+*dir, "postgres", driver)
	if err != nil {
		log.Fatalf("create migrate instance: %v", err)
	}

	switch {
	case *steps != 0:
		err = m.Steps(*steps)
	case direction == "up":
		err = m.Up()
	case direction == "down":
		err = m.Down()
	case direction == "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			log.Fatalf("read version: %v", verr)
		}
		log.Printf("version %d (dirty: %t)", version, dirty)
		return
	default:
		log.Fatalf("unknown command %q (want up, down or version)", direction)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("No migrations to apply")
		return
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", direction, err)
	}
	log.Printf("Migrate %s completed", direction)
}

package main

import (
	"errors"
	"flag"
	"log"

	migrate "github.com/golang-migrate/migrate/v4"

	"github.com/noah-isme/backoffice-toko/internal/config"
	"github.com/noah-isme/backoffice-toko/internal/db"
)

func main() {
	var (
		direction = flag.String("direction", "up", "up, down or version")
		steps     = flag.Int("steps", 0, "number of migrations to apply; 0 applies all (down requires steps)")
		force     = flag.Int("force", -1, "force the schema version after a failed migration")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	m, err := db.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("init migrator: %v", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			log.Printf("close migrator: source=%v database=%v", srcErr, dbErr)
		}
	}()

	if *force >= 0 {
		if err := m.Force(*force); err != nil {
			log.Fatalf("force version %d: %v", *force, err)
		}
		log.Printf("forced schema version %d", *force)
		return
	}

	switch *direction {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps <= 0 {
			log.Fatal("down requires -steps > 0")
		}
		err = m.Steps(-*steps)
	case "version":
	default:
		log.Fatalf("unknown direction %q", *direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migrate %s: %v", *direction, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Fatalf("read version: %v", err)
	}
	log.Printf("schema version %d dirty=%t", version, dirty)
}

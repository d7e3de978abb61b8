package main

import (
	"log"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose"

	"github.com/oeee-cafe/oeee-client/internal/config"
	"github.com/oeee-cafe/oeee-client/internal/kv"
)

const migrationsDir = "migrations"

// main applies the kv_entries migrations to the configured PostgreSQL database.
// The goose command defaults to "up"; e.g. `migrator status` or `migrator down`.
func main() {
	cfg := config.MustLoad()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	dbpool, dbErr := kv.NewDatabase(
		cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Dbname)
	if dbErr != nil {
		log.Fatalf("Failed to connect to DB: %v", dbErr)
	}
	defer dbpool.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal(err)
	}

	dtb := stdlib.OpenDBFromPool(dbpool)
	if migrationErr := goose.Run(command, dtb, migrationsDir, os.Args[min(len(os.Args), 2):]...); migrationErr != nil {
		log.Fatal(migrationErr)
	}

	log.Printf("✅ Migration command %q completed", command)
}

package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"provision_platform/cmd/migration/versions"

	gormigrate "github.com/go-gormigrate/gormigrate/v2"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func postgresDsn(databaseUri string) string {
	parts, err := url.Parse(databaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func openDb(databaseUri string) *gorm.DB {
	var dialector gorm.Dialector
	if strings.HasPrefix(databaseUri, "postgres") {
		dialector = postgres.Open(postgresDsn(databaseUri))
	} else {
		dialector = sqlite.Open(databaseUri)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}
	return db
}

// Migrations are tracked in the migrations table, rerunning the binary only
// applies the ones not yet recorded.
func migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{ID: "0_initial_schema", Migrate: versions.Migration_0_initial_schema},
		{ID: "1_backfill_derived_fields", Migrate: versions.Migration_1_backfill_derived_fields},
	}
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")

	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("error loading .env file '%v': %v", *envFile, err)
		}
	}

	databaseUri := os.Getenv("DATABASE_URI")
	if databaseUri == "" {
		log.Fatal("DATABASE_URI env var must be specified")
	}

	db := openDb(databaseUri)

	m := gormigrate.New(db, gormigrate.DefaultOptions, migrations())
	if err := m.Migrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	slog.Info("migrations complete")
}

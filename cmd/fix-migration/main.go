// Package main is a repair tool for dirty migration state in the portal
// database. Dirty state occurs when the golang-migrate runner marks a migration
// version as in-progress (dirty=true) but the process was interrupted before it
// could complete. This tool forces the schema back to the previous version so
// the runner retries the interrupted migration on the next server startup.
// Migrations use IF NOT EXISTS guards, so re-running a partly applied one is safe.
package main

import (
	"context"
	"log"
	"os"

	"github.com/sports-federation/federation-portal/internal/config"
	"github.com/sports-federation/federation-portal/internal/db"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("DOTENV_PATH")); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(context.Background(), cfg.Database.GetDSN(), 1, 1)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("Connected to database successfully")

	version, wasDirty, err := db.ClearDirty(database)
	if err != nil {
		log.Fatalf("Failed to fix migration state: %v", err)
	}
	if !wasDirty {
		log.Printf("Migration state is already clean (version=%d)", version)
		return
	}
	log.Printf("Cleared dirty state at version %d; it will be re-applied on next start", version)

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check final migration state: %v", err)
	}
	log.Printf("Final migration state: version=%d, dirty=%v", version, dirty)
}

// Package main is a diagnostic tool for testing database connectivity and
// inspecting live portal data. It connects with the configured DSN, prints the
// schema version, admin accounts per role, session counts and the most recent
// activity records. The binary exits non-zero on any failure so it can gate
// deployments on a reachable, migrated database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sports-federation/federation-portal/internal/config"
	"github.com/sports-federation/federation-portal/internal/db"
	"github.com/sports-federation/federation-portal/internal/db/repositories"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("DOTENV_PATH")); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.Connect(ctx, cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("=== SCHEMA ===\nversion=%d dirty=%v\n", version, dirty)
	if dirty {
		log.Fatal("schema is dirty; run cmd/fix-migration")
	}

	sqlxDB := sqlx.NewDb(database, "postgres")

	fmt.Println("\n=== ADMIN USERS ===")
	var roles []struct {
		Role  string `db:"role"`
		Count int    `db:"count"`
	}
	if err := sqlxDB.SelectContext(ctx, &roles, `SELECT role, COUNT(*) AS count FROM admin_users GROUP BY role ORDER BY role`); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	if len(roles) == 0 {
		fmt.Println("No admin users found! Provision one with cmd/hash.")
	}
	for _, r := range roles {
		fmt.Printf("%-12s %d\n", r.Role, r.Count)
	}

	fmt.Println("\n=== SESSIONS ===")
	var total, live int
	cutoff := time.Now().Add(-cfg.Auth.TokenTTL)
	if err := sqlxDB.GetContext(ctx, &total, `SELECT COUNT(*) FROM admin_sessions`); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	if err := sqlxDB.GetContext(ctx, &live, `SELECT COUNT(*) FROM admin_sessions WHERE created_at >= $1`, cutoff); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("total=%d within token lifetime=%d\n", total, live)

	fmt.Println("\n=== RECENT ACTIVITY ===")
	logs, count, err := repositories.NewActivityLogRepository(sqlxDB).List(ctx, repositories.ActivityFilters{}, 5, 0)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	for _, l := range logs {
		actor := "-"
		if l.ActorUserID != nil {
			actor = *l.ActorUserID
		}
		fmt.Printf("%s  %-22s actor=%s ip=%s\n", l.CreatedAt.Format(time.RFC3339), l.Action, actor, l.IPAddress)
	}
	fmt.Printf("(%d records in total)\n", count)
}

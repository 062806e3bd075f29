package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/cr360/cr360/internal/config"
	"github.com/cr360/cr360/internal/database"
)

func main() {
	ctx := context.Background()
	cfg := config.NewDefaultLoader().MustLoad(ctx)
	db := cfg.Database

	fmt.Println("=== Running Database Migrations ===")
	fmt.Printf("Connecting to database: %s@%s:%s/%s\n", db.Username, db.Host, db.Port, db.Database)

	migrationConfig := database.MigrationConfig{
		DatabaseURL: fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			db.Username, db.Password, db.Host, db.Port, db.Database, db.SSLMode),
		MigrationsPath: "./migrations",
	}

	if err := database.RunMigrations(migrationConfig); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	conn, err := sql.Open("postgres", db.DSN())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer conn.Close()

	if err := database.HealthCheck(conn); err != nil {
		log.Fatalf("Post-migration check failed: %v", err)
	}

	fmt.Println("Database migrations completed successfully")
}

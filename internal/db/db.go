// Package db holds the shared database connection, opened from DATABASE_URL.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// DB is the shared connection pool. Nil when the server runs without a
// database.
var DB *sql.DB

// Init opens the connection pool from the DATABASE_URL environment variable.
func Init() error {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	DB = conn
	return nil
}

// Close closes the shared connection pool.
func Close() error {
	if DB == nil {
		return nil
	}
	return DB.Close()
}

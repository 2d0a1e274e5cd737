package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the database named by dsn and reports which driver
// handled it. postgres:// and postgresql:// URLs go through pgx;
// anything else is treated as a SQLite file path, with an optional
// sqlite: prefix.
func Open(ctx context.Context, dsn string) (*sql.DB, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, "", fmt.Errorf("open db: %w", err)
		}
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, "", fmt.Errorf("ping db: %w", err)
		}
		return db, DriverPostgres, nil
	}

	path := strings.TrimPrefix(dsn, "sqlite:")
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, "", fmt.Errorf("open sqlite db: %w", err)
	}
	// sqlite has a single writer
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, DriverSQLite, nil
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/twelves/apiserver/config"
)

const (
	defaultDBDriver     = "postgres"
	defaultPingTimeout  = 5 * time.Second
	defaultConnMaxIdle  = 2 * time.Minute
	defaultConnMaxLife  = 30 * time.Minute
	defaultMaxIdleConns = 5
	defaultMaxOpenConns = 25

	// DefaultMigrationsURL is relative to the repository root.
	DefaultMigrationsURL = "file://internal/db/migrations"
)

func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := sql.Open(defaultDBDriver, cfg.Database.URL())
	if err != nil {
		return nil, err
	}

	db.SetConnMaxIdleTime(defaultConnMaxIdle)
	db.SetConnMaxLifetime(defaultConnMaxLife)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetMaxOpenConns(defaultMaxOpenConns)

	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate applies (up=true) or rolls back (up=false) every migration found at migrationsURL.
// Running with nothing to do is not an error.
func Migrate(cfg config.Config, migrationsURL string, up bool) error {
	migrator, err := migrate.New(migrationsURL, cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if up {
		err = migrator.Up()
	} else {
		err = migrator.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		direction := "down"
		if up {
			direction = "up"
		}
		return fmt.Errorf("migrate %s failed: %w", direction, err)
	}
	return nil
}

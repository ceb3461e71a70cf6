package repository

import (
	"context"
	"fmt"

	"retailpos/internal/db"
)

// Open connects to the configured driver, applies pending migrations and
// returns the matching store.
func Open(ctx context.Context, driver, databaseURL string, maxConns int32) (Store, error) {
	switch driver {
	case "postgres":
		pool, err := db.NewPool(ctx, databaseURL, maxConns)
		if err != nil {
			return nil, err
		}
		if err := db.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPostgresStore(pool), nil
	case "sqlite":
		conn, err := db.OpenSQLite(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.RunSQLiteMigrations(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return NewSQLiteStore(conn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

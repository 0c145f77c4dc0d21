package upgrade

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DataHookFunc transforms rows after the SQL migration for its schema
// version has been applied.
type DataHookFunc func(ctx context.Context, db *sql.DB) error

type dataHook struct {
	version uint
	name    string
	fn      DataHookFunc
}

var hooks []dataHook

// RegisterDataHook adds a hook. Names must be unique; hooks run in
// registration order.
func RegisterDataHook(version uint, name string, fn DataHookFunc) {
	hooks = append(hooks, dataHook{version: version, name: name, fn: fn})
}

// RunPendingHooks runs every hook not yet recorded in data_migrations and
// returns how many ran. Hooks whose schema version is above current are
// left for a later run.
func RunPendingHooks(ctx context.Context, db *sql.DB, current uint) (int, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS data_migrations (
			name       VARCHAR(255) PRIMARY KEY,
			version    INT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return 0, fmt.Errorf("ensure data_migrations table: %w", err)
	}

	applied, err := appliedHooks(ctx, db)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, h := range hooks {
		if applied[h.name] || h.version > current {
			continue
		}
		start := time.Now()
		slog.Info("upgrade.hook.start", "name", h.name, "schema_version", h.version)
		if err := h.fn(ctx, db); err != nil {
			return count, fmt.Errorf("data hook %q: %w", h.name, err)
		}
		if _, err := db.ExecContext(ctx,
			"INSERT INTO data_migrations (name, version, applied_at) VALUES ($1, $2, NOW())",
			h.name, h.version); err != nil {
			return count, fmt.Errorf("record hook %q: %w", h.name, err)
		}
		slog.Info("upgrade.hook.done", "name", h.name, "duration", time.Since(start))
		count++
	}
	return count, nil
}

func appliedHooks(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM data_migrations")
	if err != nil {
		return nil, fmt.Errorf("query data_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

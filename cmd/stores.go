package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/messenger/internal/config"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/internal/store/memory"
	"github.com/nextlevelbuilder/messenger/internal/store/pg"
	"github.com/nextlevelbuilder/messenger/internal/store/sqlite"
	"github.com/nextlevelbuilder/messenger/internal/upgrade"
)

// openStores opens the backend selected by database.mode. The returned
// *sql.DB is nil in memory mode.
func openStores(ctx context.Context, cfg *config.Config) (*store.Stores, *sql.DB, error) {
	sc := store.StoreConfig{
		Mode:        cfg.Database.Mode,
		PostgresDSN: cfg.Database.PostgresDSN,
		SQLitePath:  cfg.Database.SQLitePath,
	}
	switch sc.Mode {
	case "memory":
		slog.Warn("database.mode is memory: data is lost on restart")
		return memory.NewStores(), nil, nil
	case "sqlite":
		return sqlite.NewSQLiteStores(ctx, sc)
	case "postgres":
		if !cfg.IsManagedMode() {
			return nil, nil, fmt.Errorf("database.mode is postgres but MESSENGER_POSTGRES_DSN is not set")
		}
		stores, db, err := pg.NewPGStores(sc)
		if err != nil {
			return nil, nil, err
		}
		s, err := upgrade.CheckSchema(db)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("check schema: %w", err)
		}
		if err := s.Err(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("%w\n%s", err, upgrade.FormatError(s))
		}
		return stores, db, nil
	}
	return nil, nil, fmt.Errorf("unknown database mode %q", sc.Mode)
}

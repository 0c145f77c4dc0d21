package upgrade

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nextlevelbuilder/messenger/internal/store"
)

func init() {
	RegisterDataHook(2, "002_backfill_private_thread_keys", backfillPrivateKeys)
}

// backfillPrivateKeys fills threads.private_key for private threads created
// before the column existed, so private lookups find them.
func backfillPrivateKeys(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx,
		`SELECT t.id, p.owner_type, p.owner_id
		 FROM threads t
		 JOIN participants p ON p.thread_id = t.id AND p.deleted_at IS NULL
		 WHERE t.type = $1 AND t.private_key IS NULL
		 ORDER BY t.id`, store.ThreadPrivate)
	if err != nil {
		return fmt.Errorf("query private threads: %w", err)
	}

	owners := make(map[string][]store.Provider)
	for rows.Next() {
		var id string
		var p store.Provider
		if err := rows.Scan(&id, &p.Alias, &p.ID); err != nil {
			rows.Close()
			return err
		}
		owners[id] = append(owners[id], p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for id, ps := range owners {
		if len(ps) != 2 {
			continue
		}
		if _, err := db.ExecContext(ctx,
			`UPDATE threads SET private_key = $1 WHERE id = $2 AND private_key IS NULL`,
			store.PrivateKey(ps[0], ps[1]), id); err != nil {
			return fmt.Errorf("backfill thread %s: %w", id, err)
		}
	}
	return nil
}

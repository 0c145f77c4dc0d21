package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/messenger/internal/store"
)

// SQLBotStore implements store.BotStore.
type SQLBotStore struct {
	c *conn
}

const botColumns = `id, thread_id, owner_type, owner_id, name, avatar, enabled, hide_actions, cooldown,
	created_at, updated_at, deleted_at`

const actionColumns = `id, bot_id, owner_type, owner_id, handler, triggers, match_mode, case_sensitive, payload,
	cooldown, enabled, admin_only, created_at, updated_at`

func (s *SQLBotStore) CreateBot(ctx context.Context, b *store.BotData) error {
	if b.ID == uuid.Nil {
		b.ID = store.GenNewID()
	}
	_, err := s.c.exec(ctx,
		`INSERT INTO bots (`+botColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		b.ID, b.ThreadID, b.Owner.Alias, b.Owner.ID, b.Name, b.Avatar, b.Enabled, b.HideActions, b.Cooldown,
		b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (s *SQLBotStore) GetBot(ctx context.Context, id uuid.UUID) (*store.BotData, error) {
	rows, err := s.c.query(ctx,
		`SELECT `+botColumns+` FROM bots WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bots, err := scanBots(rows)
	if err != nil {
		return nil, err
	}
	if len(bots) == 0 {
		return nil, store.ErrNotFound
	}
	return bots[0], nil
}

func (s *SQLBotStore) ListBots(ctx context.Context, threadID uuid.UUID) ([]*store.BotData, error) {
	rows, err := s.c.query(ctx,
		`SELECT `+botColumns+` FROM bots WHERE thread_id = ? AND deleted_at IS NULL ORDER BY created_at, id`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBots(rows)
}

func (s *SQLBotStore) ListEnabledWithActions(ctx context.Context, threadID uuid.UUID) ([]store.BotWithActions, error) {
	rows, err := s.c.query(ctx,
		`SELECT `+botColumns+` FROM bots
		 WHERE thread_id = ? AND enabled = ? AND deleted_at IS NULL ORDER BY created_at, id`, threadID, true)
	if err != nil {
		return nil, err
	}
	bots, err := scanBots(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(bots) == 0 {
		return nil, nil
	}

	out := make([]store.BotWithActions, 0, len(bots))
	for _, b := range bots {
		actionRows, err := s.c.query(ctx,
			`SELECT `+actionColumns+` FROM bot_actions
			 WHERE bot_id = ? AND enabled = ? ORDER BY created_at, id`, b.ID, true)
		if err != nil {
			return nil, err
		}
		actions, err := scanActions(actionRows)
		actionRows.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, store.BotWithActions{Bot: b, Actions: actions})
	}
	return out, nil
}

func (s *SQLBotStore) CreateAction(ctx context.Context, a *store.BotActionData) error {
	if a.ID == uuid.Nil {
		a.ID = store.GenNewID()
	}
	triggers, err := json.Marshal(a.Triggers)
	if err != nil {
		return fmt.Errorf("marshal triggers: %w", err)
	}
	_, err = s.c.exec(ctx,
		`INSERT INTO bot_actions (`+actionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.BotID, a.Owner.Alias, a.Owner.ID, a.Handler, string(triggers), a.MatchMode, a.CaseSensitive,
		nullString(a.Payload), a.Cooldown, a.Enabled, a.AdminOnly, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (s *SQLBotStore) GetAction(ctx context.Context, id uuid.UUID) (*store.BotActionData, error) {
	rows, err := s.c.query(ctx, `SELECT `+actionColumns+` FROM bot_actions WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	actions, err := scanActions(rows)
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, store.ErrNotFound
	}
	return actions[0], nil
}

func (s *SQLBotStore) ListActions(ctx context.Context, botID uuid.UUID) ([]*store.BotActionData, error) {
	rows, err := s.c.query(ctx,
		`SELECT `+actionColumns+` FROM bot_actions WHERE bot_id = ? ORDER BY created_at, id`, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActions(rows)
}

func (s *SQLBotStore) UpdateAction(ctx context.Context, a *store.BotActionData) error {
	triggers, err := json.Marshal(a.Triggers)
	if err != nil {
		return fmt.Errorf("marshal triggers: %w", err)
	}
	return s.c.execOne(ctx,
		`UPDATE bot_actions SET triggers = ?, match_mode = ?, case_sensitive = ?, payload = ?,
		 cooldown = ?, enabled = ?, admin_only = ?, updated_at = ? WHERE id = ?`,
		string(triggers), a.MatchMode, a.CaseSensitive, nullString(a.Payload),
		a.Cooldown, a.Enabled, a.AdminOnly, a.UpdatedAt, a.ID,
	)
}

func (s *SQLBotStore) DeleteAction(ctx context.Context, id uuid.UUID) error {
	return s.c.execOne(ctx, `DELETE FROM bot_actions WHERE id = ?`, id)
}

func scanBots(rows *sql.Rows) ([]*store.BotData, error) {
	var out []*store.BotData
	for rows.Next() {
		var b store.BotData
		var deletedAt sql.NullTime
		if err := rows.Scan(&b.ID, &b.ThreadID, &b.Owner.Alias, &b.Owner.ID, &b.Name, &b.Avatar, &b.Enabled,
			&b.HideActions, &b.Cooldown, &b.CreatedAt, &b.UpdatedAt, &deletedAt); err != nil {
			return nil, err
		}
		if deletedAt.Valid {
			b.DeletedAt = &deletedAt.Time
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

func scanActions(rows *sql.Rows) ([]*store.BotActionData, error) {
	var out []*store.BotActionData
	for rows.Next() {
		var a store.BotActionData
		var triggers string
		var payload sql.NullString
		if err := rows.Scan(&a.ID, &a.BotID, &a.Owner.Alias, &a.Owner.ID, &a.Handler, &triggers, &a.MatchMode,
			&a.CaseSensitive, &payload, &a.Cooldown, &a.Enabled, &a.AdminOnly, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if triggers != "" {
			if err := json.Unmarshal([]byte(triggers), &a.Triggers); err != nil {
				return nil, fmt.Errorf("decode triggers for action %s: %w", a.ID, err)
			}
		}
		if payload.Valid {
			p := payload.String
			a.Payload = &p
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

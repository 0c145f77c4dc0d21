package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/messenger/internal/store"
)

// SQLMessageStore implements store.MessageStore.
type SQLMessageStore struct {
	c *conn
}

const messageColumns = `id, thread_id, owner_type, owner_id, type, body, reply_to_id, edited, reacted, embeds, extra,
	created_at, updated_at, deleted_at`

func (s *SQLMessageStore) Create(ctx context.Context, m *store.MessageData) error {
	if m.ID == uuid.Nil {
		m.ID = store.GenNewID()
	}
	var replyTo uuid.NullUUID
	if m.ReplyToID != nil {
		replyTo = uuid.NullUUID{UUID: *m.ReplyToID, Valid: true}
	}
	var extra sql.NullString
	if len(m.Extra) > 0 {
		extra = sql.NullString{String: string(m.Extra), Valid: true}
	}
	_, err := s.c.exec(ctx,
		`INSERT INTO messages (`+messageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		m.ID, m.ThreadID, m.Owner.Alias, m.Owner.ID, m.Type, m.Body, replyTo,
		m.Edited, m.Reacted, m.Embeds, extra, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

func (s *SQLMessageStore) Get(ctx context.Context, id uuid.UUID) (*store.MessageData, error) {
	rows, err := s.c.query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return firstMessage(rows)
}

func (s *SQLMessageStore) GetInThread(ctx context.Context, threadID, id uuid.UUID) (*store.MessageData, error) {
	rows, err := s.c.query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ? AND thread_id = ? AND deleted_at IS NULL`, id, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return firstMessage(rows)
}

func (s *SQLMessageStore) SetReacted(ctx context.Context, id uuid.UUID, reacted bool) error {
	return s.c.execOne(ctx, `UPDATE messages SET reacted = ? WHERE id = ?`, reacted, id)
}

func (s *SQLMessageStore) ListRecent(ctx context.Context, threadID uuid.UUID, limit int) ([]*store.MessageData, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.c.query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE thread_id = ? AND deleted_at IS NULL
		 ORDER BY created_at DESC, id DESC LIMIT ?`, threadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func firstMessage(rows *sql.Rows) (*store.MessageData, error) {
	out, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, store.ErrNotFound
	}
	return out[0], nil
}

func scanMessages(rows *sql.Rows) ([]*store.MessageData, error) {
	var out []*store.MessageData
	for rows.Next() {
		var m store.MessageData
		var replyTo uuid.NullUUID
		var extra sql.NullString
		var deletedAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Owner.Alias, &m.Owner.ID, &m.Type, &m.Body, &replyTo,
			&m.Edited, &m.Reacted, &m.Embeds, &extra, &m.CreatedAt, &m.UpdatedAt, &deletedAt); err != nil {
			return nil, err
		}
		if replyTo.Valid {
			m.ReplyToID = &replyTo.UUID
		}
		if extra.Valid && extra.String != "" {
			m.Extra = json.RawMessage(extra.String)
		}
		if deletedAt.Valid {
			m.DeletedAt = &deletedAt.Time
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// SQLReactionStore implements store.ReactionStore.
type SQLReactionStore struct {
	c *conn
}

func (s *SQLReactionStore) Create(ctx context.Context, r *store.ReactionData) error {
	if r.ID == uuid.Nil {
		r.ID = store.GenNewID()
	}
	_, err := s.c.exec(ctx,
		`INSERT INTO message_reactions (id, message_id, owner_type, owner_id, reaction, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.MessageID, r.Owner.Alias, r.Owner.ID, r.Reaction, r.CreatedAt,
	)
	return err
}

func (s *SQLReactionStore) List(ctx context.Context, messageID uuid.UUID) ([]*store.ReactionData, error) {
	rows, err := s.c.query(ctx,
		`SELECT id, message_id, owner_type, owner_id, reaction, created_at
		 FROM message_reactions WHERE message_id = ? ORDER BY created_at, id`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.ReactionData
	for rows.Next() {
		var r store.ReactionData
		if err := rows.Scan(&r.ID, &r.MessageID, &r.Owner.Alias, &r.Owner.ID, &r.Reaction, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/messenger/internal/store"
)

// SQLThreadStore implements store.ThreadStore.
type SQLThreadStore struct {
	c *conn
}

const threadColumns = `id, type, subject, image, chat_bots, knocks, messaging, private_key, created_at, updated_at, deleted_at`

func (s *SQLThreadStore) Create(ctx context.Context, t *store.ThreadData) error {
	if t.ID == uuid.Nil {
		t.ID = store.GenNewID()
	}
	var privateKey sql.NullString
	if t.PrivateKey != "" {
		privateKey = sql.NullString{String: t.PrivateKey, Valid: true}
	}
	_, err := s.c.exec(ctx,
		`INSERT INTO threads (`+threadColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		t.ID, t.Type, t.Subject, t.Image, t.ChatBots, t.Knocks, t.Messaging, privateKey, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (s *SQLThreadStore) Get(ctx context.Context, id uuid.UUID) (*store.ThreadData, error) {
	row := s.c.queryRow(ctx,
		`SELECT `+threadColumns+` FROM threads WHERE id = ? AND deleted_at IS NULL`, id)
	return scanThread(row)
}

func (s *SQLThreadStore) FindPrivate(ctx context.Context, a, b store.Provider) (*store.ThreadData, error) {
	row := s.c.queryRow(ctx,
		`SELECT `+threadColumns+` FROM threads
		 WHERE type = ? AND private_key = ? AND deleted_at IS NULL`,
		store.ThreadPrivate, store.PrivateKey(a, b))
	return scanThread(row)
}

func (s *SQLThreadStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.c.execOne(ctx, `UPDATE threads SET updated_at = ? WHERE id = ?`, at, id)
}

func scanThread(row *sql.Row) (*store.ThreadData, error) {
	var t store.ThreadData
	var privateKey sql.NullString
	var deletedAt sql.NullTime
	err := row.Scan(&t.ID, &t.Type, &t.Subject, &t.Image, &t.ChatBots, &t.Knocks, &t.Messaging,
		&privateKey, &t.CreatedAt, &t.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, notFound(err)
	}
	t.PrivateKey = privateKey.String
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.Time
	}
	return &t, nil
}

// SQLParticipantStore implements store.ParticipantStore.
type SQLParticipantStore struct {
	c *conn
}

const participantColumns = `id, thread_id, owner_type, owner_id, admin, manage_bots, manage_invites, add_participants,
	start_calls, send_knocks, send_messages, pending, muted, last_read, created_at, updated_at, deleted_at`

func (s *SQLParticipantStore) Create(ctx context.Context, p *store.ParticipantData) error {
	if p.ID == uuid.Nil {
		p.ID = store.GenNewID()
	}
	_, err := s.c.exec(ctx,
		`INSERT INTO participants (`+participantColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		p.ID, p.ThreadID, p.Owner.Alias, p.Owner.ID, p.Admin, p.ManageBots, p.ManageInvites, p.AddParticipants,
		p.StartCalls, p.SendKnocks, p.SendMessages, p.Pending, p.Muted, nullTime(p.LastRead), p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *SQLParticipantStore) Get(ctx context.Context, threadID uuid.UUID, owner store.Provider) (*store.ParticipantData, error) {
	rows, err := s.c.query(ctx,
		`SELECT `+participantColumns+` FROM participants
		 WHERE thread_id = ? AND owner_type = ? AND owner_id = ? AND deleted_at IS NULL`,
		threadID, owner.Alias, owner.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := scanParticipants(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, store.ErrNotFound
	}
	return out[0], nil
}

func (s *SQLParticipantStore) List(ctx context.Context, threadID uuid.UUID) ([]*store.ParticipantData, error) {
	rows, err := s.c.query(ctx,
		`SELECT `+participantColumns+` FROM participants
		 WHERE thread_id = ? AND deleted_at IS NULL ORDER BY created_at, id`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanParticipants(rows)
}

func (s *SQLParticipantStore) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.c.execOne(ctx,
		`UPDATE participants SET last_read = ?, updated_at = ? WHERE id = ?`, at, at, id)
}

func scanParticipants(rows *sql.Rows) ([]*store.ParticipantData, error) {
	var out []*store.ParticipantData
	for rows.Next() {
		var p store.ParticipantData
		var lastRead, deletedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.ThreadID, &p.Owner.Alias, &p.Owner.ID, &p.Admin, &p.ManageBots,
			&p.ManageInvites, &p.AddParticipants, &p.StartCalls, &p.SendKnocks, &p.SendMessages,
			&p.Pending, &p.Muted, &lastRead, &p.CreatedAt, &p.UpdatedAt, &deletedAt); err != nil {
			return nil, err
		}
		if lastRead.Valid {
			p.LastRead = &lastRead.Time
		}
		if deletedAt.Valid {
			p.DeletedAt = &deletedAt.Time
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

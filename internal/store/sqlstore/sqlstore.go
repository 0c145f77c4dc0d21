// Package sqlstore implements the store interfaces over database/sql.
// Queries are written with "?" placeholders and rebound per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/messenger/internal/store"
)

// Dialect captures the differences between supported SQL engines.
type Dialect struct {
	Name string
	// Numbered reports whether placeholders are $1, $2 ... instead of ?.
	Numbered bool
	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation func(err error) bool
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	q       queryer
	dialect Dialect
}

func (c *conn) rebind(query string) string {
	if !c.dialect.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := c.q.ExecContext(ctx, c.rebind(query), args...)
	return res, c.wrap(err)
}

func (c *conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.rebind(query), args...)
}

func (c *conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.rebind(query), args...)
}

func (c *conn) wrap(err error) error {
	if err == nil {
		return nil
	}
	if c.dialect.IsUniqueViolation != nil && c.dialect.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

// execOne runs an UPDATE/DELETE that must affect exactly one row.
func (c *conn) execOne(ctx context.Context, query string, args ...any) error {
	res, err := c.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// New creates all stores over db.
func New(db *sql.DB, dialect Dialect) *store.Stores {
	s := newStores(&conn{q: db, dialect: dialect})
	s.Tx = &txRunner{db: db, dialect: dialect}
	return s
}

func newStores(c *conn) *store.Stores {
	return &store.Stores{
		Threads:      &SQLThreadStore{c: c},
		Participants: &SQLParticipantStore{c: c},
		Messages:     &SQLMessageStore{c: c},
		Reactions:    &SQLReactionStore{c: c},
		Bots:         &SQLBotStore{c: c},
	}
}

type txRunner struct {
	db      *sql.DB
	dialect Dialect
}

func (r *txRunner) InTx(ctx context.Context, fn func(tx *store.Stores) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stores := newStores(&conn{q: tx, dialect: r.dialect})
	stores.Tx = nestedTx{stores: stores}

	if err := fn(stores); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type nestedTx struct {
	stores *store.Stores
}

func (n nestedTx) InTx(_ context.Context, fn func(tx *store.Stores) error) error {
	return fn(n.stores)
}

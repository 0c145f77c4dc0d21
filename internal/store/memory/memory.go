// Package memory is an in-process store used in standalone mode and tests.
// Transactions snapshot the whole dataset and restore it on failure.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/messenger/internal/store"
)

type data struct {
	threads      map[uuid.UUID]store.ThreadData
	participants map[uuid.UUID]store.ParticipantData
	messages     map[uuid.UUID]store.MessageData
	reactions    map[uuid.UUID]store.ReactionData
	bots         map[uuid.UUID]store.BotData
	actions      map[uuid.UUID]store.BotActionData
}

func (d *data) clone() *data {
	return &data{
		threads:      maps.Clone(d.threads),
		participants: maps.Clone(d.participants),
		messages:     maps.Clone(d.messages),
		reactions:    maps.Clone(d.reactions),
		bots:         maps.Clone(d.bots),
		actions:      maps.Clone(d.actions),
	}
}

// DB holds all entities behind one lock.
type DB struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	d    *data
}

// New creates an empty in-memory database.
func New() *DB {
	return &DB{d: &data{
		threads:      make(map[uuid.UUID]store.ThreadData),
		participants: make(map[uuid.UUID]store.ParticipantData),
		messages:     make(map[uuid.UUID]store.MessageData),
		reactions:    make(map[uuid.UUID]store.ReactionData),
		bots:         make(map[uuid.UUID]store.BotData),
		actions:      make(map[uuid.UUID]store.BotActionData),
	}}
}

// NewStores creates all stores backed by a fresh in-memory database.
func NewStores() *store.Stores {
	return New().Stores()
}

// Stores returns the store container over db.
func (db *DB) Stores() *store.Stores {
	s := db.stores()
	s.Tx = &txRunner{db: db}
	return s
}

func (db *DB) stores() *store.Stores {
	return &store.Stores{
		Threads:      &threadStore{db: db},
		Participants: &participantStore{db: db},
		Messages:     &messageStore{db: db},
		Reactions:    &reactionStore{db: db},
		Bots:         &botStore{db: db},
	}
}

type txRunner struct {
	db *DB
}

// InTx serializes transactions and restores the snapshot taken before fn
// when fn fails.
func (r *txRunner) InTx(ctx context.Context, fn func(tx *store.Stores) error) error {
	r.db.txMu.Lock()
	defer r.db.txMu.Unlock()

	r.db.mu.RLock()
	snapshot := r.db.d.clone()
	r.db.mu.RUnlock()

	tx := r.db.stores()
	tx.Tx = nestedTx{stores: tx}
	if err := fn(tx); err != nil {
		r.db.mu.Lock()
		r.db.d = snapshot
		r.db.mu.Unlock()
		return err
	}
	return ctx.Err()
}

type nestedTx struct {
	stores *store.Stores
}

func (n nestedTx) InTx(_ context.Context, fn func(tx *store.Stores) error) error {
	return fn(n.stores)
}

func byCreated[T any](items []T, created func(T) time.Time, id func(T) uuid.UUID) {
	slices.SortFunc(items, func(a, b T) int {
		if c := created(a).Compare(created(b)); c != 0 {
			return c
		}
		ia, ib := id(a), id(b)
		return slices.Compare(ia[:], ib[:])
	})
}

// ---------- threads ----------

type threadStore struct{ db *DB }

func (s *threadStore) Create(_ context.Context, t *store.ThreadData) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.d.threads[t.ID]; ok {
		return store.ErrConflict
	}
	if t.PrivateKey != "" {
		for _, existing := range s.db.d.threads {
			if existing.PrivateKey == t.PrivateKey && existing.DeletedAt == nil {
				return store.ErrConflict
			}
		}
	}
	s.db.d.threads[t.ID] = *t
	return nil
}

func (s *threadStore) Get(_ context.Context, id uuid.UUID) (*store.ThreadData, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	t, ok := s.db.d.threads[id]
	if !ok || t.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *threadStore) FindPrivate(_ context.Context, a, b store.Provider) (*store.ThreadData, error) {
	key := store.PrivateKey(a, b)
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, t := range s.db.d.threads {
		if t.IsPrivate() && t.PrivateKey == key && t.DeletedAt == nil {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *threadStore) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.d.threads[id]
	if !ok {
		return store.ErrNotFound
	}
	t.UpdatedAt = at
	s.db.d.threads[id] = t
	return nil
}

// ---------- participants ----------

type participantStore struct{ db *DB }

func (s *participantStore) Create(_ context.Context, p *store.ParticipantData) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.d.participants {
		if existing.ThreadID == p.ThreadID && existing.Owner.Is(p.Owner) && existing.DeletedAt == nil {
			return store.ErrConflict
		}
	}
	s.db.d.participants[p.ID] = *p
	return nil
}

func (s *participantStore) Get(_ context.Context, threadID uuid.UUID, owner store.Provider) (*store.ParticipantData, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, p := range s.db.d.participants {
		if p.ThreadID == threadID && p.Owner.Is(owner) && p.DeletedAt == nil {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *participantStore) List(_ context.Context, threadID uuid.UUID) ([]*store.ParticipantData, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []*store.ParticipantData
	for _, p := range s.db.d.participants {
		if p.ThreadID == threadID && p.DeletedAt == nil {
			out = append(out, &p)
		}
	}
	byCreated(out,
		func(p *store.ParticipantData) time.Time { return p.CreatedAt },
		func(p *store.ParticipantData) uuid.UUID { return p.ID })
	return out, nil
}

func (s *participantStore) MarkRead(_ context.Context, id uuid.UUID, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.d.participants[id]
	if !ok {
		return store.ErrNotFound
	}
	p.LastRead = &at
	p.UpdatedAt = at
	s.db.d.participants[id] = p
	return nil
}

// ---------- messages ----------

type messageStore struct{ db *DB }

func (s *messageStore) Create(_ context.Context, m *store.MessageData) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.d.threads[m.ThreadID]; !ok {
		return store.ErrNotFound
	}
	cp := *m
	cp.TemporaryID = ""
	s.db.d.messages[m.ID] = cp
	return nil
}

func (s *messageStore) Get(_ context.Context, id uuid.UUID) (*store.MessageData, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	m, ok := s.db.d.messages[id]
	if !ok || m.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *messageStore) GetInThread(ctx context.Context, threadID, id uuid.UUID) (*store.MessageData, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.ThreadID != threadID {
		return nil, store.ErrNotFound
	}
	return m, nil
}

func (s *messageStore) SetReacted(_ context.Context, id uuid.UUID, reacted bool) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.d.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Reacted = reacted
	s.db.d.messages[id] = m
	return nil
}

func (s *messageStore) ListRecent(_ context.Context, threadID uuid.UUID, limit int) ([]*store.MessageData, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []*store.MessageData
	for _, m := range s.db.d.messages {
		if m.ThreadID == threadID && m.DeletedAt == nil {
			out = append(out, &m)
		}
	}
	byCreated(out,
		func(m *store.MessageData) time.Time { return m.CreatedAt },
		func(m *store.MessageData) uuid.UUID { return m.ID })
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---------- reactions ----------

type reactionStore struct{ db *DB }

func (s *reactionStore) Create(_ context.Context, r *store.ReactionData) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.d.reactions {
		if existing.MessageID == r.MessageID && existing.Owner.Is(r.Owner) && existing.Reaction == r.Reaction {
			return store.ErrConflict
		}
	}
	s.db.d.reactions[r.ID] = *r
	return nil
}

func (s *reactionStore) List(_ context.Context, messageID uuid.UUID) ([]*store.ReactionData, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []*store.ReactionData
	for _, r := range s.db.d.reactions {
		if r.MessageID == messageID {
			out = append(out, &r)
		}
	}
	byCreated(out,
		func(r *store.ReactionData) time.Time { return r.CreatedAt },
		func(r *store.ReactionData) uuid.UUID { return r.ID })
	return out, nil
}

// ---------- bots ----------

type botStore struct{ db *DB }

func (s *botStore) CreateBot(_ context.Context, b *store.BotData) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.d.threads[b.ThreadID]; !ok {
		return store.ErrNotFound
	}
	s.db.d.bots[b.ID] = *b
	return nil
}

func (s *botStore) GetBot(_ context.Context, id uuid.UUID) (*store.BotData, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	b, ok := s.db.d.bots[id]
	if !ok || b.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (s *botStore) ListBots(_ context.Context, threadID uuid.UUID) ([]*store.BotData, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return s.listBotsLocked(threadID, false), nil
}

func (s *botStore) listBotsLocked(threadID uuid.UUID, enabledOnly bool) []*store.BotData {
	var out []*store.BotData
	for _, b := range s.db.d.bots {
		if b.ThreadID != threadID || b.DeletedAt != nil {
			continue
		}
		if enabledOnly && !b.Enabled {
			continue
		}
		out = append(out, &b)
	}
	byCreated(out,
		func(b *store.BotData) time.Time { return b.CreatedAt },
		func(b *store.BotData) uuid.UUID { return b.ID })
	return out
}

func (s *botStore) listActionsLocked(botID uuid.UUID, enabledOnly bool) []*store.BotActionData {
	var out []*store.BotActionData
	for _, a := range s.db.d.actions {
		if a.BotID != botID {
			continue
		}
		if enabledOnly && !a.Enabled {
			continue
		}
		a.Triggers = slices.Clone(a.Triggers)
		out = append(out, &a)
	}
	byCreated(out,
		func(a *store.BotActionData) time.Time { return a.CreatedAt },
		func(a *store.BotActionData) uuid.UUID { return a.ID })
	return out
}

func (s *botStore) ListEnabledWithActions(_ context.Context, threadID uuid.UUID) ([]store.BotWithActions, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []store.BotWithActions
	for _, b := range s.listBotsLocked(threadID, true) {
		out = append(out, store.BotWithActions{Bot: b, Actions: s.listActionsLocked(b.ID, true)})
	}
	return out, nil
}

func (s *botStore) CreateAction(_ context.Context, a *store.BotActionData) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.d.bots[a.BotID]; !ok {
		return store.ErrNotFound
	}
	cp := *a
	cp.Triggers = slices.Clone(a.Triggers)
	s.db.d.actions[a.ID] = cp
	return nil
}

func (s *botStore) GetAction(_ context.Context, id uuid.UUID) (*store.BotActionData, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	a, ok := s.db.d.actions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	a.Triggers = slices.Clone(a.Triggers)
	return &a, nil
}

func (s *botStore) ListActions(_ context.Context, botID uuid.UUID) ([]*store.BotActionData, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return s.listActionsLocked(botID, false), nil
}

func (s *botStore) UpdateAction(_ context.Context, a *store.BotActionData) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.d.actions[a.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *a
	cp.Triggers = slices.Clone(a.Triggers)
	s.db.d.actions[a.ID] = cp
	return nil
}

func (s *botStore) DeleteAction(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.d.actions[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.db.d.actions, id)
	return nil
}

package bots

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/messenger/internal/bus"
	"github.com/nextlevelbuilder/messenger/internal/config"
	"github.com/nextlevelbuilder/messenger/internal/cooldown"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/internal/store/memory"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingHandler records invocations and behaves per its fields.
type recordingHandler struct {
	BaseHandler
	calls   *[]Invocation
	err     error
	panics  bool
	release bool
}

func (h *recordingHandler) Handle(context.Context) error {
	*h.calls = append(*h.calls, Invocation{
		Action:  h.Action(),
		Bot:     h.Bot(),
		Thread:  h.Thread(),
		Message: h.Message(),
		Trigger: h.MatchingTrigger(),
	})
	if h.panics {
		panic("boom")
	}
	if h.release {
		h.ReleaseCooldown()
	}
	return h.err
}

type env struct {
	ctx      context.Context
	cfg      *config.Config
	stores   *store.Stores
	registry *Registry
	cooldown *cooldown.Store
	gate     *Gate
	bus      *bus.MessageBus
	d        *Dispatcher
	clock    *clock
	thread   *store.ThreadData
	user     store.Provider
	calls    []Invocation
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		ctx:      context.Background(),
		cfg:      config.Default(),
		stores:   memory.NewStores(),
		registry: NewRegistry(),
		bus:      bus.New(),
		clock:    &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		user:     store.Provider{Alias: "user", ID: "alice"},
	}
	e.cooldown = cooldown.NewWithClock(e.clock.Now)
	e.gate = NewGate(e.cooldown)
	e.d = NewDispatcher(DispatcherOptions{Config: e.cfg, Stores: e.stores, Registry: e.registry, Gate: e.gate, Bus: e.bus})

	now := e.clock.Now()
	e.thread = &store.ThreadData{ID: store.GenNewID(), Type: store.ThreadGroup, Subject: "ops", ChatBots: true, Messaging: true, CreatedAt: now, UpdatedAt: now}
	if err := e.stores.Threads.Create(e.ctx, e.thread); err != nil {
		t.Fatal(err)
	}
	return e
}

func (e *env) register(t *testing.T, key string, s Settings, configure func(*recordingHandler)) {
	t.Helper()
	err := e.registry.Register(key, s, func() Handler {
		h := &recordingHandler{calls: &e.calls}
		if configure != nil {
			configure(h)
		}
		return h
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (e *env) bot(t *testing.T, name string, cooldownSecs int) *store.BotData {
	t.Helper()
	now := e.clock.Now()
	b := &store.BotData{ID: store.GenNewID(), ThreadID: e.thread.ID, Owner: e.user, Name: name, Enabled: true, Cooldown: cooldownSecs, CreatedAt: now, UpdatedAt: now}
	if err := e.stores.Bots.CreateBot(e.ctx, b); err != nil {
		t.Fatal(err)
	}
	e.clock.Advance(time.Millisecond)
	return b
}

func (e *env) action(t *testing.T, bot *store.BotData, handler string, triggers []string, mode string, cooldownSecs int) *store.BotActionData {
	t.Helper()
	now := e.clock.Now()
	a := &store.BotActionData{ID: store.GenNewID(), BotID: bot.ID, Owner: e.user, Handler: handler, Triggers: triggers, MatchMode: mode, Cooldown: cooldownSecs, Enabled: true, CreatedAt: now, UpdatedAt: now}
	if err := e.stores.Bots.CreateAction(e.ctx, a); err != nil {
		t.Fatal(err)
	}
	e.clock.Advance(time.Millisecond)
	return a
}

func (e *env) message(t *testing.T, body string) *store.MessageData {
	t.Helper()
	now := e.clock.Now()
	m := &store.MessageData{ID: store.GenNewID(), ThreadID: e.thread.ID, Owner: e.user, Type: store.MessageText, Body: body, CreatedAt: now, UpdatedAt: now}
	if err := e.stores.Messages.Create(e.ctx, m); err != nil {
		t.Fatal(err)
	}
	return m
}

func (e *env) dispatch(t *testing.T, body string) []Outcome {
	t.Helper()
	return e.d.Dispatch(e.ctx, e.thread, e.message(t, body), "127.0.0.1")
}

func TestCooldownKey(t *testing.T) {
	bot := &store.BotData{ID: store.GenNewID(), Cooldown: 30}
	action := &store.BotActionData{ID: store.GenNewID()}

	key, d := CooldownKey(bot, action)
	if key != "bot:"+bot.ID.String() || d != 30*time.Second {
		t.Errorf("bot cooldown = %s %v, want bot key 30s", key, d)
	}
	action.Cooldown = 5
	key, d = CooldownKey(bot, action)
	if key != "action:"+action.ID.String() || d != 5*time.Second {
		t.Errorf("action cooldown = %s %v, want action key 5s", key, d)
	}
}

func TestRunRequiresBinding(t *testing.T) {
	var calls []Invocation
	h := &recordingHandler{calls: &calls}
	err := Run(context.Background(), h, Invocation{Action: &store.BotActionData{}})
	if !errors.Is(err, ErrNotBound) {
		t.Fatalf("err = %v, want ErrNotBound", err)
	}
	if len(calls) != 0 {
		t.Errorf("Handle called %d times, want 0", len(calls))
	}
}

func TestRunRecoversPanic(t *testing.T) {
	var calls []Invocation
	h := &recordingHandler{calls: &calls, panics: true}
	inv := Invocation{
		Action:  &store.BotActionData{Handler: "p"},
		Bot:     &store.BotData{},
		Thread:  &store.ThreadData{},
		Message: &store.MessageData{},
	}
	if err := Run(context.Background(), h, inv); err == nil {
		t.Fatal("err = nil, want panic error")
	}
}

func TestBaseHandlerPayload(t *testing.T) {
	raw := `{"reaction":":fire:","n":2}`
	h := &recordingHandler{}
	h.Bind(Invocation{Action: &store.BotActionData{Payload: &raw}})

	if got := h.Payload("reaction"); got != ":fire:" {
		t.Errorf("Payload(reaction) = %v, want :fire:", got)
	}
	if got := h.Payload("missing"); got != nil {
		t.Errorf("Payload(missing) = %v, want nil", got)
	}
	var v struct{ N int }
	if err := h.DecodePayload(&v); err != nil || v.N != 2 {
		t.Errorf("DecodePayload = %v %v, want N=2", v, err)
	}

	h.Bind(Invocation{Action: &store.BotActionData{}})
	if got := h.Payload(""); got != nil {
		t.Errorf("Payload() on nil payload = %v, want nil", got)
	}
}

type upperSerializer struct{ recordingHandler }

func (upperSerializer) SerializePayload(map[string]any) (*string, error) {
	s := "custom"
	return &s, nil
}

func TestSerializePayload(t *testing.T) {
	h := &recordingHandler{}
	got, err := SerializePayload(h, nil)
	if err != nil || got != nil {
		t.Errorf("SerializePayload(nil) = %v %v, want nil", got, err)
	}

	got, err = SerializePayload(h, map[string]any{"a": "b"})
	if err != nil || got == nil || *got != `{"a":"b"}` {
		t.Fatalf("SerializePayload = %v %v, want JSON", got, err)
	}
	action := &store.BotActionData{Payload: got}
	decoded, err := action.DecodedPayload()
	if err != nil || decoded["a"] != "b" {
		t.Errorf("round trip = %v %v, want a=b", decoded, err)
	}

	got, _ = SerializePayload(&upperSerializer{}, map[string]any{"a": "b"})
	if got == nil || *got != "custom" {
		t.Errorf("custom serializer = %v, want custom", got)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	f := func() Handler { return &recordingHandler{} }
	if err := r.Register("ping", Settings{Name: "Ping"}, f); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("ping", Settings{Name: "Ping"}, f); err == nil {
		t.Error("duplicate Register err = nil, want error")
	}
	s, ok := r.Settings("ping")
	if !ok || s.Alias != "ping" {
		t.Errorf("Settings = %+v %v, want alias ping", s, ok)
	}
	if _, _, err := r.New("nope"); !errors.Is(err, ErrUnknownHandler) {
		t.Errorf("New(nope) err = %v, want ErrUnknownHandler", err)
	}
}

func TestDispatchPingWithCooldown(t *testing.T) {
	e := newEnv(t)
	e.register(t, "ping", Settings{Name: "Ping"}, nil)
	bot := e.bot(t, "Pinger", 0)
	e.action(t, bot, "ping", []string{"!ping"}, store.MatchExact, 30)

	out := e.dispatch(t, "!ping")
	if len(out) != 1 || out[0].Status != "fired" {
		t.Fatalf("first dispatch = %+v, want fired", out)
	}
	if len(e.calls) != 1 || e.calls[0].Trigger != "!ping" {
		t.Fatalf("calls = %+v, want one with trigger !ping", e.calls)
	}

	e.clock.Advance(29 * time.Second)
	out = e.dispatch(t, "!ping")
	if len(out) != 1 || out[0].Status != "suppressed" {
		t.Fatalf("dispatch in cooldown = %+v, want suppressed", out)
	}
	if len(e.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(e.calls))
	}

	e.clock.Advance(2 * time.Second)
	out = e.dispatch(t, "!ping")
	if len(out) != 1 || out[0].Status != "fired" {
		t.Fatalf("dispatch after cooldown = %+v, want fired", out)
	}

	if out := e.dispatch(t, "!pong"); len(out) != 0 {
		t.Errorf("non-matching dispatch = %+v, want none", out)
	}
}

func TestDispatchReleaseCooldown(t *testing.T) {
	e := newEnv(t)
	e.register(t, "roll", Settings{Name: "Roll"}, func(h *recordingHandler) { h.release = true })
	bot := e.bot(t, "Dice", 60)
	e.action(t, bot, "roll", []string{"!roll"}, store.MatchStartsWith, 0)

	for i := 0; i < 3; i++ {
		out := e.dispatch(t, "!roll bad")
		if len(out) != 1 || out[0].Status != "released" {
			t.Fatalf("dispatch %d = %+v, want released", i, out)
		}
	}
	if e.cooldown.Active("bot:" + bot.ID.String()) {
		t.Error("bot cooldown active after release")
	}
}

func TestDispatchFailureReleasesAndContinues(t *testing.T) {
	e := newEnv(t)
	var failed []bus.Event
	e.bus.Subscribe("test", func(ev bus.Event) {
		if ev.Name == protocol.BusBotActionFailed {
			failed = append(failed, ev)
		}
	})
	e.register(t, "broken", Settings{Name: "Broken"}, func(h *recordingHandler) { h.err = errors.New("nope") })
	e.register(t, "panics", Settings{Name: "Panics"}, func(h *recordingHandler) { h.panics = true })
	e.register(t, "ok", Settings{Name: "OK"}, nil)

	b1 := e.bot(t, "One", 30)
	e.action(t, b1, "broken", []string{"go"}, store.MatchExact, 0)
	b2 := e.bot(t, "Two", 30)
	e.action(t, b2, "panics", []string{"go"}, store.MatchExact, 0)
	b3 := e.bot(t, "Three", 30)
	e.action(t, b3, "ok", []string{"go"}, store.MatchExact, 0)

	out := e.dispatch(t, "go")
	if len(out) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(out))
	}
	want := []string{"failed", "failed", "fired"}
	for i, o := range out {
		if o.Status != want[i] {
			t.Errorf("outcome[%d] = %s, want %s", i, o.Status, want[i])
		}
	}
	if len(failed) != 2 {
		t.Errorf("failed events = %d, want 2", len(failed))
	}
	if e.cooldown.Active("bot:" + b1.ID.String()) {
		t.Error("failed bot still cooling down")
	}
	if !e.cooldown.Active("bot:" + b3.ID.String()) {
		t.Error("successful bot not cooling down")
	}
}

func TestDispatchOneActionPerBot(t *testing.T) {
	e := newEnv(t)
	e.register(t, "a", Settings{Name: "A"}, nil)
	e.register(t, "b", Settings{Name: "B"}, nil)
	e.register(t, "any", Settings{Name: "Any", Triggerless: true}, nil)
	bot := e.bot(t, "Multi", 0)
	e.action(t, bot, "any", nil, store.MatchExact, 0)
	first := e.action(t, bot, "a", []string{"hi"}, store.MatchContains, 0)
	e.action(t, bot, "b", []string{"hi"}, store.MatchExact, 0)

	out := e.dispatch(t, "hi")
	if len(out) != 1 || out[0].ActionID != first.ID.String() {
		t.Fatalf("outcomes = %+v, want action %s", out, first.ID)
	}

	out = e.dispatch(t, "something else")
	if len(out) != 1 || out[0].Handler != "any" {
		t.Fatalf("fallback outcomes = %+v, want triggerless", out)
	}
}

func TestDispatchSkips(t *testing.T) {
	tests := []struct {
		name  string
		setup func(e *env, m *store.MessageData)
	}{
		{"bots disabled", func(e *env, _ *store.MessageData) {
			f := e.cfg.CurrentFeatures()
			f.Bots = false
			e.cfg.SetFeatures(f)
		}},
		{"thread bots off", func(e *env, _ *store.MessageData) { e.thread.ChatBots = false }},
		{"system message", func(_ *env, m *store.MessageData) { m.Type = store.MessageGroupRenamed }},
		{"bot owned", func(_ *env, m *store.MessageData) {
			m.Owner = store.Provider{Alias: store.ProviderBot, ID: store.GenNewID().String()}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.register(t, "ping", Settings{Name: "Ping"}, nil)
			bot := e.bot(t, "Pinger", 0)
			e.action(t, bot, "ping", []string{"!ping"}, store.MatchExact, 0)

			m := e.message(t, "!ping")
			tt.setup(e, m)
			if out := e.d.Dispatch(e.ctx, e.thread, m, ""); len(out) != 0 {
				t.Errorf("outcomes = %+v, want none", out)
			}
			if len(e.calls) != 0 {
				t.Errorf("calls = %d, want 0", len(e.calls))
			}
		})
	}
}

type captureQueue struct{ jobs []Job }

func (q *captureQueue) Enqueue(_ context.Context, job Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func TestDispatchQueued(t *testing.T) {
	e := newEnv(t)
	e.register(t, "slow", Settings{Name: "Slow", Queued: true}, nil)
	bot := e.bot(t, "Worker", 10)
	e.action(t, bot, "slow", []string{"work"}, store.MatchExact, 0)

	// Without a queue, queued handlers run inline.
	if out := e.dispatch(t, "work"); len(out) != 1 || out[0].Status != "fired" {
		t.Fatalf("inline outcome = %+v, want fired", out)
	}
	e.cooldown.Release("bot:" + bot.ID.String())

	q := &captureQueue{}
	e.d.SetQueue(q)
	out := e.dispatch(t, "work")
	if len(out) != 1 || out[0].Status != "queued" {
		t.Fatalf("queued outcome = %+v, want queued", out)
	}
	if len(q.jobs) != 1 || len(e.calls) != 1 {
		t.Fatalf("jobs = %d calls = %d, want 1 and 1", len(q.jobs), len(e.calls))
	}
	if !e.cooldown.Active("bot:" + bot.ID.String()) {
		t.Error("cooldown not reserved while queued")
	}

	if err := e.d.RunJob(e.ctx, q.jobs[0]); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if len(e.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(e.calls))
	}

	missing := q.jobs[0]
	missing.MessageID = store.GenNewID()
	if err := e.d.RunJob(e.ctx, missing); err == nil {
		t.Error("RunJob with missing message err = nil, want error")
	}
	if e.cooldown.Active("bot:" + bot.ID.String()) {
		t.Error("cooldown kept after failed job load")
	}
}

func TestDispatcherSubscribe(t *testing.T) {
	e := newEnv(t)
	e.register(t, "ping", Settings{Name: "Ping"}, nil)
	bot := e.bot(t, "Pinger", 0)
	e.action(t, bot, "ping", []string{"!ping"}, store.MatchExact, 0)
	e.d.Subscribe(e.bus)

	m := e.message(t, "!ping")
	e.bus.Broadcast(bus.Event{Name: protocol.BusMessageStored, Payload: bus.MessageStoredPayload{Thread: e.thread, Message: m}})
	if len(e.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(e.calls))
	}
}

package messenger

import (
	"context"
	"errors"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/messenger/internal/broadcast"
	"github.com/nextlevelbuilder/messenger/internal/bus"
	"github.com/nextlevelbuilder/messenger/internal/config"
	"github.com/nextlevelbuilder/messenger/internal/storage"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/internal/store/memory"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

var (
	alice = store.Provider{Alias: "user", ID: "alice", Name: "Alice"}
	bob   = store.Provider{Alias: "user", ID: "bob", Name: "Bob"}
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

type eventLog struct {
	mu     sync.Mutex
	events []bus.Event
}

func (l *eventLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.Name
	}
	return out
}

type fixture struct {
	m      *Messenger
	stores *store.Stores
	rec    *broadcast.Recorder
	events *eventLog
	clock  *clock
	cfg    *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	stores := memory.NewStores()
	rec := &broadcast.Recorder{}
	mb := bus.New()
	events := &eventLog{}
	mb.Subscribe("test", func(e bus.Event) {
		events.mu.Lock()
		events.events = append(events.events, e)
		events.mu.Unlock()
	})
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m := New(Options{
		Config:      cfg,
		Stores:      stores,
		Broadcaster: broadcast.New(rec, stores.Participants),
		Bus:         mb,
		Uploader:    storage.NewDisk(t.TempDir()),
		Now:         clk.Now,
	})
	return &fixture{m: m, stores: stores, rec: rec, events: events, clock: clk, cfg: cfg}
}

func TestComposeMessageCreatesPrivateThread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.m.Compose().To(bob).From(alice).Message(ctx, "  hello  ")
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	msg := res.Entity
	if msg.Body != "hello" {
		t.Errorf("Body = %q, want %q", msg.Body, "hello")
	}
	if !msg.Embeds {
		t.Error("Embeds = false, want true")
	}

	thread, err := f.stores.Threads.FindPrivate(ctx, alice, bob)
	if err != nil {
		t.Fatalf("FindPrivate: %v", err)
	}
	if thread.ID != msg.ThreadID {
		t.Errorf("thread = %v, want %v", msg.ThreadID, thread.ID)
	}
	parts, _ := f.stores.Participants.List(ctx, thread.ID)
	if len(parts) != 2 {
		t.Fatalf("participants = %d, want 2", len(parts))
	}
	if !parts[0].Owner.Is(alice) {
		t.Errorf("first participant = %v, want %v", parts[0].Owner, alice)
	}
	if parts[0].LastRead == nil {
		t.Error("sender LastRead not set")
	}

	want := []string{protocol.BusPrivateThreadCreated, protocol.BusMessageStored}
	if got := f.events.names(); !slices.Equal(got, want) {
		t.Errorf("bus events = %v, want %v", got, want)
	}
	wantWS := []string{protocol.EventNewMessage}
	if got := f.rec.Events(); !slices.Equal(got, wantWS) {
		t.Errorf("broadcasts = %v, want %v", got, wantWS)
	}

	// Second message reuses the thread.
	if _, err := f.m.Compose().To(alice).From(bob).Message(ctx, "hi"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	again, _ := f.stores.Threads.FindPrivate(ctx, bob, alice)
	if again.ID != thread.ID {
		t.Errorf("second thread = %v, want %v", again.ID, thread.ID)
	}
}

func TestSilentPrivateMessageBroadcastsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.m.Compose().Silent().To(bob).From(alice).Message(ctx, "hello")
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if got := f.rec.Events(); len(got) != 0 {
		t.Errorf("broadcasts = %v, want none", got)
	}
	thread, err := f.stores.Threads.FindPrivate(ctx, alice, bob)
	if err != nil {
		t.Fatalf("FindPrivate: %v", err)
	}
	if thread.ID != res.Entity.ThreadID {
		t.Errorf("thread = %v, want %v", res.Entity.ThreadID, thread.ID)
	}
	want := []string{protocol.BusPrivateThreadCreated, protocol.BusMessageStored}
	if got := f.events.names(); !slices.Equal(got, want) {
		t.Errorf("bus events = %v, want %v", got, want)
	}
}

func TestComposerErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name string
		c    func() *Composer
		want string
	}{
		{"no to", func() *Composer { return f.m.Compose().From(alice) }, msgNoTo},
		{"no from", func() *Composer { return f.m.Compose().To(bob) }, msgNoFrom},
		{"invalid to", func() *Composer { return f.m.Compose().To(42).From(alice) }, msgInvalidTo},
		{"unknown alias", func() *Composer {
			return f.m.Compose().To(store.Provider{Alias: "robot", ID: "x"}).From(alice)
		}, msgInvalidTo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.c().Message(ctx, "hello")
			var ce *ComposerError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want ComposerError", err)
			}
			if ce.Msg != tt.want {
				t.Errorf("Msg = %q, want %q", ce.Msg, tt.want)
			}
		})
	}
}

func TestComposerFlushesState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	c := f.m.Compose()
	if _, err := c.To(bob).From(alice).Silent().Message(ctx, "one"); err != nil {
		t.Fatal(err)
	}
	_, err := c.Message(ctx, "two")
	var ce *ComposerError
	if !errors.As(err, &ce) || ce.Msg != msgNoTo {
		t.Fatalf("reused composer err = %v, want %q", err, msgNoTo)
	}
	if c.silent {
		t.Error("silent survived terminal call")
	}
}

func TestSilentSuppressesBroadcastButNotEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	thread := f.thread(t)

	if _, err := f.m.Compose().To(thread).From(alice).Silent().Message(ctx, "quiet"); err != nil {
		t.Fatal(err)
	}
	if got := f.rec.Events(); len(got) != 0 {
		t.Errorf("broadcasts = %v, want none", got)
	}
	if got := f.events.names(); !slices.Contains(got, protocol.BusMessageStored) {
		t.Errorf("bus events = %v, want %s", got, protocol.BusMessageStored)
	}
}

func TestPresenceKeepsSilent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	thread := f.thread(t)

	c := f.m.Compose().Silent()
	if err := c.To(thread).From(alice).EmitTyping(ctx); err != nil {
		t.Fatal(err)
	}
	if !c.silent {
		t.Error("silent cleared by presence emitter")
	}
	if c.to != nil || !c.from.IsZero() {
		t.Error("target or actor survived presence emitter")
	}
	sent := f.rec.All()
	if len(sent) != 1 || sent[0].Event != protocol.EventClientTyping {
		t.Fatalf("broadcasts = %v, want one %s", f.rec.Events(), protocol.EventClientTyping)
	}
	if sent[0].Channels[0] != broadcast.PresenceChannel(thread.ID) {
		t.Errorf("channel = %s, want presence", sent[0].Channels[0])
	}
}

type failingParticipants struct{ store.ParticipantStore }

func (failingParticipants) Create(context.Context, *store.ParticipantData) error {
	return errors.New("disk full")
}

type failingTx struct{ inner store.TxRunner }

func (f failingTx) InTx(ctx context.Context, fn func(tx *store.Stores) error) error {
	return f.inner.InTx(ctx, func(tx *store.Stores) error {
		cp := *tx
		cp.Participants = failingParticipants{tx.Participants}
		return fn(&cp)
	})
}

func TestPrivateThreadRollback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stores.Tx = failingTx{inner: f.stores.Tx}

	_, err := f.m.Compose().To(bob).From(alice).Message(ctx, "hello")
	var ce *ComposerError
	if !errors.As(err, &ce) || ce.Msg != msgPrivateFailed {
		t.Fatalf("err = %v, want private thread ComposerError", err)
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("err = %q, want cause included", err)
	}
	if _, err := f.stores.Threads.FindPrivate(ctx, alice, bob); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindPrivate err = %v, want ErrNotFound", err)
	}
	if len(f.events.names()) != 0 {
		t.Errorf("bus events = %v, want none", f.events.names())
	}
}

func TestPrivateThreadWithSelf(t *testing.T) {
	f := newFixture(t)
	_, err := f.m.Compose().To(alice).From(alice).Message(context.Background(), "me")
	if !IsComposerError(err) {
		t.Fatalf("err = %v, want ComposerError", err)
	}
}

func TestMessageValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cfg.Limits.MessageSize = 5
	thread := f.thread(t)

	for _, body := range []string{"   ", "too long body"} {
		_, err := f.m.Compose().To(thread).From(alice).Message(ctx, body)
		var ve *ValidationError
		if !errors.As(err, &ve) || len(ve.Fields["message"]) == 0 {
			t.Errorf("Message(%q) err = %v, want message validation error", body, err)
		}
	}
}

func TestReplyToDropsForeignMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	thread := f.thread(t)

	first, err := f.m.Compose().To(thread).From(alice).Message(ctx, "first")
	if err != nil {
		t.Fatal(err)
	}
	reply, err := f.m.Compose().To(thread).From(bob).Message(ctx, "reply", ReplyTo(first.Entity.ID))
	if err != nil {
		t.Fatal(err)
	}
	if reply.Entity.ReplyToID == nil || *reply.Entity.ReplyToID != first.Entity.ID {
		t.Errorf("ReplyToID = %v, want %v", reply.Entity.ReplyToID, first.Entity.ID)
	}

	other, err := f.m.Compose().To(store.Provider{Alias: "user", ID: "carol"}).From(alice).Message(ctx, "elsewhere")
	if err != nil {
		t.Fatal(err)
	}
	stray, err := f.m.Compose().To(thread).From(bob).Message(ctx, "stray", ReplyTo(other.Entity.ID))
	if err != nil {
		t.Fatal(err)
	}
	if stray.Entity.ReplyToID != nil {
		t.Errorf("ReplyToID = %v, want nil", stray.Entity.ReplyToID)
	}
}

func TestReactions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cfg.Limits.MaxReactionsPerMessage = 2
	thread := f.thread(t)

	res, err := f.m.Compose().To(thread).From(alice).Message(ctx, "react to me")
	if err != nil {
		t.Fatal(err)
	}
	msg := res.Entity
	f.rec.Reset()

	if _, err := f.m.Compose().To(thread).From(bob).Reaction(ctx, msg, ":thumbsup:"); err != nil {
		t.Fatalf("Reaction: %v", err)
	}
	if !msg.Reacted {
		t.Error("Reacted = false, want true")
	}
	stored, _ := f.stores.Messages.Get(ctx, msg.ID)
	if !stored.Reacted {
		t.Error("stored Reacted = false, want true")
	}
	if got := f.rec.Events(); !slices.Equal(got, []string{protocol.EventReactionAdded, protocol.EventReactionAdded}) {
		t.Errorf("broadcasts = %v, want presence and owner", got)
	}

	tests := []struct {
		name     string
		actor    store.Provider
		reaction string
		wantErr  any
	}{
		{"duplicate", bob, ":thumbsup:", &ReactionError{}},
		{"whitespace", bob, ":a b:", &ValidationError{}},
		{"same reaction other owner", alice, ":thumbsup:", nil},
		{"second distinct", alice, ":fire:", nil},
		{"too many", bob, ":tada:", &ReactionError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.m.Compose().To(thread).From(tt.actor).Reaction(ctx, msg, tt.reaction)
			switch tt.wantErr.(type) {
			case nil:
				if err != nil {
					t.Errorf("err = %v, want nil", err)
				}
			case *ReactionError:
				var re *ReactionError
				if !errors.As(err, &re) {
					t.Errorf("err = %v, want ReactionError", err)
				}
			case *ValidationError:
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("err = %v, want ValidationError", err)
				}
			}
		})
	}
}

func TestReactionRejectsOtherThread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	thread := f.thread(t)
	msg := &store.MessageData{ID: store.GenNewID(), ThreadID: store.GenNewID(), Owner: alice}

	_, err := f.m.Compose().To(thread).From(bob).Reaction(ctx, msg, ":x:")
	var re *ReactionError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want ReactionError", err)
	}
}

func TestAttachmentFeatureToggle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	thread := f.thread(t)

	features := f.cfg.CurrentFeatures()
	features.MessageAudioUpload = false
	f.cfg.SetFeatures(features)

	file := storage.File{Name: "clip.mp3", Size: 3, Reader: strings.NewReader("abc")}
	_, err := f.m.Compose().To(thread).From(alice).Audio(ctx, file)
	var fe *FeatureDisabledError
	if !errors.As(err, &fe) || fe.Msg != "Audio messages are currently disabled." {
		t.Fatalf("err = %v, want audio disabled", err)
	}
}

func TestDisabledFeatureCreatesNoPrivateThread(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		disable func(*config.FeaturesConfig)
		call    func(*fixture) error
	}{
		{"audio", func(fc *config.FeaturesConfig) { fc.MessageAudioUpload = false }, func(f *fixture) error {
			file := storage.File{Name: "clip.mp3", Size: 3, Reader: strings.NewReader("abc")}
			_, err := f.m.Compose().To(bob).From(alice).Audio(ctx, file)
			return err
		}},
		{"reaction", func(fc *config.FeaturesConfig) { fc.MessageReactions = false }, func(f *fixture) error {
			_, err := f.m.Compose().To(bob).From(alice).Reaction(ctx, &store.MessageData{}, ":+1:")
			return err
		}},
		{"knock", func(fc *config.FeaturesConfig) { fc.Knocks = false }, func(f *fixture) error {
			_, err := f.m.Compose().To(bob).From(alice).Knock(ctx)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			features := f.cfg.CurrentFeatures()
			tt.disable(&features)
			f.cfg.SetFeatures(features)

			err := tt.call(f)
			var fe *FeatureDisabledError
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want FeatureDisabledError", err)
			}
			if _, err := f.stores.Threads.FindPrivate(ctx, alice, bob); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("FindPrivate err = %v, want %v", err, store.ErrNotFound)
			}
			if got := f.rec.Events(); len(got) != 0 {
				t.Errorf("broadcasts = %v, want none", got)
			}
			if got := f.events.names(); len(got) != 0 {
				t.Errorf("bus events = %v, want none", got)
			}
		})
	}
}

func TestImageUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := t.TempDir()
	disk := storage.NewDisk(root)
	f.m.uploader = disk
	thread := f.thread(t)

	_, err := f.m.Compose().To(thread).From(alice).Image(ctx, storage.File{Name: "a.exe", Size: 1, Reader: strings.NewReader("x")})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("bad extension err = %v, want ValidationError", err)
	}

	res, err := f.m.Compose().To(thread).From(alice).Image(ctx, storage.File{Name: "cat.PNG", Size: 4, Reader: strings.NewReader("meow")})
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	msg := res.Entity
	if msg.Type != store.MessageImage || !strings.HasSuffix(msg.Body, ".png") {
		t.Errorf("message = type %d body %q, want image .png", msg.Type, msg.Body)
	}
	if msg.Embeds {
		t.Error("Embeds = true for image")
	}
	rc, err := disk.Open(ctx, msg.StorageDir(f.cfg.Storage.ThreadsDirectory), msg.Body)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "meow" {
		t.Errorf("stored = %q, want %q", data, "meow")
	}
}

type failingMessages struct{ store.MessageStore }

func (failingMessages) Create(context.Context, *store.MessageData) error {
	return errors.New("insert failed")
}

type failingMessageTx struct{ inner store.TxRunner }

func (f failingMessageTx) InTx(ctx context.Context, fn func(tx *store.Stores) error) error {
	return f.inner.InTx(ctx, func(tx *store.Stores) error {
		cp := *tx
		cp.Messages = failingMessages{tx.Messages}
		return fn(&cp)
	})
}

func TestAttachmentCleanupOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := t.TempDir()
	f.m.uploader = storage.NewDisk(root)
	thread := f.thread(t)
	f.stores.Tx = failingMessageTx{inner: f.stores.Tx}

	_, err := f.m.Compose().To(thread).From(alice).Document(ctx, storage.File{Name: "notes.txt", Size: 2, Reader: strings.NewReader("hi")})
	if err == nil {
		t.Fatal("Document err = nil, want failure")
	}
	entries, _ := os.ReadDir(root + "/threads/" + thread.ID.String() + "/documents")
	if len(entries) != 0 {
		t.Errorf("files left = %d, want 0", len(entries))
	}
}

func TestKnockLockout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	thread := f.thread(t)

	res, err := f.m.Compose().To(thread).From(alice).Knock(ctx)
	if err != nil {
		t.Fatalf("Knock: %v", err)
	}
	if resp, ok := res.Response(); !ok || resp.Message != "knocked" {
		t.Errorf("response = %v, want knocked", resp)
	}
	sent := f.rec.All()
	if len(sent) != 1 || sent[0].Channels[0] != broadcast.PrivateChannel(bob) {
		t.Fatalf("knock broadcasts = %v, want bob only", sent)
	}

	_, err = f.m.Compose().To(thread).From(alice).Knock(ctx)
	var ke *KnockError
	if !errors.As(err, &ke) {
		t.Fatalf("second knock err = %v, want KnockError", err)
	}

	f.clock.Advance(time.Duration(f.cfg.Features.KnockTimeoutMinutes)*time.Minute + time.Second)
	if _, err := f.m.Compose().To(thread).From(alice).Knock(ctx); err != nil {
		t.Errorf("knock after timeout: %v", err)
	}
}

func TestKnockDisabledForGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := f.clock.Now()
	group := &store.ThreadData{ID: store.GenNewID(), Type: store.ThreadGroup, Subject: "team", Messaging: true, CreatedAt: now, UpdatedAt: now}
	if err := f.stores.Threads.Create(ctx, group); err != nil {
		t.Fatal(err)
	}
	if err := f.stores.Participants.Create(ctx, store.NewParticipant(group.ID, alice, now)); err != nil {
		t.Fatal(err)
	}

	_, err := f.m.Compose().To(group).From(alice).Knock(ctx)
	var ke *KnockError
	if !errors.As(err, &ke) {
		t.Fatalf("err = %v, want KnockError", err)
	}
}

func TestReadOnlyWhenBehind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	thread := f.thread(t)

	if _, err := f.m.Compose().To(thread).From(alice).Message(ctx, "ping"); err != nil {
		t.Fatal(err)
	}
	f.rec.Reset()
	f.clock.Advance(time.Second)

	res, err := f.m.Compose().To(thread).From(bob).Read(ctx, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if res.Entity.LastRead == nil || !res.Entity.LastRead.Equal(f.clock.Now()) {
		t.Errorf("LastRead = %v, want %v", res.Entity.LastRead, f.clock.Now())
	}
	if got := f.rec.Events(); !slices.Equal(got, []string{protocol.EventParticipantRead}) {
		t.Errorf("broadcasts = %v, want participant.read", got)
	}

	f.rec.Reset()
	if _, err := f.m.Compose().To(thread).From(bob).Read(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if got := f.rec.Events(); len(got) != 0 {
		t.Errorf("up-to-date read broadcasts = %v, want none", got)
	}
}

// thread creates a private thread between alice and bob.
func (f *fixture) thread(t *testing.T) *store.ThreadData {
	t.Helper()
	thread, err := f.m.privateThread(context.Background(), alice, bob)
	if err != nil {
		t.Fatalf("privateThread: %v", err)
	}
	f.rec.Reset()
	f.events.mu.Lock()
	f.events.events = nil
	f.events.mu.Unlock()
	return thread
}

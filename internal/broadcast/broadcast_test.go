package broadcast

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/internal/store/memory"
)

func TestBroadcastTargets(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewStores()
	now := time.Now()

	alice := store.Provider{Alias: "user", ID: "alice"}
	bob := store.Provider{Alias: "user", ID: "bob"}
	thread := store.NewPrivateThread(alice, bob, now)
	if err := stores.Threads.Create(ctx, thread); err != nil {
		t.Fatal(err)
	}
	for _, p := range []store.Provider{alice, bob} {
		if err := stores.Participants.Create(ctx, store.NewParticipant(thread.ID, p, now)); err != nil {
			t.Fatal(err)
		}
		now = now.Add(time.Millisecond)
	}

	rec := &Recorder{}
	b := New(rec, stores.Participants)

	tests := []struct {
		name string
		bc   *Broadcast
		want []string
	}{
		{"presence", b.ToPresence(thread), []string{"presence-messenger.thread." + thread.ID.String()}},
		{"all", b.ToAll(thread), []string{"private-messenger.user.alice", "private-messenger.user.bob"}},
		{"others", b.ToOthers(thread, alice), []string{"private-messenger.user.bob"}},
		{"providers", b.ToProviders(bob), []string{"private-messenger.user.bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec.Reset()
			if err := tt.bc.With(map[string]string{"k": "v"}).Send(ctx, "new.message"); err != nil {
				t.Fatalf("Send: %v", err)
			}
			sent := rec.All()
			if len(sent) != 1 {
				t.Fatalf("deliveries = %d, want 1", len(sent))
			}
			if !reflect.DeepEqual(sent[0].Channels, tt.want) {
				t.Errorf("channels = %v, want %v", sent[0].Channels, tt.want)
			}
		})
	}
}

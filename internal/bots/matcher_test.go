package bots

import (
	"testing"

	"github.com/nextlevelbuilder/messenger/internal/store"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name      string
		cands     []Candidate
		body      string
		wantOK    bool
		wantIndex int
		wantTrig  string
	}{
		{
			name:   "exact does not trim",
			cands:  []Candidate{{Key: "a", Triggers: []string{"!ping"}, Mode: store.MatchExact}},
			body:   " !ping",
			wantOK: false,
		},
		{
			name:     "exact folds case",
			cands:    []Candidate{{Key: "a", Triggers: []string{"!Ping"}, Mode: store.MatchExact}},
			body:     "!PING",
			wantOK:   true,
			wantTrig: "!Ping",
		},
		{
			name:   "exact case sensitive",
			cands:  []Candidate{{Key: "a", Triggers: []string{"!Ping"}, Mode: store.MatchExact, CaseSensitive: true}},
			body:   "!ping",
			wantOK: false,
		},
		{
			name:     "contains",
			cands:    []Candidate{{Key: "a", Triggers: []string{"hello"}, Mode: store.MatchContains}},
			body:     "well HELLO there",
			wantOK:   true,
			wantTrig: "hello",
		},
		{
			name:     "starts with",
			cands:    []Candidate{{Key: "a", Triggers: []string{"!roll"}, Mode: store.MatchStartsWith}},
			body:     "!roll 2d6",
			wantOK:   true,
			wantTrig: "!roll",
		},
		{
			name:   "starts with rejects suffix",
			cands:  []Candidate{{Key: "a", Triggers: []string{"!roll"}, Mode: store.MatchStartsWith}},
			body:   "please !roll",
			wantOK: false,
		},
		{
			name: "first match wins",
			cands: []Candidate{
				{Key: "a", Triggers: []string{"x"}, Mode: store.MatchExact},
				{Key: "b", Triggers: []string{"hi"}, Mode: store.MatchContains},
				{Key: "c", Triggers: []string{"hi"}, Mode: store.MatchExact},
			},
			body:      "hi",
			wantOK:    true,
			wantIndex: 1,
			wantTrig:  "hi",
		},
		{
			name: "triggerless after triggered",
			cands: []Candidate{
				{Key: "any", Triggerless: true},
				{Key: "b", Triggers: []string{"hi"}, Mode: store.MatchExact},
			},
			body:      "hi",
			wantOK:    true,
			wantIndex: 1,
			wantTrig:  "hi",
		},
		{
			name: "triggerless fallback",
			cands: []Candidate{
				{Key: "b", Triggers: []string{"hi"}, Mode: store.MatchExact},
				{Key: "any", Triggerless: true},
			},
			body:      "bye",
			wantOK:    true,
			wantIndex: 1,
		},
		{
			name:      "triggerless matches empty body",
			cands:     []Candidate{{Key: "any", Triggerless: true}},
			body:      "",
			wantOK:    true,
			wantIndex: 0,
		},
		{
			name:   "empty body",
			cands:  []Candidate{{Key: "a", Triggers: []string{""}, Mode: store.MatchContains}},
			body:   "",
			wantOK: false,
		},
		{
			name:   "no candidates",
			body:   "hi",
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Match(tt.cands, tt.body)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Index != tt.wantIndex {
				t.Errorf("Index = %d, want %d", got.Index, tt.wantIndex)
			}
			if got.Trigger != tt.wantTrig {
				t.Errorf("Trigger = %q, want %q", got.Trigger, tt.wantTrig)
			}
		})
	}
}

func TestNormalizeTriggers(t *testing.T) {
	got := NormalizeTriggers([]string{" !ping ", "a|b| a ", "", "!ping"})
	want := []string{"!ping", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeTriggers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NormalizeTriggers[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

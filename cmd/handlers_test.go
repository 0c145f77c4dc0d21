package cmd

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/messenger/internal/bots"
)

func TestFormatHandlers(t *testing.T) {
	out := formatHandlers([]bots.Settings{
		{Alias: "knock", Name: "Knock", Triggers: []string{"!knock"}, Match: "exact", Unique: true},
		{Alias: "random", Name: "Coin Toss", Queued: true},
	}, 2000)

	for _, want := range []string{
		"Handlers:     2",
		"Max cooldown: 15 minutes",
		"Max payload:  2.0 kB",
		"[triggers !knock, match exact, unique]",
		"[queued]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

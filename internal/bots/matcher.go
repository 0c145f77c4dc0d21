// Package bots dispatches freshly stored messages to bot action handlers:
// trigger matching, cooldown gating, handler binding and invocation, and
// the admin operations that manage bot actions.
package bots

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/nextlevelbuilder/messenger/internal/store"
)

// Candidate is one action considered by Match.
type Candidate struct {
	Key           string
	Triggers      []string
	Mode          string
	CaseSensitive bool
	Triggerless   bool
}

// Matched identifies the winning candidate.
type Matched struct {
	Index   int
	Key     string
	Trigger string // "" for triggerless candidates
}

// Match returns the first candidate, in order, with a trigger matching body.
// Triggerless candidates match any body but are only considered once every
// triggered candidate has failed.
func Match(cands []Candidate, body string) (Matched, bool) {
	if body != "" {
		fold := cases.Fold()
		folded := ""
		for i, c := range cands {
			if c.Triggerless {
				continue
			}
			subject := body
			if !c.CaseSensitive {
				if folded == "" {
					folded = fold.String(body)
				}
				subject = folded
			}
			for _, trigger := range c.Triggers {
				if trigger == "" {
					continue
				}
				t := trigger
				if !c.CaseSensitive {
					t = fold.String(trigger)
				}
				if matches(c.Mode, subject, t) {
					return Matched{Index: i, Key: c.Key, Trigger: trigger}, true
				}
			}
		}
	}
	for i, c := range cands {
		if c.Triggerless {
			return Matched{Index: i, Key: c.Key}, true
		}
	}
	return Matched{}, false
}

func matches(mode, body, trigger string) bool {
	switch mode {
	case store.MatchContains:
		return strings.Contains(body, trigger)
	case store.MatchStartsWith:
		return strings.HasPrefix(body, trigger)
	default:
		return body == trigger
	}
}

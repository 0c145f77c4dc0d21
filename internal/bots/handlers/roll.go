package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nextlevelbuilder/messenger/internal/bots"
	"github.com/nextlevelbuilder/messenger/internal/messenger"
)

const (
	maxDice  = 10
	maxSides = 100
)

// Roll rolls "NdM" dice given after the trigger, 1d6 by default. An
// invalid roll answers with usage and does not consume the cooldown.
type Roll struct {
	bots.BaseHandler
	m *messenger.Messenger
}

func (h *Roll) Handle(ctx context.Context) error {
	arg := argument(h.Message().Body, h.MatchingTrigger())
	dice, sides, ok := parseDice(arg)
	if !ok {
		h.ReleaseCooldown()
		return say(ctx, h.m, &h.BaseHandler, fmt.Sprintf("Usage: %s [count]d[sides], up to %dd%d.", h.MatchingTrigger(), maxDice, maxSides))
	}

	rolls := make([]string, dice)
	total := 0
	for i := range rolls {
		n := intN(sides) + 1
		total += n
		rolls[i] = strconv.Itoa(n)
	}
	return say(ctx, h.m, &h.BaseHandler, fmt.Sprintf("Rolled %dd%d: %s (total %d)", dice, sides, strings.Join(rolls, ", "), total))
}

// argument returns the text following trigger in body. The trigger is
// located case-insensitively, rune by rune, so offsets stay valid in body.
func argument(body, trigger string) string {
	if trigger == "" {
		return strings.TrimSpace(body)
	}
	for i := range body {
		if n, ok := prefixFold(body[i:], trigger); ok {
			return strings.TrimSpace(body[i+n:])
		}
	}
	return strings.TrimSpace(body)
}

// prefixFold reports whether s starts with prefix under simple case
// folding and returns the byte length of the matched part of s.
func prefixFold(s, prefix string) (int, bool) {
	n := 0
	for _, pr := range prefix {
		if n >= len(s) {
			return 0, false
		}
		sr, size := utf8.DecodeRuneInString(s[n:])
		if sr != pr && !strings.EqualFold(string(sr), string(pr)) {
			return 0, false
		}
		n += size
	}
	return n, true
}

func parseDice(s string) (dice, sides int, ok bool) {
	if s == "" {
		return 1, 6, true
	}
	count, faces, found := strings.Cut(strings.ToLower(s), "d")
	if !found {
		return 0, 0, false
	}
	dice = 1
	if count != "" {
		n, err := strconv.Atoi(count)
		if err != nil {
			return 0, 0, false
		}
		dice = n
	}
	sides, err := strconv.Atoi(faces)
	if err != nil || dice < 1 || dice > maxDice || sides < 2 || sides > maxSides {
		return 0, 0, false
	}
	return dice, sides, true
}

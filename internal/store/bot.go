package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Trigger match modes.
const (
	MatchExact      = "exact"
	MatchContains   = "contains"
	MatchStartsWith = "starts_with"
)

// ValidMatchMode reports whether m is a known match mode.
func ValidMatchMode(m string) bool {
	switch m {
	case MatchExact, MatchContains, MatchStartsWith:
		return true
	}
	return false
}

// BotData is an automated participant scoped to one thread.
type BotData struct {
	ID          uuid.UUID  `json:"id"`
	ThreadID    uuid.UUID  `json:"thread_id"`
	Owner       Provider   `json:"owner"`
	Name        string     `json:"name"`
	Avatar      string     `json:"avatar,omitempty"`
	Enabled     bool       `json:"enabled"`
	HideActions bool       `json:"hide_actions"`
	Cooldown    int        `json:"cooldown"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// AsProvider returns the bot as a message owner.
func (b *BotData) AsProvider() Provider {
	return Provider{Alias: ProviderBot, ID: b.ID.String(), Name: b.Name}
}

// BotActionData binds a handler to triggers for one bot.
type BotActionData struct {
	ID            uuid.UUID `json:"id"`
	BotID         uuid.UUID `json:"bot_id"`
	Owner         Provider  `json:"owner"`
	Handler       string    `json:"handler"`
	Triggers      []string  `json:"triggers"`
	MatchMode     string    `json:"match"`
	CaseSensitive bool      `json:"case_sensitive"`
	Payload       *string   `json:"payload,omitempty"`
	Cooldown      int       `json:"cooldown"`
	Enabled       bool      `json:"enabled"`
	AdminOnly     bool      `json:"admin_only"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DecodedPayload unmarshals the stored payload. A nil payload yields nil.
func (a *BotActionData) DecodedPayload() (map[string]any, error) {
	if a.Payload == nil {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(*a.Payload), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BotWithActions is an enabled bot with its enabled actions in stable order.
type BotWithActions struct {
	Bot     *BotData
	Actions []*BotActionData
}

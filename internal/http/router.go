package http

import (
	"net/http"

	"github.com/nextlevelbuilder/messenger/internal/bots"
	"github.com/nextlevelbuilder/messenger/internal/config"
	"github.com/nextlevelbuilder/messenger/internal/messenger"
)

// RegisterAPI mounts the messaging and bot action APIs on mux, sharing one
// authenticator and rate limiter.
func RegisterAPI(mux *http.ServeMux, cfg *config.Config, m *messenger.Messenger, admin *bots.Admin) {
	g := NewGuard(cfg)
	NewMessagesHandler(m, g).RegisterRoutes(mux)
	NewBotActionsHandler(admin, m.Stores(), g).RegisterRoutes(mux)
}

package http

import (
	"encoding/json"
	"net/http"

	"github.com/nextlevelbuilder/messenger/internal/bots"
	"github.com/nextlevelbuilder/messenger/internal/store"
)

// BotActionsHandler serves bot action management endpoints.
type BotActionsHandler struct {
	admin  *bots.Admin
	stores *store.Stores
	guard  *Guard
}

// NewBotActionsHandler creates a handler for bot action endpoints.
func NewBotActionsHandler(admin *bots.Admin, stores *store.Stores, g *Guard) *BotActionsHandler {
	return &BotActionsHandler{admin: admin, stores: stores, guard: g}
}

// RegisterRoutes registers all bot action routes on the given mux.
func (h *BotActionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/threads/{thread}/bots/{bot}/handlers", h.guard.auth(h.handleCatalog))
	mux.HandleFunc("GET /v1/threads/{thread}/bots/{bot}/actions", h.guard.auth(h.handleList))
	mux.HandleFunc("POST /v1/threads/{thread}/bots/{bot}/actions", h.guard.auth(h.handleStore))
	mux.HandleFunc("GET /v1/threads/{thread}/bots/{bot}/actions/{action}", h.guard.auth(h.handleShow))
	mux.HandleFunc("PUT /v1/threads/{thread}/bots/{bot}/actions/{action}", h.guard.auth(h.handleUpdate))
	mux.HandleFunc("DELETE /v1/threads/{thread}/bots/{bot}/actions/{action}", h.guard.auth(h.handleDestroy))
}

// loadBot resolves {thread} and {bot}. manage additionally requires the
// actor to be allowed to manage bots in the thread.
func (h *BotActionsHandler) loadBot(w http.ResponseWriter, r *http.Request, actor store.Provider, manage bool) (*store.BotData, bool) {
	ta, ok := loadThread(r.Context(), w, r, h.stores, actor)
	if !ok {
		return nil, false
	}
	if manage && !ta.canManageBots() {
		writeForbidden(w, "You cannot manage bots in this thread.")
		return nil, false
	}
	id, ok := pathUUID(w, r, "bot")
	if !ok {
		return nil, false
	}
	bot, err := h.stores.Bots.GetBot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if bot.ThreadID != ta.thread.ID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return nil, false
	}
	return bot, true
}

func (h *BotActionsHandler) handleCatalog(w http.ResponseWriter, r *http.Request, actor store.Provider) {
	if _, ok := h.loadBot(w, r, actor, true); !ok {
		return
	}
	handlers, err := h.admin.Catalog(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"handlers": handlers})
}

func (h *BotActionsHandler) handleList(w http.ResponseWriter, r *http.Request, actor store.Provider) {
	bot, ok := h.loadBot(w, r, actor, false)
	if !ok {
		return
	}
	actions, err := h.admin.ListActions(r.Context(), bot)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions})
}

func (h *BotActionsHandler) handleShow(w http.ResponseWriter, r *http.Request, actor store.Provider) {
	bot, ok := h.loadBot(w, r, actor, false)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "action")
	if !ok {
		return
	}
	view, err := h.admin.ShowAction(r.Context(), bot, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func decodeAction(w http.ResponseWriter, r *http.Request) (bots.ActionInput, bool) {
	var in bots.ActionInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return in, false
	}
	return in, true
}

func (h *BotActionsHandler) handleStore(w http.ResponseWriter, r *http.Request, actor store.Provider) {
	bot, ok := h.loadBot(w, r, actor, true)
	if !ok {
		return
	}
	in, ok := decodeAction(w, r)
	if !ok {
		return
	}
	act, err := h.admin.StoreAction(r.Context(), actor, bot, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, act)
}

func (h *BotActionsHandler) handleUpdate(w http.ResponseWriter, r *http.Request, actor store.Provider) {
	bot, ok := h.loadBot(w, r, actor, true)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "action")
	if !ok {
		return
	}
	in, ok := decodeAction(w, r)
	if !ok {
		return
	}
	act, err := h.admin.UpdateAction(r.Context(), actor, bot, id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

func (h *BotActionsHandler) handleDestroy(w http.ResponseWriter, r *http.Request, actor store.Provider) {
	bot, ok := h.loadBot(w, r, actor, true)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "action")
	if !ok {
		return
	}
	resp, err := h.admin.RemoveAction(r.Context(), bot, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp.Status, resp)
}

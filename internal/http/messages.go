package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/messenger/internal/messenger"
	"github.com/nextlevelbuilder/messenger/internal/storage"
	"github.com/nextlevelbuilder/messenger/internal/store"
)

// maxUploadMemory is the multipart form memory budget; larger parts spill
// to temporary files.
const maxUploadMemory = 8 << 20

// MessagesHandler serves the compose endpoints.
type MessagesHandler struct {
	m      *messenger.Messenger
	stores *store.Stores
	guard  *Guard
}

// NewMessagesHandler creates a handler for messaging endpoints.
func NewMessagesHandler(m *messenger.Messenger, g *Guard) *MessagesHandler {
	return &MessagesHandler{m: m, stores: m.Stores(), guard: g}
}

// RegisterRoutes registers all messaging routes on the given mux.
func (h *MessagesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/threads/{thread}/messages", h.guard.auth(h.handleMessage))
	mux.HandleFunc("POST /v1/threads/{thread}/images", h.guard.auth(h.handleUpload(store.MessageImage, "image")))
	mux.HandleFunc("POST /v1/threads/{thread}/documents", h.guard.auth(h.handleUpload(store.MessageDocument, "document")))
	mux.HandleFunc("POST /v1/threads/{thread}/audio", h.guard.auth(h.handleUpload(store.MessageAudio, "audio")))
	mux.HandleFunc("POST /v1/threads/{thread}/messages/{message}/reactions", h.guard.auth(h.handleReaction))
	mux.HandleFunc("POST /v1/threads/{thread}/knock", h.guard.auth(h.handleKnock))
	mux.HandleFunc("POST /v1/threads/{thread}/read", h.guard.auth(h.handleRead))
	mux.HandleFunc("POST /v1/threads/{thread}/typing", h.guard.auth(h.handleTyping))

	// Private messaging, creating the thread on first contact.
	mux.HandleFunc("POST /v1/providers/{alias}/{id}/messages", h.guard.auth(h.handlePrivateMessage))
}

type messageRequest struct {
	Message     string         `json:"message"`
	ReplyToID   *uuid.UUID     `json:"reply_to_id,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	TemporaryID string         `json:"temporary_id,omitempty"`
}

func (req messageRequest) options(r *http.Request) []messenger.MessageOption {
	opts := []messenger.MessageOption{messenger.WithSenderIP(clientIP(r))}
	if req.ReplyToID != nil {
		opts = append(opts, messenger.ReplyTo(*req.ReplyToID))
	}
	if req.Extra != nil {
		opts = append(opts, messenger.WithExtra(req.Extra))
	}
	if req.TemporaryID != "" {
		opts = append(opts, messenger.WithTemporaryID(req.TemporaryID))
	}
	return opts
}

func decodeMessage(w http.ResponseWriter, r *http.Request) (messageRequest, bool) {
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return req, false
	}
	return req, true
}

func (h *MessagesHandler) handleMessage(w http.ResponseWriter, r *http.Request, actor store.Provider) {
	ta, ok := loadThread(r.Context(), w, r, h.stores, actor)
	if !ok {
		return
	}
	if !ta.canMessage() {
		writeForbidden(w, "You cannot send messages in this thread.")
		return
	}
	req, ok := decodeMessage(w, r)
	if !ok {
		return
	}
	res, err := h.m.Compose().To(ta.thread).From(actor).Message(r.Context(), req.Message, req.options(r)...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res.JSONResource())
}

func (h *MessagesHandler) handlePrivateMessage(w http.ResponseWriter, r *http.Request, actor store.Provider) {
	target := store.Provider{Alias: r.PathValue("alias"), ID: r.PathValue("id")}
	req, ok := decodeMessage(w, r)
	if !ok {
		return
	}
	res, err := h.m.Compose().To(target).From(actor).Message(r.Context(), req.Message, req.options(r)...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res.JSONResource())
}

func (h *MessagesHandler) handleUpload(typ int, field string) actorHandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, actor store.Provider) {
		ta, ok := loadThread(r.Context(), w, r, h.stores, actor)
		if !ok {
			return
		}
		if !ta.canMessage() {
			writeForbidden(w, "You cannot send messages in this thread.")
			return
		}
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			writeError(w, messenger.NewValidationError(field, "The "+field+" field is required."))
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile(field)
		if err != nil {
			writeError(w, messenger.NewValidationError(field, "The "+field+" field is required."))
			return
		}
		defer file.Close()

		req := messageRequest{TemporaryID: r.FormValue("temporary_id")}
		if raw := r.FormValue("reply_to_id"); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				req.ReplyToID = &id
			}
		}
		if raw := r.FormValue("extra"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Extra); err != nil {
				writeError(w, messenger.NewValidationError("extra", "The extra field must be a JSON object."))
				return
			}
		}

		f := storage.File{Name: header.Filename, Size: header.Size, Reader: file}
		c := h.m.Compose().To(ta.thread).From(actor)
		var res *messenger.Result[*store.MessageData]
		switch typ {
		case store.MessageImage:
			res, err = c.Image(r.Context(), f, req.options(r)...)
		case store.MessageDocument:
			res, err = c.Document(r.Context(), f, req.options(r)...)
		default:
			res, err = c.Audio(r.Context(), f, req.options(r)...)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, res.JSONResource())
	}
}

func (h *MessagesHandler) handleReaction(w http.ResponseWriter, r *http.Request, actor store.Provider) {
	ta, ok := loadThread(r.Context(), w, r, h.stores, actor)
	if !ok {
		return
	}
	msgID, ok := pathUUID(w, r, "message")
	if !ok {
		return
	}
	msg, err := h.stores.Messages.GetInThread(r.Context(), ta.thread.ID, msgID)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Reaction string `json:"reaction"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	res, err := h.m.Compose().To(ta.thread).From(actor).Reaction(r.Context(), msg, req.Reaction)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res.JSONResource())
}

func (h *MessagesHandler) handleKnock(w http.ResponseWriter, r *http.Request, actor store.Provider) {
	ta, ok := loadThread(r.Context(), w, r, h.stores, actor)
	if !ok {
		return
	}
	res, err := h.m.Compose().To(ta.thread).From(actor).Knock(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp, _ := res.Response()
	writeJSON(w, resp.Status, resp)
}

func (h *MessagesHandler) handleRead(w http.ResponseWriter, r *http.Request, actor store.Provider) {
	ta, ok := loadThread(r.Context(), w, r, h.stores, actor)
	if !ok {
		return
	}
	res, err := h.m.Compose().To(ta.thread).From(actor).Read(r.Context(), ta.participant)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.JSONResource())
}

func (h *MessagesHandler) handleTyping(w http.ResponseWriter, r *http.Request, actor store.Provider) {
	ta, ok := loadThread(r.Context(), w, r, h.stores, actor)
	if !ok {
		return
	}
	var req struct {
		Typing bool `json:"typing"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	c := h.m.Compose().To(ta.thread).From(actor)
	var err error
	if req.Typing {
		err = c.EmitTyping(r.Context())
	} else {
		err = c.EmitStopTyping(r.Context())
	}
	if err != nil {
		slog.Warn("http.typing.failed", "thread", ta.thread.ID, "error", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

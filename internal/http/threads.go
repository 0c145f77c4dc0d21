package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/messenger/internal/store"
)

const msgNotParticipant = "You are not a participant in this thread."

// threadAccess is a thread with the acting provider's participant record.
type threadAccess struct {
	thread      *store.ThreadData
	participant *store.ParticipantData
}

func (a threadAccess) canMessage() bool {
	return a.thread.Messaging && (a.participant.SendMessages || a.participant.Admin)
}

func (a threadAccess) canManageBots() bool {
	return a.thread.IsGroup() && (a.participant.Admin || a.participant.ManageBots)
}

// loadThread resolves {thread} and the actor's active participation. It
// writes the error response itself and returns ok=false on failure.
func loadThread(ctx context.Context, w http.ResponseWriter, r *http.Request, stores *store.Stores, actor store.Provider) (threadAccess, bool) {
	id, err := uuid.Parse(r.PathValue("thread"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid thread id"})
		return threadAccess{}, false
	}
	thread, err := stores.Threads.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return threadAccess{}, false
	}
	p, err := stores.Participants.Get(ctx, thread.ID, actor)
	if errors.Is(err, store.ErrNotFound) || (err == nil && p.Pending) {
		writeForbidden(w, msgNotParticipant)
		return threadAccess{}, false
	}
	if err != nil {
		writeError(w, err)
		return threadAccess{}, false
	}
	return threadAccess{thread: thread, participant: p}, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name + " id"})
		return uuid.Nil, false
	}
	return id, true
}

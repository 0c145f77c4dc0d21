package store

import (
	"encoding/json"
	"path"
	"time"

	"github.com/google/uuid"
)

// Message types. 0-3 are user content, the rest are system notices.
const (
	MessageText     = 0
	MessageImage    = 1
	MessageDocument = 2
	MessageAudio    = 3

	MessageParticipantJoinedWithInvite = 88
	MessageVideoCall                   = 90
	MessageGroupAvatarChanged          = 91
	MessageThreadArchived              = 92
	MessageGroupCreated                = 93
	MessageGroupRenamed                = 94
	MessageDemotedAdmin                = 95
	MessagePromotedAdmin               = 96
	MessageParticipantLeftGroup        = 97
	MessageParticipantRemoved          = 98
	MessageParticipantsAdded           = 99
	MessageBotAdded                    = 100
	MessageBotRenamed                  = 101
	MessageBotAvatarChanged            = 102
	MessageBotRemoved                  = 103
)

var messageTypeNames = map[int]string{
	MessageText:                        "MESSAGE",
	MessageImage:                       "IMAGE_MESSAGE",
	MessageDocument:                    "DOCUMENT_MESSAGE",
	MessageAudio:                       "AUDIO_MESSAGE",
	MessageParticipantJoinedWithInvite: "PARTICIPANT_JOINED_WITH_INVITE",
	MessageVideoCall:                   "VIDEO_CALL",
	MessageGroupAvatarChanged:          "GROUP_AVATAR_CHANGED",
	MessageThreadArchived:              "THREAD_ARCHIVED",
	MessageGroupCreated:                "GROUP_CREATED",
	MessageGroupRenamed:                "GROUP_RENAMED",
	MessageDemotedAdmin:                "DEMOTED_ADMIN",
	MessagePromotedAdmin:               "PROMOTED_ADMIN",
	MessageParticipantLeftGroup:        "PARTICIPANT_LEFT_GROUP",
	MessageParticipantRemoved:          "PARTICIPANT_REMOVED",
	MessageParticipantsAdded:           "PARTICIPANTS_ADDED",
	MessageBotAdded:                    "BOT_ADDED",
	MessageBotRenamed:                  "BOT_RENAMED",
	MessageBotAvatarChanged:            "BOT_AVATAR_CHANGED",
	MessageBotRemoved:                  "BOT_REMOVED",
}

// MessageTypeName returns the verbose name for a message type code.
func MessageTypeName(t int) string {
	if n, ok := messageTypeNames[t]; ok {
		return n
	}
	return "UNKNOWN"
}

// IsSystemType reports whether t is a system notice code.
func IsSystemType(t int) bool {
	return t < MessageText || t > MessageAudio
}

// Storage sub-directories per attachment type.
const (
	ImagesDir    = "images"
	DocumentsDir = "documents"
	AudioDir     = "audio"
)

// MessageData is a single entry in a thread.
type MessageData struct {
	ID          uuid.UUID       `json:"id"`
	ThreadID    uuid.UUID       `json:"thread_id"`
	Owner       Provider        `json:"owner"`
	Type        int             `json:"type"`
	Body        string          `json:"body"`
	ReplyToID   *uuid.UUID      `json:"reply_to_id,omitempty"`
	Edited      bool            `json:"edited"`
	Reacted     bool            `json:"reacted"`
	Embeds      bool            `json:"embeds"`
	Extra       json.RawMessage `json:"extra,omitempty"`
	TemporaryID string          `json:"temporary_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}

// IsSystem reports whether the message is a system notice.
func (m *MessageData) IsSystem() bool { return IsSystemType(m.Type) }

// IsText reports whether the message is plain text.
func (m *MessageData) IsText() bool { return m.Type == MessageText }

// IsFromBot reports whether a bot owns the message.
func (m *MessageData) IsFromBot() bool { return m.Owner.IsBot() }

// TypeVerbose returns the readable message type.
func (m *MessageData) TypeVerbose() string { return MessageTypeName(m.Type) }

// StorageDir returns the attachment directory for this message relative to
// the threads root, or "" for messages without attachments.
func (m *MessageData) StorageDir(threadsDir string) string {
	sub := AttachmentDir(m.Type)
	if sub == "" {
		return ""
	}
	return path.Join(threadsDir, m.ThreadID.String(), sub)
}

// StoragePath returns the attachment path for this message, or "".
func (m *MessageData) StoragePath(threadsDir string) string {
	dir := m.StorageDir(threadsDir)
	if dir == "" {
		return ""
	}
	return path.Join(dir, m.Body)
}

// AttachmentDir maps an attachment message type to its sub-directory.
func AttachmentDir(t int) string {
	switch t {
	case MessageImage:
		return ImagesDir
	case MessageDocument:
		return DocumentsDir
	case MessageAudio:
		return AudioDir
	}
	return ""
}

// ReactionData is an emoji-style reaction on a message.
type ReactionData struct {
	ID        uuid.UUID `json:"id"`
	MessageID uuid.UUID `json:"message_id"`
	Owner     Provider  `json:"owner"`
	Reaction  string    `json:"reaction"`
	CreatedAt time.Time `json:"created_at"`
}

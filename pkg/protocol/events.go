package protocol

// ProtocolVersion is bumped on breaking changes to frames or event payloads.
const ProtocolVersion = 1

// Realtime event names pushed to websocket subscribers.
const (
	EventNewMessage      = "new.message"
	EventReactionAdded   = "reaction.added"
	EventKnockKnock      = "knock.knock"
	EventParticipantRead = "participant.read"

	// Presence (client) events on thread presence channels.
	EventClientTyping     = "client-typing"
	EventClientStopTyping = "client-stop-typing"
	EventClientRead       = "client-read"
)

// Domain event names published on the in-process bus. Not forwarded to
// websocket clients.
const (
	BusMessageStored        = "message.new"
	BusReactionAdded        = "reaction.added"
	BusKnockSent            = "knock.sent"
	BusParticipantRead      = "participant.read"
	BusPrivateThreadCreated = "thread.private.created"
	BusBotActionHandled     = "bot.action.handled"
	BusBotActionFailed      = "bot.action.failed"
	BusBotActionStored      = "bot.action.stored"
	BusBotActionUpdated     = "bot.action.updated"
	BusBotActionRemoved     = "bot.action.removed"
	BusFeaturesReloaded     = "config.features.reloaded"
)

// Channel name prefixes.
const (
	PrivateChannelPrefix  = "private-messenger."
	PresenceChannelPrefix = "presence-messenger.thread."
)

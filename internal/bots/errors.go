package bots

import "errors"

var (
	// ErrNotBound is returned when a handler is invoked without a complete
	// action, bot, thread and message binding.
	ErrNotBound = errors.New("bot handler is not bound")
	// ErrUnknownHandler is returned for handler keys missing from the registry.
	ErrUnknownHandler = errors.New("unknown bot handler")
	// ErrNotAuthorized is returned when a handler's Authorize check fails.
	ErrNotAuthorized = errors.New("not authorized to use this bot handler")
)

// BotError rejects an admin operation, such as adding a second instance of
// a unique handler.
type BotError struct{ Msg string }

func (e *BotError) Error() string { return e.Msg }

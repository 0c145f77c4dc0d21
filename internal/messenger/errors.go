package messenger

import (
	"errors"
	"sort"
	"strings"
)

// Composer error messages.
const (
	msgInvalidTo     = `Invalid "TO" entity. Thread or messenger provider must be used.`
	msgNoTo          = `No "TO" entity has been set.`
	msgNoFrom        = `No "FROM" provider has been set.`
	msgPrivateFailed = "Storing new private failed with the message: "
)

// ComposerError reports a misconfigured compose call or a failed implicit
// thread creation. The underlying cause, if any, is kept for errors.Unwrap.
type ComposerError struct {
	Msg string
	Err error
}

func (e *ComposerError) Error() string {
	if e.Err != nil {
		return e.Msg + e.Err.Error()
	}
	return e.Msg
}

func (e *ComposerError) Unwrap() error { return e.Err }

// FeatureDisabledError is returned when a feature toggle is off.
type FeatureDisabledError struct {
	Feature string
	Msg     string
}

func (e *FeatureDisabledError) Error() string { return e.Msg }

// ValidationError carries per-field messages.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError creates an error with one field message.
func NewValidationError(field, msg string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, msg)
	return v
}

// Add appends msg to field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Empty reports whether no messages were added.
func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, strings.Join(e.Fields[k], " "))
	}
	return "The given data was invalid. " + strings.Join(parts, " ")
}

// ReactionError rejects a reaction (duplicate, too many, system message).
type ReactionError struct{ Msg string }

func (e *ReactionError) Error() string { return e.Msg }

// KnockError rejects a knock (disabled for thread, lockout, permission).
type KnockError struct{ Msg string }

func (e *KnockError) Error() string { return e.Msg }

// IsComposerError reports whether err is or wraps a ComposerError.
func IsComposerError(err error) bool {
	var ce *ComposerError
	return errors.As(err, &ce)
}

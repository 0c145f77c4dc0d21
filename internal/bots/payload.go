package bots

import (
	"encoding/json"
	"fmt"
)

// SerializePayload encodes payload for storage using h's serializer when it
// has one. A nil payload is stored as nil.
func SerializePayload(h Handler, payload map[string]any) (*string, error) {
	if payload == nil {
		return nil, nil
	}
	if s, ok := h.(PayloadSerializer); ok {
		return s.SerializePayload(payload)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	out := string(raw)
	return &out, nil
}

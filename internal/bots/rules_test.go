package bots

import "testing"

func TestRulesValidate(t *testing.T) {
	rules := Rules{
		"replies":        "required|array|min:1|max:2",
		"replies.*":      "required|string|max:5",
		"quote_original": "nullable|boolean",
		"sides":          "nullable|integer|min:2|max:100",
		"mode":           "in:heads,tails",
	}
	messages := map[string]string{"replies.*.max": "Replies are too long."}

	tests := []struct {
		name       string
		payload    map[string]any
		wantFields map[string]string
	}{
		{
			name:    "valid",
			payload: map[string]any{"replies": []any{"hi", "yo"}, "quote_original": true, "sides": float64(6), "mode": "heads"},
		},
		{
			name:       "missing required",
			payload:    map[string]any{},
			wantFields: map[string]string{"replies": "The replies field is required."},
		},
		{
			name:       "element too long uses custom message",
			payload:    map[string]any{"replies": []any{"hi", "too long"}},
			wantFields: map[string]string{"replies.1": "Replies are too long."},
		},
		{
			name:       "too many items",
			payload:    map[string]any{"replies": []any{"a", "b", "c"}},
			wantFields: map[string]string{"replies": "The replies must not be greater than 2 items."},
		},
		{
			name:       "wrong types",
			payload:    map[string]any{"replies": []any{"a"}, "quote_original": "yes", "sides": 2.5},
			wantFields: map[string]string{"quote_original": "The quote_original field must be true or false.", "sides": "The sides must be an integer."},
		},
		{
			name:       "not in list",
			payload:    map[string]any{"replies": []any{"a"}, "mode": "edge"},
			wantFields: map[string]string{"mode": "The selected mode is invalid."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := rules.Validate(tt.payload, messages)
			if len(tt.wantFields) == 0 {
				if verr != nil {
					t.Fatalf("Validate = %v, want nil", verr)
				}
				return
			}
			if verr == nil {
				t.Fatalf("Validate = nil, want %v", tt.wantFields)
			}
			if len(verr.Fields) != len(tt.wantFields) {
				t.Errorf("fields = %v, want %v", verr.Fields, tt.wantFields)
			}
			for field, want := range tt.wantFields {
				got := verr.Fields[field]
				if len(got) == 0 || got[0] != want {
					t.Errorf("%s = %v, want %q", field, got, want)
				}
			}
		})
	}
}

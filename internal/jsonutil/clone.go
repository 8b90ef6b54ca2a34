package jsonutil

import (
	"encoding/json"
	"fmt"
)

// Clone deep-copies a value by round-tripping it through JSON. The round trip
// canonicalizes the result (maps become map[string]any, numbers float64) and
// rejects anything JSON cannot represent: functions, channels, cycles.
func Clone(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-representable: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode cloned value: %w", err)
	}
	return out, nil
}

// CloneMap deep-copies a string-keyed map through JSON. A nil input clones to nil.
func CloneMap(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("map is not JSON-representable: %w", err)
	}
	out := make(map[string]any, len(m))
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode cloned map: %w", err)
	}
	return out, nil
}

package models

import (
	"encoding/json"
	"fmt"
)

// MarshalMetadataJSON renders Metadata as the JSON object stored in the
// `metadata` column (spec §3, §9 "Dynamic typing").
func MarshalMetadataJSON(m Metadata) (string, error) {
	if m == nil {
		return "{}", nil
	}
	raw := make(map[string]any, len(m))
	for k, v := range m {
		switch v.Kind {
		case 's':
			raw[k] = v.Str
		case 'n':
			raw[k] = v.Num
		case 'b':
			raw[k] = v.Bool
		}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseMetadataJSON decodes a stored metadata column, rejecting nested
// objects/arrays per spec §9 ("Reject arbitrary nesting on write").
func ParseMetadataJSON(s string) (Metadata, error) {
	if s == "" {
		return Metadata{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("invalid metadata JSON: %w", err)
	}
	out := make(Metadata, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = StringValue(t)
		case float64:
			out[k] = NumberValue(t)
		case bool:
			out[k] = BoolValue(t)
		case nil:
			// drop nulls
		default:
			return nil, fmt.Errorf("metadata field %q has unsupported nested type %T", k, v)
		}
	}
	return out, nil
}

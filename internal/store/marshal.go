package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalNames converts a plugin list to JSON TEXT for storage.
// A nil list is stored as [].
func marshalNames(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	return encode(names)
}

// marshalDetails converts notification details to JSON TEXT.
// json.Marshal sorts map keys, so output is deterministic.
func marshalDetails(details map[string]string) (string, error) {
	if details == nil {
		details = map[string]string{}
	}
	return encode(details)
}

func encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // plugin names may contain '&'
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	// Encoder adds a trailing newline
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func unmarshalNames(data string) ([]string, error) {
	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("unmarshal plugins: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func unmarshalDetails(data string) (map[string]string, error) {
	details := map[string]string{}
	if err := json.Unmarshal([]byte(data), &details); err != nil {
		return nil, fmt.Errorf("unmarshal details: %w", err)
	}
	if details == nil {
		details = map[string]string{}
	}
	return details, nil
}

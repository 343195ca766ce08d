package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrUnsupportedType is returned for well-formed messages of a type the
// server does not act on. Callers ignore these.
var ErrUnsupportedType = errors.New("unsupported message type")

// ValidateClientMessage validates a raw JSON message from a client.
// Returns the parsed message and any validation error.
func ValidateClientMessage(raw []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}

	switch msg.Type {
	case TypeGenerate:
		// An empty prompt is a valid request; only an absent one is not.
		if p := gjson.GetBytes(raw, "prompt"); !p.Exists() || p.Type == gjson.Null {
			return nil, fmt.Errorf("missing required field 'prompt' in %s message", msg.Type)
		}
	default:
		return &msg, fmt.Errorf("%w: %s", ErrUnsupportedType, msg.Type)
	}

	return &msg, nil
}

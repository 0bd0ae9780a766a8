package session

import (
	"encoding/json"
	"fmt"
)

// CommandKey is the discriminator field whose presence marks an inbound
// payload as already canonical.
const CommandKey = "cmd"

// LegacyCommand is the command assigned to untagged wire payloads after
// conversion into the canonical shape.
const LegacyCommand = "message"

// Response is the single normalized inbound-message shape the session emits
// to subscribers, regardless of which wire variant was received. Payload is
// the original object verbatim.
type Response struct {
	Command string
	Payload json.RawMessage
}

// ResponseHandler consumes canonical responses from the inbound stream.
type ResponseHandler func(resp Response)

// DecodeResponse normalizes raw wire text into the canonical response shape.
//
// A JSON object carrying the command discriminator passes through with its
// command value; an object lacking it is treated as the legacy shape and
// mapped to LegacyCommand. Anything that is not a JSON object is rejected
// with ErrMalformedMessage.
func DecodeResponse(data []byte) (Response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if fields == nil {
		return Response{}, fmt.Errorf("%w: null payload", ErrMalformedMessage)
	}

	payload := append(json.RawMessage(nil), data...)

	raw, tagged := fields[CommandKey]
	if !tagged {
		return Response{Command: LegacyCommand, Payload: payload}, nil
	}

	var cmd string
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Response{}, fmt.Errorf("%w: non-string %q field", ErrMalformedMessage, CommandKey)
	}
	return Response{Command: cmd, Payload: payload}, nil
}

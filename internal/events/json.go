package events

import (
	"encoding/json"
	"fmt"
)

// Type discriminator values for JSON serialization.
const (
	typeSessionStart   = "session_start"
	typeToolUse        = "tool_use"
	typeAgentText      = "agent_text"
	typeInvocationDone = "invocation_done"
	typeLogMessage     = "log_message"
)

// envelope wraps an event with a type discriminator for JSON serialization.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalEvent serializes an Event to JSON with a "type" discriminator field.
func MarshalEvent(e Event) ([]byte, error) {
	var typeName string
	switch e.(type) {
	case SessionStart:
		typeName = typeSessionStart
	case ToolUse:
		typeName = typeToolUse
	case AgentText:
		typeName = typeAgentText
	case InvocationDone:
		typeName = typeInvocationDone
	case LogMessage:
		typeName = typeLogMessage
	default:
		return nil, fmt.Errorf("unknown event type: %T", e)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}

	env := envelope{Type: typeName, Data: data}
	return json.Marshal(env)
}

// UnmarshalEvent deserializes an Event from JSON using the "type" discriminator field.
func UnmarshalEvent(b []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}

	if env.Type == "" {
		return nil, fmt.Errorf("missing event type field")
	}

	switch env.Type {
	case typeSessionStart:
		var e SessionStart
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case typeToolUse:
		var e ToolUse
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case typeAgentText:
		var e AgentText
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case typeInvocationDone:
		var e InvocationDone
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case typeLogMessage:
		var e LogMessage
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

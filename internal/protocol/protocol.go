// Package protocol defines the versioned message envelope exchanged between
// the privileged host process and the untrusted UI surface. The two sides
// can only exchange strings, so every message is validated structurally
// before it is trusted. The closed tag set is the protocol's versioning
// mechanism: unknown tags are rejected loudly rather than ignored, so skew
// between independently updated process images fails fast.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MessageType tags one envelope. The set is closed; adding a message type
// means adding its tag here on both sides of the boundary.
type MessageType string

// Host → UI messages.
const (
	TypeState            MessageType = "state"
	TypeCredentials      MessageType = "credentials"
	TypeCredentialDetail MessageType = "credential-detail"
	TypeKeyActionResult  MessageType = "key-action-result"
	TypeError            MessageType = "error"
)

// UI → host messages.
const (
	TypeInitialize           MessageType = "initialize"
	TypeSelectEnvironment    MessageType = "select-environment"
	TypeSignIn               MessageType = "sign-in"
	TypeSignOut              MessageType = "sign-out"
	TypeLoadCredentials      MessageType = "load-credentials"
	TypeLoadCredentialDetail MessageType = "load-credential-detail"
	TypeKeyAction            MessageType = "key-action"
	TypeAckError             MessageType = "ack-error"
)

var hostTypes = map[MessageType]bool{
	TypeState:            true,
	TypeCredentials:      true,
	TypeCredentialDetail: true,
	TypeKeyActionResult:  true,
	TypeError:            true,
}

var uiTypes = map[MessageType]bool{
	TypeInitialize:           true,
	TypeSelectEnvironment:    true,
	TypeSignIn:               true,
	TypeSignOut:              true,
	TypeLoadCredentials:      true,
	TypeLoadCredentialDetail: true,
	TypeKeyAction:            true,
	TypeAckError:             true,
}

// Known reports whether the tag belongs to the closed set.
func (t MessageType) Known() bool { return hostTypes[t] || uiTypes[t] }

// FromUI reports whether the tag is a UI → host request.
func (t MessageType) FromUI() bool { return uiTypes[t] }

// FromHost reports whether the tag is a host → UI message.
func (t MessageType) FromHost() bool { return hostTypes[t] }

// Envelope is the wire wrapper for all cross-boundary traffic. RequestID is
// a caller-assigned correlation token that the protocol layer never
// interprets. Envelopes are ephemeral: created per message and discarded
// after (de)serialization.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a payload value. The payload must marshal to a JSON
// object.
func NewEnvelope(t MessageType, requestID string, payload any) (Envelope, error) {
	if !t.Known() {
		return Envelope{}, fmt.Errorf("unrecognized message type %q", t)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	if !isJSONObject(raw) {
		return Envelope{}, fmt.Errorf("%s payload must be a JSON object", t)
	}
	return Envelope{Type: t, RequestID: requestID, Payload: raw}, nil
}

// NewRequestID produces a correlation token for request envelopes.
func NewRequestID() string { return uuid.NewString() }

// Encode serializes an envelope to its wire string. Encoding is pure JSON;
// Decode(Encode(x)) == x for every valid envelope x.
func Encode(env Envelope) (string, error) {
	if !env.Type.Known() {
		return "", fmt.Errorf("unrecognized message type %q", env.Type)
	}
	if !isJSONObject(env.Payload) {
		return "", fmt.Errorf("%s payload must be a JSON object", env.Type)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(raw), nil
}

// Decode parses and validates a wire string. It rejects malformed JSON,
// tags outside the closed set, non-object payloads, and non-string
// requestId values.
func Decode(raw string) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Envelope{}, fmt.Errorf("malformed envelope: %w", err)
	}

	typeRaw, ok := fields["type"]
	if !ok {
		return Envelope{}, fmt.Errorf("envelope is missing type")
	}
	var typeStr string
	if err := json.Unmarshal(typeRaw, &typeStr); err != nil {
		return Envelope{}, fmt.Errorf("envelope type must be a string")
	}
	msgType := MessageType(typeStr)
	if !msgType.Known() {
		return Envelope{}, fmt.Errorf("unrecognized message type %q", typeStr)
	}

	payload, ok := fields["payload"]
	if !ok || !isJSONObject(payload) {
		return Envelope{}, fmt.Errorf("%s payload must be a JSON object", typeStr)
	}

	env := Envelope{Type: msgType, Payload: payload}
	if reqRaw, ok := fields["requestId"]; ok {
		// Unmarshal alone is not enough: a JSON null into a string is a
		// silent no-op, so check the token itself.
		trimmed := bytes.TrimSpace(reqRaw)
		if len(trimmed) == 0 || trimmed[0] != '"' {
			return Envelope{}, fmt.Errorf("envelope requestId must be a string")
		}
		if err := json.Unmarshal(reqRaw, &env.RequestID); err != nil {
			return Envelope{}, fmt.Errorf("envelope requestId must be a string")
		}
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into a typed struct.
func DecodePayload(env Envelope, dst any) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}

func isJSONObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var probe map[string]json.RawMessage
	return json.Unmarshal(trimmed, &probe) == nil
}

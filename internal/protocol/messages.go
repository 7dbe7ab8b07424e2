// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
// Event names and field names match the existing web frontends.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeRequestChat = "request-chat"
	TypeLeave       = "leave"
	TypeReportUser  = "report-user"
	TypePing        = "ping"
)

// Relayed message types. These travel in both directions.
const (
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeMessage      = "message"
)

// Server -> Client message types.
const (
	TypeSessionCreated = "session_created"
	TypePaired         = "paired"
	TypeQueuePosition  = "queue-position"
	TypeQueueTimeout   = "queue-timeout"
	TypeDisconnected   = "disconnected"
	TypeRateLimited    = "rate_limited"
	TypeError          = "error"
	TypePong           = "pong"
)

// ---------------------------------------------------------------------------
// Envelope is used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// RequestChatMsg asks to be paired with a stranger, optionally filtered by
// shared interest tags.
type RequestChatMsg struct {
	Type      string   `json:"type"`
	Name      string   `json:"name" validate:"max=64"`
	Interests []string `json:"interests" validate:"max=20,dive,max=32"`
}

// OfferMsg carries a WebRTC session offer for the peer named in To.
type OfferMsg struct {
	Type  string          `json:"type"`
	To    string          `json:"to" validate:"max=64"`
	Offer json.RawMessage `json:"offer"`
}

// AnswerMsg carries a WebRTC session answer for the peer named in To.
type AnswerMsg struct {
	Type   string          `json:"type"`
	To     string          `json:"to" validate:"max=64"`
	Answer json.RawMessage `json:"answer"`
}

// ICECandidateMsg carries a trickled ICE candidate for the peer named in To.
type ICECandidateMsg struct {
	Type      string          `json:"type"`
	To        string          `json:"to" validate:"max=64"`
	Candidate json.RawMessage `json:"candidate"`
}

// ChatMsg is a text message for the peer. Older clients address the peer
// with "recipient" instead of "to".
type ChatMsg struct {
	Type      string          `json:"type"`
	To        string          `json:"to" validate:"max=64"`
	Recipient string          `json:"recipient" validate:"max=64"`
	Message   json.RawMessage `json:"message"`
}

// Target returns the addressed peer, preferring To over Recipient.
func (m ChatMsg) Target() string {
	if m.To != "" {
		return m.To
	}
	return m.Recipient
}

// LeaveMsg ends the current pairing. Requeue defaults to true.
type LeaveMsg struct {
	Type    string `json:"type"`
	Requeue *bool  `json:"requeue,omitempty"`
}

// ShouldRequeue reports whether the sender wants to search again.
func (m LeaveMsg) ShouldRequeue() bool {
	return m.Requeue == nil || *m.Requeue
}

// ReportUserMsg reports a peer. An empty ReportedID means the current partner.
type ReportUserMsg struct {
	Type       string `json:"type"`
	ReportedID string `json:"reportedId" validate:"max=64"`
	Reason     string `json:"reason" validate:"max=256"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg is sent by the server when a new connection is registered.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// PairedMsg tells a participant who it has been paired with.
type PairedMsg struct {
	Type             string   `json:"type"`
	PartnerID        string   `json:"partnerId"`
	PartnerName      string   `json:"partnerName"`
	PartnerInterests []string `json:"partnerInterests"`
	SharedInterests  []string `json:"sharedInterests"`
}

// QueuePositionMsg reports the queue length right after joining it.
type QueuePositionMsg struct {
	Type     string `json:"type"`
	Position int    `json:"position"`
}

// QueueTimeoutMsg is sent when no partner was found before the deadline.
type QueueTimeoutMsg struct {
	Type string `json:"type"`
}

// DisconnectedMsg is sent when the partner left or dropped.
type DisconnectedMsg struct {
	Type string `json:"type"`
}

// ServerOfferMsg relays an offer, tagged with the sender so the recipient
// can address its answer.
type ServerOfferMsg struct {
	Type  string          `json:"type"`
	From  string          `json:"from"`
	Offer json.RawMessage `json:"offer"`
}

// ServerAnswerMsg relays an answer.
type ServerAnswerMsg struct {
	Type   string          `json:"type"`
	Answer json.RawMessage `json:"answer"`
}

// ServerICECandidateMsg relays an ICE candidate.
type ServerICECandidateMsg struct {
	Type      string          `json:"type"`
	Candidate json.RawMessage `json:"candidate"`
}

// ServerChatMsg relays a text message from the partner.
type ServerChatMsg struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

// RateLimitedMsg is sent by the server when the client has been rate-limited.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing or validation. An error is returned for unknown
// or server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeRequestChat:
		var m RequestChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeOffer:
		var m OfferMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAnswer:
		var m AnswerMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeICECandidate:
		var m ICECandidateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeave:
		var m LeaveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReportUser:
		var m ReportUserMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	if err := Validate(msg); err != nil {
		return env.Type, nil, err
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	// Decode into raw fields rather than interface{} so relayed SDP and
	// candidate payloads are copied byte for byte.
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	typ, err := json.Marshal(msgType)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal type: %w", err)
	}
	m["type"] = typ

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}

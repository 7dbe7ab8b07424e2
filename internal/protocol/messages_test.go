package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid request-chat message
// ---------------------------------------------------------------------------

func TestParseClientMessage_RequestChat(t *testing.T) {
	input := []byte(`{"type":"request-chat","name":"ana","interests":["music","gaming","anime"]}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeRequestChat {
		t.Fatalf("expected type %q, got %q", TypeRequestChat, msgType)
	}

	rc, ok := msg.(RequestChatMsg)
	if !ok {
		t.Fatalf("expected RequestChatMsg, got %T", msg)
	}
	if rc.Name != "ana" {
		t.Errorf("expected name %q, got %q", "ana", rc.Name)
	}
	expected := []string{"music", "gaming", "anime"}
	if len(rc.Interests) != len(expected) {
		t.Fatalf("expected %d interests, got %d", len(expected), len(rc.Interests))
	}
	for i, v := range expected {
		if rc.Interests[i] != v {
			t.Errorf("interest[%d]: expected %q, got %q", i, v, rc.Interests[i])
		}
	}
}

func TestParseClientMessage_RequestChatWithoutFields(t *testing.T) {
	msgType, msg, err := ParseClientMessage([]byte(`{"type":"request-chat"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeRequestChat {
		t.Fatalf("expected type %q, got %q", TypeRequestChat, msgType)
	}
	rc := msg.(RequestChatMsg)
	if rc.Name != "" || len(rc.Interests) != 0 {
		t.Errorf("expected empty request, got %+v", rc)
	}
}

// ---------------------------------------------------------------------------
// Test: Validation limits
// ---------------------------------------------------------------------------

func TestParseClientMessage_RejectsOversizedName(t *testing.T) {
	input := []byte(`{"type":"request-chat","name":"` + strings.Repeat("x", 65) + `"}`)

	_, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected validation error for 65-char name, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message on validation failure, got %T", msg)
	}
}

func TestParseClientMessage_RejectsTooManyInterests(t *testing.T) {
	tags := make([]string, 21)
	for i := range tags {
		tags[i] = "tag"
	}
	payload, _ := json.Marshal(RequestChatMsg{Type: TypeRequestChat, Interests: tags})

	if _, _, err := ParseClientMessage(payload); err == nil {
		t.Fatal("expected validation error for 21 interests, got nil")
	}
}

func TestParseClientMessage_RejectsOversizedInterest(t *testing.T) {
	payload, _ := json.Marshal(RequestChatMsg{
		Type:      TypeRequestChat,
		Interests: []string{"ok", strings.Repeat("y", 33)},
	})

	if _, _, err := ParseClientMessage(payload); err == nil {
		t.Fatal("expected validation error for 33-char interest, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Relay payloads stay opaque
// ---------------------------------------------------------------------------

func TestParseClientMessage_OfferKeepsRawPayload(t *testing.T) {
	input := []byte(`{"type":"offer","to":"peer-1","offer":{"type":"offer","sdp":"v=0\r\n"}}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	om, ok := msg.(OfferMsg)
	if !ok {
		t.Fatalf("expected OfferMsg, got %T", msg)
	}
	if om.To != "peer-1" {
		t.Errorf("expected to %q, got %q", "peer-1", om.To)
	}
	if string(om.Offer) != `{"type":"offer","sdp":"v=0\r\n"}` {
		t.Errorf("offer payload altered: %s", om.Offer)
	}
}

func TestChatMsg_TargetFallsBackToRecipient(t *testing.T) {
	_, msg, err := ParseClientMessage([]byte(`{"type":"message","recipient":"peer-2","message":"hi"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cm := msg.(ChatMsg)
	if cm.Target() != "peer-2" {
		t.Errorf("expected target %q, got %q", "peer-2", cm.Target())
	}

	_, msg, _ = ParseClientMessage([]byte(`{"type":"message","to":"peer-3","recipient":"peer-2","message":"hi"}`))
	if got := msg.(ChatMsg).Target(); got != "peer-3" {
		t.Errorf("expected to to win over recipient, got %q", got)
	}
}

func TestLeaveMsg_RequeueDefaultsToTrue(t *testing.T) {
	_, msg, err := ParseClientMessage([]byte(`{"type":"leave"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !msg.(LeaveMsg).ShouldRequeue() {
		t.Error("expected leave without requeue field to requeue")
	}

	_, msg, _ = ParseClientMessage([]byte(`{"type":"leave","requeue":false}`))
	if msg.(LeaveMsg).ShouldRequeue() {
		t.Error("expected requeue=false to be honored")
	}
}

// ---------------------------------------------------------------------------
// Test: Creating server messages
// ---------------------------------------------------------------------------

func TestNewServerMessage_Paired(t *testing.T) {
	payload := PairedMsg{
		PartnerID:        "uuid-456",
		PartnerName:      "Stranger",
		PartnerInterests: []string{"music", "gaming"},
		SharedInterests:  []string{"music"},
	}

	data, err := NewServerMessage(TypePaired, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypePaired {
		t.Errorf("expected type %q, got %v", TypePaired, result["type"])
	}
	if result["partnerId"] != "uuid-456" {
		t.Errorf("expected partnerId %q, got %v", "uuid-456", result["partnerId"])
	}
	if result["partnerName"] != "Stranger" {
		t.Errorf("expected partnerName %q, got %v", "Stranger", result["partnerName"])
	}

	interests, ok := result["partnerInterests"].([]interface{})
	if !ok {
		t.Fatalf("expected partnerInterests to be an array, got %T", result["partnerInterests"])
	}
	if len(interests) != 2 || interests[0] != "music" || interests[1] != "gaming" {
		t.Errorf("unexpected partner interests: %v", interests)
	}
}

func TestNewServerMessage_OfferCarriesFrom(t *testing.T) {
	data, err := NewServerMessage(TypeOffer, ServerOfferMsg{
		From:  "peer-a",
		Offer: json.RawMessage(`{"sdp":"v=0","type":"offer"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded ServerOfferMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeOffer {
		t.Errorf("type mismatch: expected %q, got %q", TypeOffer, decoded.Type)
	}
	if decoded.From != "peer-a" {
		t.Errorf("from mismatch: expected %q, got %q", "peer-a", decoded.From)
	}
	if string(decoded.Offer) != `{"sdp":"v=0","type":"offer"}` {
		t.Errorf("offer payload altered: %s", decoded.Offer)
	}
}

func TestNewServerMessage_AnswerHasNoFrom(t *testing.T) {
	data, err := NewServerMessage(TypeAnswer, ServerAnswerMsg{Answer: json.RawMessage(`{"sdp":"v=0"}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(data), `"from"`) {
		t.Errorf("answer must not be tagged with from: %s", data)
	}
}

func TestNewServerMessage_ChatMessageWrapsPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload json.RawMessage
		want    string
	}{
		{"string", json.RawMessage(`"hello there"`), `{"message":"hello there","type":"message"}`},
		{"object", json.RawMessage(`{"text":"hi","ts":17}`), `{"message":{"text":"hi","ts":17},"type":"message"}`},
		{"missing", nil, `{"message":null,"type":"message"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := NewServerMessage(TypeMessage, ServerChatMsg{Message: tt.payload})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("frame mismatch:\n got: %s\nwant: %s", data, tt.want)
			}
		})
	}
}

func TestNewServerMessage_QueuePosition(t *testing.T) {
	data, err := NewServerMessage(TypeQueuePosition, QueuePositionMsg{Position: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded QueuePositionMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeQueuePosition || decoded.Position != 3 {
		t.Errorf("unexpected queue-position message: %s", data)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown message type returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"unknown_type","data":"something"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "unknown_type" {
		t.Errorf("expected returned type %q, got %q", "unknown_type", msgType)
	}
}

func TestParseClientMessage_ServerOnlyTypeRejected(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"type":"paired","partnerId":"x"}`)); err == nil {
		t.Fatal("expected an error for server-only type, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope UnmarshalJSON edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"data":"no type field"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing all client message types succeeds
// ---------------------------------------------------------------------------

func TestParseClientMessage_AllTypes(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantType string
	}{
		{"request-chat", `{"type":"request-chat","interests":["music"]}`, TypeRequestChat},
		{"offer", `{"type":"offer","to":"id1","offer":{"sdp":"x"}}`, TypeOffer},
		{"answer", `{"type":"answer","to":"id1","answer":{"sdp":"x"}}`, TypeAnswer},
		{"ice-candidate", `{"type":"ice-candidate","to":"id1","candidate":{"candidate":"x"}}`, TypeICECandidate},
		{"message", `{"type":"message","to":"id1","message":"hi"}`, TypeMessage},
		{"leave", `{"type":"leave"}`, TypeLeave},
		{"report-user", `{"type":"report-user","reason":"spam"}`, TypeReportUser},
		{"ping", `{"type":"ping"}`, TypePing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tc.wantType {
				t.Errorf("expected type %q, got %q", tc.wantType, msgType)
			}
			if msg == nil {
				t.Error("expected non-nil message")
			}
		})
	}
}

package matching

import (
	"encoding/json"
	"fmt"

	"github.com/whisper/pairing/internal/protocol"
)

// PayloadKind is the kind of a relayed signaling or chat payload.
type PayloadKind string

const (
	KindOffer        PayloadKind = protocol.TypeOffer
	KindAnswer       PayloadKind = protocol.TypeAnswer
	KindICECandidate PayloadKind = protocol.TypeICECandidate
	KindMessage      PayloadKind = protocol.TypeMessage
)

// RelayPolicy decides which recipients a sender may reach.
type RelayPolicy string

const (
	// RelayStrict only delivers to the sender's current partner.
	RelayStrict RelayPolicy = "strict"
	// RelayPermissive delivers to any live participant, as legacy clients expect.
	RelayPermissive RelayPolicy = "permissive"
)

// ParseRelayPolicy validates a policy name.
func ParseRelayPolicy(s string) (RelayPolicy, error) {
	switch RelayPolicy(s) {
	case RelayStrict, RelayPermissive:
		return RelayPolicy(s), nil
	default:
		return "", fmt.Errorf("matching: unknown relay policy %q", s)
	}
}

// Forward relays payload from senderID to recipientID. An empty recipientID
// means the sender's current partner. Offers are tagged with the sender's id
// so the far end can address its answer; other kinds are delivered untagged.
// Payloads for recipients that are not live, or not reachable under the
// configured policy, are dropped without telling the sender.
func (s *Service) Forward(senderID, recipientID string, kind PayloadKind, payload json.RawMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.participants[senderID]
	if !ok {
		return false
	}
	if recipientID == "" {
		recipientID = sender.PartnerID
	}

	recipient, ok := s.participants[recipientID]
	if !ok {
		s.dropRelay(senderID, recipientID, kind, "recipient not live")
		return false
	}
	if s.config.RelayPolicy != RelayPermissive {
		if sender.State != StatePaired || sender.PartnerID != recipientID {
			s.dropRelay(senderID, recipientID, kind, "recipient is not the sender's partner")
			return false
		}
		if recipient.PartnerID != senderID {
			s.reportInconsistent(sender, fmt.Sprintf("relay target %s points at %q", recipientID, recipient.PartnerID))
			return false
		}
	}

	switch kind {
	case KindOffer:
		s.sender.Send(recipientID, protocol.TypeOffer, protocol.ServerOfferMsg{From: senderID, Offer: payload})
	case KindAnswer:
		s.sender.Send(recipientID, protocol.TypeAnswer, protocol.ServerAnswerMsg{Answer: payload})
	case KindICECandidate:
		s.sender.Send(recipientID, protocol.TypeICECandidate, protocol.ServerICECandidateMsg{Candidate: payload})
	case KindMessage:
		s.sender.Send(recipientID, protocol.TypeMessage, protocol.ServerChatMsg{Message: payload})
	default:
		s.dropRelay(senderID, recipientID, kind, "unknown payload kind")
		return false
	}

	s.observers.emit(Event{Kind: EventRelayed, ParticipantID: senderID, PartnerID: recipientID,
		PayloadKind: string(kind), QueueLen: s.queue.Len(), At: s.now()})
	return true
}

func (s *Service) dropRelay(senderID, recipientID string, kind PayloadKind, reason string) {
	s.observers.emit(Event{Kind: EventRelayDropped, ParticipantID: senderID, PartnerID: recipientID,
		PayloadKind: string(kind), Reason: reason, QueueLen: s.queue.Len(), At: s.now()})
}

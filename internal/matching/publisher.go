package matching

import (
	"github.com/whisper/pairing/internal/protocol"
)

// Sender delivers an outbound event to one participant's connection. Send is
// called while the service lock is held: implementations must not block and
// must not call back into the Service. Delivery to an id that has no
// connection is silently dropped.
type Sender interface {
	Send(participantID string, msgType string, payload interface{})
}

// SenderFunc adapts a plain function to Sender.
type SenderFunc func(participantID string, msgType string, payload interface{})

// Send calls f.
func (f SenderFunc) Send(participantID string, msgType string, payload interface{}) {
	f(participantID, msgType, payload)
}

// publishPaired notifies both sides of a new pairing. Each side receives the
// other's id, display name and interest tags.
func (s *Service) publishPaired(a, b *Participant) {
	shared := SharedInterests(a, b)
	s.sender.Send(a.ID, protocol.TypePaired, pairedMsg(b, shared))
	s.sender.Send(b.ID, protocol.TypePaired, pairedMsg(a, shared))
}

func pairedMsg(partner *Participant, shared []string) protocol.PairedMsg {
	interests := append([]string{}, partner.Interests...)
	if shared == nil {
		shared = []string{}
	}
	return protocol.PairedMsg{
		PartnerID:        partner.ID,
		PartnerName:      partner.DisplayName,
		PartnerInterests: interests,
		SharedInterests:  shared,
	}
}

func (s *Service) publishQueuePosition(p *Participant) {
	s.sender.Send(p.ID, protocol.TypeQueuePosition, protocol.QueuePositionMsg{
		Position: s.queue.Len(),
	})
}

func (s *Service) publishDisconnected(id string) {
	s.sender.Send(id, protocol.TypeDisconnected, protocol.DisconnectedMsg{})
}

func (s *Service) publishQueueTimeout(id string) {
	s.sender.Send(id, protocol.TypeQueueTimeout, protocol.QueueTimeoutMsg{})
}

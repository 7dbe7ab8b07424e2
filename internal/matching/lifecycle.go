package matching

import (
	"fmt"
	"log"
)

// Connect registers a new participant in the idle state.
func (s *Service) Connect(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateConnection, id)
	}

	now := s.now()
	s.participants[id] = newParticipant(id, now)
	s.observers.emit(Event{Kind: EventConnected, ParticipantID: id,
		State: StateIdle.String(), QueueLen: s.queue.Len(), At: now})
	return nil
}

// Lookup returns a copy of the participant registered under id.
func (s *Service) Lookup(id string) (Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[id]
	if !ok {
		return Participant{}, false
	}
	return p.snapshot(), true
}

// RequestChat puts the participant in the waiting queue with the given name
// and interests, arms its queue deadline and tells it the queue length.
// Requests from a paired participant are ignored. A participant that is
// already waiting gets its name and interests updated and its queue length
// resent, but keeps its single queue entry and its original deadline.
func (s *Service) RequestChat(id, name string, interests []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[id]
	if !ok {
		return
	}
	if p.State == StatePaired {
		log.Printf("[matcher] ignoring request-chat from %s: already paired", id)
		return
	}

	p.DisplayName = displayNameOrDefault(name)
	p.Interests = NormalizeInterests(interests)
	if p.State == StateQueued {
		s.publishQueuePosition(p)
		return
	}
	s.enqueue(p)
}

// Leave ends the participant's current pairing, if any. The partner is told
// it was disconnected and returns to idle. With requeue the participant goes
// back to the waiting queue with a fresh wait time; without it the
// participant leaves the queue and becomes idle.
func (s *Service) Leave(id string, requeue bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[id]
	if !ok {
		return
	}

	partnerID := p.PartnerID
	if p.State == StatePaired {
		s.unpair(p)
	}

	if requeue {
		if !s.queue.Contains(id) {
			s.enqueue(p)
		}
	} else {
		s.cancelTimeout(p)
		s.queue.Remove(id)
		p.State = StateIdle
	}

	s.observers.emit(Event{Kind: EventLeft, ParticipantID: id, PartnerID: partnerID,
		State: p.State.String(), QueueLen: s.queue.Len(), At: s.now()})
}

// Disconnect removes the participant entirely: its deadline is cancelled, it
// leaves the queue, its partner (if any) is notified and returns to idle.
// No further events are possible for id afterwards.
func (s *Service) Disconnect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[id]
	if !ok {
		return
	}

	s.cancelTimeout(p)
	s.queue.Remove(id)

	partnerID := p.PartnerID
	if p.State == StatePaired {
		s.unpair(p)
	}
	delete(s.participants, id)

	s.observers.emit(Event{Kind: EventDisconnected, ParticipantID: id, PartnerID: partnerID,
		QueueLen: s.queue.Len(), At: s.now()})
}

// Report records a report filed by id. An empty reportedID names the
// reporter's current partner. Reports never change pairing state.
func (s *Service) Report(id, reportedID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[id]
	if !ok {
		return
	}
	if reportedID == "" {
		reportedID = p.PartnerID
	}

	s.observers.emit(Event{Kind: EventReported, ParticipantID: id, PartnerID: reportedID,
		State: p.State.String(), Reason: reason, QueueLen: s.queue.Len(), At: s.now()})
}

// enqueue appends p to the queue, arms its deadline and sends its queue
// position. Caller must hold s.mu.
func (s *Service) enqueue(p *Participant) {
	now := s.now()
	if !s.queue.Enqueue(p, now) {
		return
	}
	s.armTimeout(p)
	s.publishQueuePosition(p)
	s.observers.emit(Event{Kind: EventQueued, ParticipantID: p.ID,
		State: p.State.String(), QueueLen: s.queue.Len(), At: now})
}

// unpair tears down p's pairing. The partner's side is cleared first, then it
// is notified, then p's own side is cleared. A partner that does not point
// back at p is reported and left untouched. Caller must hold s.mu.
func (s *Service) unpair(p *Participant) {
	partner, ok := s.participants[p.PartnerID]
	switch {
	case !ok:
		s.reportInconsistent(p, fmt.Sprintf("partner %s is not registered", p.PartnerID))
	case partner.PartnerID != p.ID || partner.State != StatePaired:
		s.reportInconsistent(p, fmt.Sprintf("partner %s points at %q in state %s",
			partner.ID, partner.PartnerID, partner.State))
	default:
		partner.PartnerID = ""
		partner.State = StateIdle
		s.publishDisconnected(partner.ID)
	}

	p.PartnerID = ""
	p.State = StateIdle
}

// reportInconsistent logs a broken pairing. It is never repaired here: it
// means some path mutated pairing state outside s.mu.
func (s *Service) reportInconsistent(p *Participant, detail string) {
	log.Printf("[matcher] FATAL %v: %s -> %s: %s", ErrInconsistentPairing, p.ID, p.PartnerID, detail)
	s.observers.emit(Event{Kind: EventInconsistent, ParticipantID: p.ID, PartnerID: p.PartnerID,
		State: p.State.String(), Reason: detail, QueueLen: s.queue.Len(), At: s.now()})
}

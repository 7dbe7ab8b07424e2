package matching

import "time"

// armTimeout schedules the queue deadline for p, replacing any pending one.
// Caller must hold s.mu.
func (s *Service) armTimeout(p *Participant) {
	s.cancelTimeout(p)

	gen := p.timeoutGen
	id := p.ID
	p.timeout = time.AfterFunc(s.config.QueueTimeout, func() {
		s.handleTimeout(id, gen)
	})
}

// cancelTimeout stops the pending deadline for p, if any. Bumping the
// generation turns a callback that already fired and is waiting on the lock
// into a no-op. Caller must hold s.mu.
func (s *Service) cancelTimeout(p *Participant) {
	p.timeoutGen++
	if p.timeout != nil {
		p.timeout.Stop()
		p.timeout = nil
	}
}

// handleTimeout evicts a participant whose queue deadline passed. It acts
// only if the participant is still live, still queued and the deadline is
// the one that is currently armed.
func (s *Service) handleTimeout(id string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[id]
	if !ok || p.State != StateQueued || p.timeoutGen != gen {
		return
	}

	now := s.now()
	p.timeout = nil
	p.timeoutGen++
	s.queue.Remove(id)
	p.State = StateIdle

	s.publishQueueTimeout(id)
	s.observers.emit(Event{Kind: EventTimedOut, ParticipantID: id, State: p.State.String(),
		QueueLen: s.queue.Len(), Wait: now.Sub(p.EnqueuedAt), At: now})
}

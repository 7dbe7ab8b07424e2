package matching

import (
	"errors"
	"fmt"
)

// CheckInvariants verifies pairing symmetry and that no participant is both
// queued and paired. It returns every violation found, joined.
func (s *Service) CheckInvariants() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for id, p := range s.participants {
		inQueue := s.queue.Contains(id)

		switch p.State {
		case StatePaired:
			if inQueue {
				errs = append(errs, fmt.Errorf("%s is paired and queued", id))
			}
			partner, ok := s.participants[p.PartnerID]
			if !ok {
				errs = append(errs, fmt.Errorf("%w: %s points at missing %q", ErrInconsistentPairing, id, p.PartnerID))
			} else if partner.PartnerID != id {
				errs = append(errs, fmt.Errorf("%w: %s -> %s -> %q", ErrInconsistentPairing, id, p.PartnerID, partner.PartnerID))
			}
		case StateQueued:
			if p.PartnerID != "" {
				errs = append(errs, fmt.Errorf("%s is queued with partner %q", id, p.PartnerID))
			}
			if !inQueue {
				errs = append(errs, fmt.Errorf("%s is queued but missing from the queue", id))
			}
		case StateIdle:
			if p.PartnerID != "" || inQueue {
				errs = append(errs, fmt.Errorf("%s is idle with partner %q (queued=%v)", id, p.PartnerID, inQueue))
			}
		}
	}

	for _, id := range s.queue.IDs() {
		if _, ok := s.participants[id]; !ok {
			errs = append(errs, fmt.Errorf("queue holds unregistered %s", id))
		}
	}

	return errors.Join(errs...)
}

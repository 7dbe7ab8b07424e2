// Package matching is the pairing core: it owns the participant registry,
// the waiting queue, the periodic matchmaker, per-participant queue
// deadlines and the signaling relay. Every mutation of that state goes
// through Service.mu, whether it comes from a connection handler, the
// matchmaker tick or a firing deadline.
package matching

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	DefaultMatchInterval = 5 * time.Second
	DefaultQueueTimeout  = 5 * time.Minute
)

// Config holds the tunables of the pairing core.
type Config struct {
	MatchInterval time.Duration // period of the matchmaker tick
	QueueTimeout  time.Duration // how long a participant may wait unpaired
	RelayPolicy   RelayPolicy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MatchInterval: DefaultMatchInterval,
		QueueTimeout:  DefaultQueueTimeout,
		RelayPolicy:   RelayStrict,
	}
}

// Validate reports configuration values the service cannot run with.
func (c Config) Validate() error {
	if c.MatchInterval <= 0 {
		return fmt.Errorf("matching: match interval must be positive, got %s", c.MatchInterval)
	}
	if c.QueueTimeout <= 0 {
		return fmt.Errorf("matching: queue timeout must be positive, got %s", c.QueueTimeout)
	}
	if _, err := ParseRelayPolicy(string(c.RelayPolicy)); err != nil {
		return err
	}
	return nil
}

// Service is the pairing core. The zero value is not usable; use NewService.
type Service struct {
	mu           sync.Mutex
	participants map[string]*Participant
	queue        *Queue

	config    Config
	sender    Sender
	observers observers
	now       func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a pairing core that delivers outbound events through
// sender and reports transitions to the given observers.
func NewService(config Config, sender Sender, obs ...Observer) *Service {
	return &Service{
		participants: make(map[string]*Participant),
		queue:        NewQueue(),
		config:       config,
		sender:       sender,
		observers:    obs,
		now:          time.Now,
	}
}

// Start runs the matchmaker loop until ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.matchLoop(ctx)
	log.Printf("[matcher] service started (interval=%s, queue_timeout=%s, relay=%s)",
		s.config.MatchInterval, s.config.QueueTimeout, s.config.RelayPolicy)
}

// Stop halts the matchmaker loop and cancels every pending queue deadline.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done

	s.mu.Lock()
	for _, p := range s.participants {
		s.cancelTimeout(p)
	}
	s.mu.Unlock()
	log.Println("[matcher] service stopped")
}

// matchLoop runs Tick on every MatchInterval.
func (s *Service) matchLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.MatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[matcher] match loop stopped")
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick performs one matchmaker pass: it drains the queue, orders the
// candidates by interest overlap and pairs adjacent entries. It returns the
// number of pairings made. An odd survivor goes back to the front of the
// queue with its original wait time.
func (s *Service) Tick() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := s.queue.DrainAll()
	if len(drained) == 0 {
		s.observers.emit(Event{Kind: EventTicked, At: s.now()})
		return 0
	}

	remaining := OrderByCompatibility(drained)
	pairs := 0

	for len(remaining) >= 2 {
		a, b := remaining[0], remaining[1]
		remaining = remaining[2:]

		// Re-check liveness: an entry may have gone stale since it was queued.
		aLive, bLive := s.isQueuedLive(a), s.isQueuedLive(b)
		switch {
		case !aLive && !bLive:
			continue
		case !aLive:
			remaining = append([]*Participant{b}, remaining...)
			continue
		case !bLive:
			remaining = append([]*Participant{a}, remaining...)
			continue
		}

		s.pair(a, b)
		pairs++
	}

	if len(remaining) == 1 && s.isQueuedLive(remaining[0]) {
		s.queue.PushFront(remaining[0])
	}

	s.observers.emit(Event{Kind: EventTicked, QueueLen: s.queue.Len(), At: s.now()})
	if pairs > 0 {
		log.Printf("[matcher] tick paired %d couples (queue size: %d)", pairs, s.queue.Len())
	}
	return pairs
}

// isQueuedLive reports whether p is still the registered participant for its
// id and is waiting for a partner.
func (s *Service) isQueuedLive(p *Participant) bool {
	current, ok := s.participants[p.ID]
	return ok && current == p && p.State == StateQueued
}

// pair links a and b symmetrically, cancels both deadlines and notifies both.
func (s *Service) pair(a, b *Participant) {
	now := s.now()

	s.cancelTimeout(a)
	s.cancelTimeout(b)

	a.State, b.State = StatePaired, StatePaired
	a.PartnerID, b.PartnerID = b.ID, a.ID

	s.publishPaired(a, b)

	queueLen := s.queue.Len()
	s.observers.emit(Event{Kind: EventPaired, ParticipantID: a.ID, PartnerID: b.ID,
		State: a.State.String(), QueueLen: queueLen, Wait: now.Sub(a.EnqueuedAt), At: now})
	s.observers.emit(Event{Kind: EventPaired, ParticipantID: b.ID, PartnerID: a.ID,
		State: b.State.String(), QueueLen: queueLen, Wait: now.Sub(b.EnqueuedAt), At: now})
}

// QueueLen returns the number of participants waiting for a partner.
func (s *Service) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// QueuedIDs returns the waiting participant ids in queue order.
func (s *Service) QueuedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.IDs()
}

// Count returns the number of live participants.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

package matching

import (
	"sync"
	"testing"
	"time"
)

type sentMsg struct {
	to      string
	msgType string
	payload interface{}
}

// recorder is a Sender that keeps every outbound event.
type recorder struct {
	mu   sync.Mutex
	msgs []sentMsg
}

func (r *recorder) Send(participantID string, msgType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sentMsg{to: participantID, msgType: msgType, payload: payload})
}

func (r *recorder) to(id string) []sentMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentMsg
	for _, m := range r.msgs {
		if m.to == id {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) typesTo(id string) []string {
	var types []string
	for _, m := range r.to(id) {
		types = append(types, m.msgType)
	}
	return types
}

func (r *recorder) count(id, msgType string) int {
	n := 0
	for _, m := range r.to(id) {
		if m.msgType == msgType {
			n++
		}
	}
	return n
}

func (r *recorder) last(id string) sentMsg {
	msgs := r.to(id)
	if len(msgs) == 0 {
		return sentMsg{}
	}
	return msgs[len(msgs)-1]
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

// eventLog is an Observer that keeps every lifecycle event.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) kinds(kind EventKind) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func newTestService(t *testing.T, mutate ...func(*Config)) (*Service, *recorder, *eventLog) {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	rec := &recorder{}
	events := &eventLog{}
	svc := NewService(cfg, rec, events)
	t.Cleanup(func() {
		svc.mu.Lock()
		for _, p := range svc.participants {
			svc.cancelTimeout(p)
		}
		svc.mu.Unlock()
	})
	return svc, rec, events
}

func connectAll(t *testing.T, svc *Service, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := svc.Connect(id); err != nil {
			t.Fatalf("connect %s: %v", id, err)
		}
	}
}

func withQueueTimeout(d time.Duration) func(*Config) {
	return func(c *Config) { c.QueueTimeout = d }
}

func withRelayPolicy(p RelayPolicy) func(*Config) {
	return func(c *Config) { c.RelayPolicy = p }
}

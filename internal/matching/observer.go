package matching

import (
	"log"
	"time"
)

// EventKind names a lifecycle transition reported to observers.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventQueued       EventKind = "queued"
	EventPaired       EventKind = "paired"
	EventLeft         EventKind = "left"
	EventTimedOut     EventKind = "timed_out"
	EventDisconnected EventKind = "disconnected"
	EventReported     EventKind = "reported"
	EventRelayed      EventKind = "relayed"
	EventRelayDropped EventKind = "relay_dropped"
	EventInconsistent EventKind = "inconsistent"
	EventTicked       EventKind = "ticked"
)

// Event describes one transition. Fields that do not apply to a kind are
// left zero.
type Event struct {
	Kind          EventKind     `json:"kind"`
	ParticipantID string        `json:"participant_id"`
	PartnerID     string        `json:"partner_id,omitempty"`
	State         string        `json:"state,omitempty"`        // participant state after the transition
	PayloadKind   string        `json:"payload_kind,omitempty"` // relay events
	Reason        string        `json:"reason,omitempty"`
	QueueLen      int           `json:"queue_len"`
	Wait          time.Duration `json:"wait,omitempty"` // time spent queued
	At            time.Time     `json:"at"`
}

// Observer receives lifecycle events. Observe is called while the service
// lock is held, so implementations must return quickly and never call back
// into the Service.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// LogObserver writes every transition to the standard logger.
type LogObserver struct{}

// Observe logs e.
func (LogObserver) Observe(e Event) {
	switch e.Kind {
	case EventConnected:
		log.Printf("[matcher] connected %s", e.ParticipantID)
	case EventQueued:
		log.Printf("[matcher] queued %s (queue size: %d)", e.ParticipantID, e.QueueLen)
	case EventPaired:
		log.Printf("[matcher] paired %s with %s after %s", e.ParticipantID, e.PartnerID, e.Wait.Round(time.Millisecond))
	case EventLeft:
		log.Printf("[matcher] %s left partner=%q state=%s", e.ParticipantID, e.PartnerID, e.State)
	case EventTimedOut:
		log.Printf("[matcher] timeout for %s after %s", e.ParticipantID, e.Wait.Round(time.Second))
	case EventDisconnected:
		log.Printf("[matcher] disconnected %s partner=%q", e.ParticipantID, e.PartnerID)
	case EventReported:
		log.Printf("[matcher] report from %s against %q reason=%q", e.ParticipantID, e.PartnerID, e.Reason)
	case EventRelayDropped:
		log.Printf("[relay] dropped %s from %s to %q: %s", e.PayloadKind, e.ParticipantID, e.PartnerID, e.Reason)
	}
}

type observers []Observer

func (o observers) emit(e Event) {
	for _, obs := range o {
		obs.Observe(e)
	}
}

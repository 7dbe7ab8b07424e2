package messaging

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/whisper/pairing/internal/matching"
)

// DefaultPublishBuffer is how many events may wait for the publisher
// goroutine before new ones are dropped.
const DefaultPublishBuffer = 1024

// Publisher is the subset of NATSClient the event publisher needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// EventPublisher is a matching.Observer that forwards lifecycle events to
// NATS. Observe only enqueues; a single goroutine started by Run does the
// encoding and publishing, so the pairing lock is never held across I/O.
type EventPublisher struct {
	pub     Publisher
	server  string
	events  chan matching.Event
	dropped atomic.Int64
}

// EventEnvelope is the JSON body published for each event.
type EventEnvelope struct {
	Server string         `json:"server"`
	Event  matching.Event `json:"event"`
}

// NewEventPublisher creates a publisher tagging events with the server name.
func NewEventPublisher(pub Publisher, server string, buffer int) *EventPublisher {
	if buffer <= 0 {
		buffer = DefaultPublishBuffer
	}
	return &EventPublisher{
		pub:    pub,
		server: server,
		events: make(chan matching.Event, buffer),
	}
}

// Observe implements matching.Observer. Ticks are not published.
func (p *EventPublisher) Observe(e matching.Event) {
	if e.Kind == matching.EventTicked {
		return
	}
	select {
	case p.events <- e:
	default:
		if p.dropped.Add(1)%100 == 1 {
			log.Printf("[nats] event buffer full, dropped %d events so far", p.dropped.Load())
		}
	}
}

// Dropped returns how many events were discarded on a full buffer.
func (p *EventPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Run publishes queued events until ctx is cancelled, then flushes whatever
// is still buffered.
func (p *EventPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-p.events:
					p.publish(e)
				default:
					return
				}
			}
		case e := <-p.events:
			p.publish(e)
		}
	}
}

func (p *EventPublisher) publish(e matching.Event) {
	data, err := json.Marshal(EventEnvelope{Server: p.server, Event: e})
	if err != nil {
		log.Printf("[nats] marshal %s event: %v", e.Kind, err)
		return
	}
	if err := p.pub.Publish(EventSubject(string(e.Kind)), data); err != nil {
		log.Printf("[nats] publish %s event: %v", e.Kind, err)
	}
}

// SubscribeEvents delivers decoded lifecycle events of the given kind (every
// kind when empty) to handler.
func (c *NATSClient) SubscribeEvents(kind string, handler func(EventEnvelope)) error {
	return c.Subscribe(EventSubject(kind), func(msg *nats.Msg) {
		var env EventEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Printf("[nats] bad event on %s: %v", msg.Subject, err)
			return
		}
		handler(env)
	})
}

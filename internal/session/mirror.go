package session

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/whisper/pairing/internal/matching"
)

// DefaultMirrorBuffer bounds the events waiting to be written to Redis.
const DefaultMirrorBuffer = 4096

// mirrorTimeout caps a single Redis write.
const mirrorTimeout = 2 * time.Second

// Mirror is a matching.Observer that copies presence transitions into a
// Store. Observe never blocks; Run applies the writes in order.
type Mirror struct {
	store   *Store
	events  chan matching.Event
	dropped atomic.Int64
}

// NewMirror creates a Mirror writing to store.
func NewMirror(store *Store, buffer int) *Mirror {
	if buffer <= 0 {
		buffer = DefaultMirrorBuffer
	}
	return &Mirror{store: store, events: make(chan matching.Event, buffer)}
}

// Observe implements matching.Observer.
func (m *Mirror) Observe(e matching.Event) {
	switch e.Kind {
	case matching.EventConnected, matching.EventQueued, matching.EventPaired,
		matching.EventLeft, matching.EventTimedOut, matching.EventDisconnected:
	default:
		return
	}
	select {
	case m.events <- e:
	default:
		if m.dropped.Add(1)%100 == 1 {
			log.Printf("[session] mirror buffer full, dropped %d events so far", m.dropped.Load())
		}
	}
}

// Dropped returns how many events were discarded on a full buffer.
func (m *Mirror) Dropped() int64 {
	return m.dropped.Load()
}

// Run applies buffered events until ctx is cancelled, then drains what is
// left.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-m.events:
					m.apply(e)
				default:
					return
				}
			}
		case e := <-m.events:
			m.apply(e)
		}
	}
}

func (m *Mirror) apply(e matching.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	var err error
	switch e.Kind {
	case matching.EventConnected:
		at := e.At
		if at.IsZero() {
			at = time.Now()
		}
		err = m.store.Create(ctx, e.ParticipantID, at)
	case matching.EventDisconnected:
		err = m.store.Delete(ctx, e.ParticipantID)
		m.releasePartner(ctx, e)
	case matching.EventLeft:
		err = m.store.UpdateState(ctx, e.ParticipantID, e.State, "")
		m.releasePartner(ctx, e)
	case matching.EventPaired:
		err = m.store.UpdateState(ctx, e.ParticipantID, e.State, e.PartnerID)
	default:
		// Queued and timed-out participants have no partner.
		err = m.store.UpdateState(ctx, e.ParticipantID, e.State, "")
	}
	if err != nil {
		log.Printf("[session] mirror %s for %s: %v", e.Kind, e.ParticipantID, err)
	}
}

// releasePartner marks the partner of a participant that left or
// disconnected as idle, since the core emits no event of its own for it.
func (m *Mirror) releasePartner(ctx context.Context, e matching.Event) {
	if e.PartnerID == "" {
		return
	}
	if err := m.store.UpdateState(ctx, e.PartnerID, matching.StateIdle.String(), ""); err != nil {
		log.Printf("[session] mirror release partner %s: %v", e.PartnerID, err)
	}
}

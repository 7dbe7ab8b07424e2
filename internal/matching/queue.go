package matching

import "time"

// Queue is the ordered waiting list of participants seeking a partner.
// Insertion order is the matchmaking tie-break. Queue has no lock of its own:
// it is owned by Service and only touched while Service.mu is held.
type Queue struct {
	entries []*Participant
	index   map[string]struct{}
}

// NewQueue creates an empty waiting queue.
func NewQueue() *Queue {
	return &Queue{index: make(map[string]struct{})}
}

// Enqueue appends p and marks it queued. It returns false without touching p
// if the participant is already waiting.
func (q *Queue) Enqueue(p *Participant, now time.Time) bool {
	if _, ok := q.index[p.ID]; ok {
		return false
	}
	p.State = StateQueued
	p.EnqueuedAt = now
	q.entries = append(q.entries, p)
	q.index[p.ID] = struct{}{}
	return true
}

// PushFront reinserts p at the head of the queue, keeping its EnqueuedAt so
// it retains its wait priority on the next tick.
func (q *Queue) PushFront(p *Participant) bool {
	if _, ok := q.index[p.ID]; ok {
		return false
	}
	p.State = StateQueued
	q.entries = append([]*Participant{p}, q.entries...)
	q.index[p.ID] = struct{}{}
	return true
}

// DrainAll empties the queue and returns its entries in order.
func (q *Queue) DrainAll() []*Participant {
	drained := q.entries
	q.entries = nil
	q.index = make(map[string]struct{})
	return drained
}

// Remove drops the entry for id. Absent ids are ignored.
func (q *Queue) Remove(id string) bool {
	if _, ok := q.index[id]; !ok {
		return false
	}
	delete(q.index, id)
	for i, p := range q.entries {
		if p.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether id is waiting.
func (q *Queue) Contains(id string) bool {
	_, ok := q.index[id]
	return ok
}

// Position returns the 1-based position of id, or 0 if it is not queued.
func (q *Queue) Position(id string) int {
	for i, p := range q.entries {
		if p.ID == id {
			return i + 1
		}
	}
	return 0
}

// Len returns the number of waiting participants.
func (q *Queue) Len() int {
	return len(q.entries)
}

// IDs returns the queued participant ids in order.
func (q *Queue) IDs() []string {
	ids := make([]string, len(q.entries))
	for i, p := range q.entries {
		ids[i] = p.ID
	}
	return ids
}

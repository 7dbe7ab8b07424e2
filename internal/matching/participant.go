package matching

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// DefaultDisplayName is used when a participant requests a chat without a name.
const DefaultDisplayName = "Stranger"

// State is a participant's position in the pairing state machine.
type State int

const (
	StateIdle State = iota
	StateQueued
	StatePaired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQueued:
		return "queued"
	case StatePaired:
		return "paired"
	default:
		return "unknown"
	}
}

// Participant is one live connection and its matchmaking state. All fields
// are guarded by Service.mu; callers outside the package only ever see
// copies returned by Service.Lookup.
type Participant struct {
	ID          string
	DisplayName string
	Interests   []string // normalized, order of first appearance
	State       State
	PartnerID   string    // set iff State == StatePaired
	EnqueuedAt  time.Time // set when entering StateQueued
	ConnectedAt time.Time

	timeout    *time.Timer // pending queue deadline, only while queued
	timeoutGen uint64      // bumped on every arm/cancel
}

func newParticipant(id string, now time.Time) *Participant {
	return &Participant{
		ID:          id,
		DisplayName: DefaultDisplayName,
		State:       StateIdle,
		ConnectedAt: now,
	}
}

// snapshot returns a copy that is safe to hand out without the lock.
func (p *Participant) snapshot() Participant {
	return Participant{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Interests:   append([]string(nil), p.Interests...),
		State:       p.State,
		PartnerID:   p.PartnerID,
		EnqueuedAt:  p.EnqueuedAt,
		ConnectedAt: p.ConnectedAt,
	}
}

// NormalizeInterests trims and lower-cases tags, drops empty ones and removes
// duplicates while keeping the order in which tags first appear.
func NormalizeInterests(interests []string) []string {
	cleaned := lo.FilterMap(interests, func(tag string, _ int) (string, bool) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		return tag, tag != ""
	})
	return lo.Uniq(cleaned)
}

func displayNameOrDefault(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultDisplayName
	}
	return name
}

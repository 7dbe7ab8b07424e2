package main

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"time"

	"github.com/whisper/pairing/internal/matching"
	"github.com/whisper/pairing/internal/metrics"
	"github.com/whisper/pairing/internal/moderation"
	"github.com/whisper/pairing/internal/protocol"
	"github.com/whisper/pairing/internal/ratelimit"
	"github.com/whisper/pairing/internal/ws"
)

// rateLimitNotifier tells a client it has been throttled.
type rateLimitNotifier interface {
	SendRateLimited(conn *ws.Connection, retryAfter int)
}

// handlers turns parsed client messages into pairing core operations.
type handlers struct {
	svc      *matching.Service
	limiter  *ratelimit.Limiter // nil disables rate limiting
	filter   *moderation.Filter
	notifier rateLimitNotifier

	chatRule  ratelimit.Rule
	relayRule ratelimit.Rule
}

// register installs one handler per client message type. Ping is answered by
// the dispatcher itself.
func (h *handlers) register(d *ws.MessageDispatcher) {
	d.Register(protocol.TypeRequestChat, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.RequestChatMsg); ok {
			h.requestChat(conn, m)
		}
	})
	d.Register(protocol.TypeLeave, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.LeaveMsg); ok {
			h.svc.Leave(conn.ID, m.ShouldRequeue())
		}
	})
	d.Register(protocol.TypeReportUser, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.ReportUserMsg); ok {
			h.svc.Report(conn.ID, m.ReportedID, m.Reason)
		}
	})
	d.Register(protocol.TypeOffer, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.OfferMsg); ok {
			h.relay(conn, m.To, matching.KindOffer, m.Offer)
		}
	})
	d.Register(protocol.TypeAnswer, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.AnswerMsg); ok {
			h.relay(conn, m.To, matching.KindAnswer, m.Answer)
		}
	})
	d.Register(protocol.TypeICECandidate, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.ICECandidateMsg); ok {
			h.relay(conn, m.To, matching.KindICECandidate, m.Candidate)
		}
	})
	d.Register(protocol.TypeMessage, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.ChatMsg); ok {
			h.relay(conn, m.Target(), matching.KindMessage, m.Message)
		}
	})
}

func (h *handlers) requestChat(conn *ws.Connection, m protocol.RequestChatMsg) {
	if !h.allow(conn, h.chatRule, "request_chat") {
		return
	}
	name := h.filter.CheckName(m.Name)
	if name == "" && m.Name != "" {
		log.Printf("[moderation] rejected display name from %s", conn.ID)
	}
	h.svc.RequestChat(conn.ID, name, h.filter.CheckInterests(m.Interests))
}

func (h *handlers) relay(conn *ws.Connection, to string, kind matching.PayloadKind, payload json.RawMessage) {
	if !h.allow(conn, h.relayRule, "relay") {
		return
	}
	h.svc.Forward(conn.ID, to, kind, payload)
}

// allow checks rule for the connection and, when the limit is exceeded,
// tells the client how long to back off. Limiter errors fail open.
func (h *handlers) allow(conn *ws.Connection, rule ratelimit.Rule, action string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ok, _ := h.limiter.Allow(ctx, conn.ID, rule)
	if ok {
		return true
	}

	metrics.RateLimitedTotal.WithLabelValues(action).Inc()
	wait, err := h.limiter.RetryAfter(ctx, conn.ID, rule)
	if err != nil || wait <= 0 {
		wait = rule.Window
	}
	h.notifier.SendRateLimited(conn, int(math.Ceil(wait.Seconds())))
	return false
}

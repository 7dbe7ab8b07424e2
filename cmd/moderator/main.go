// Command moderator follows pairing events published by every pairing server
// and logs reports and broken pairings for human review, enriched with the
// reported participant's live presence from Redis.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/whisper/pairing/internal/config"
	"github.com/whisper/pairing/internal/matching"
	"github.com/whisper/pairing/internal/messaging"
	"github.com/whisper/pairing/internal/session"
)

// presenceLookup is the subset of session.Store the moderator reads.
type presenceLookup interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
}

func main() {
	log.Println("Starting Whisper moderation service...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if cfg.NATSURL == "" {
		log.Fatalf("NATS_URL is required")
	}

	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "whisper-moderator"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	var presence presenceLookup
	if cfg.RedisAddr != "" {
		store, err := session.NewStore(cfg.RedisAddr, "moderator")
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		defer store.Close()
		presence = store
	}

	handle := func(env messaging.EventEnvelope) {
		log.Print(describe(context.Background(), env, presence))
	}
	for _, kind := range []matching.EventKind{matching.EventReported, matching.EventInconsistent} {
		if err := natsClient.SubscribeEvents(string(kind), handle); err != nil {
			log.Fatalf("failed to subscribe to %s events: %v", kind, err)
		}
	}

	log.Printf("Whisper moderation service running")
	log.Printf("  nats_url:   %s", natsConfig.URL)
	log.Printf("  redis_addr: %q", cfg.RedisAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()
}

// describe renders one event as a review log line.
func describe(ctx context.Context, env messaging.EventEnvelope, presence presenceLookup) string {
	e := env.Event
	switch e.Kind {
	case matching.EventReported:
		return fmt.Sprintf("[moderator] REPORT server=%s reporter=%s (%s) reported=%q reason=%q %s",
			env.Server, e.ParticipantID, e.State, e.PartnerID, e.Reason, lookup(ctx, presence, e.PartnerID))
	case matching.EventInconsistent:
		return fmt.Sprintf("[moderator] INCONSISTENT server=%s participant=%s partner=%q: %s",
			env.Server, e.ParticipantID, e.PartnerID, e.Reason)
	default:
		return fmt.Sprintf("[moderator] %s server=%s participant=%s", e.Kind, env.Server, e.ParticipantID)
	}
}

func lookup(ctx context.Context, presence presenceLookup, id string) string {
	if presence == nil || id == "" {
		return "presence=unknown"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	sess, err := presence.Get(ctx, id)
	switch {
	case err != nil:
		return fmt.Sprintf("presence=error(%v)", err)
	case sess == nil:
		return "presence=offline"
	default:
		return fmt.Sprintf("presence=%s partner=%q server=%s", sess.State, sess.PartnerID, sess.Server)
	}
}

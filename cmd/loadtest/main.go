// Command loadtest drives a pairing server with simulated participants. Each
// client connects, requests a chat, completes an offer/answer exchange with
// whoever it is paired with and leaves.
//
// Usage:
//
//	loadtest -url ws://localhost:8080/ws -clients 1000 -concurrency 200
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/whisper/pairing/internal/protocol"
)

var interestPool = []string{"music", "movies", "go", "rust", "gaming", "hiking", "anime", "cooking"}

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "WebSocket endpoint")
	clients := flag.Int("clients", 100, "number of simulated participants")
	concurrency := flag.Int("concurrency", 50, "clients running at once")
	timeout := flag.Duration("timeout", 30*time.Second, "per-client deadline")
	interests := flag.Int("interests", 2, "random interests per client")
	flag.Parse()

	if *clients <= 0 || *concurrency <= 0 {
		log.Fatalf("clients and concurrency must be positive")
	}

	stats := newCollector()
	sem := make(chan struct{}, *concurrency)
	var wg sync.WaitGroup

	for i := 0; i < *clients; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem; wg.Done() }()

			ctx, cancel := context.WithTimeout(context.Background(), *timeout)
			defer cancel()
			stats.count(runClient(ctx, *url, pickInterests(*interests), stats))
		}()
	}

	wg.Wait()
	stats.report(os.Stdout)
}

func pickInterests(n int) []string {
	perm := rand.Perm(len(interestPool))
	out := make([]string, 0, n)
	for _, i := range perm[:min(n, len(perm))] {
		out = append(out, interestPool[i])
	}
	return out
}

// runClient plays one participant through a full pairing and returns the
// outcome name.
func runClient(ctx context.Context, url string, interests []string, stats *collector) string {
	c, connectLatency, err := dial(ctx, url)
	if err != nil {
		log.Printf("[loadtest] %v", err)
		return "dial_error"
	}
	defer c.close()
	stats.observe("connect", connectLatency)

	requested := time.Now()
	if err := c.send(protocol.TypeRequestChat, protocol.RequestChatMsg{Name: "load-" + c.id[:min(8, len(c.id))], Interests: interests}); err != nil {
		return "send_error"
	}

	f, err := c.await(ctx, protocol.TypePaired)
	if err != nil {
		return "unpaired"
	}
	stats.observe("paired", f.At.Sub(requested))

	var paired protocol.PairedMsg
	if err := json.Unmarshal(f.Raw, &paired); err != nil {
		return "decode_error"
	}

	// The lower id offers, the other side answers.
	signaled := time.Now()
	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	if c.id < paired.PartnerID {
		if err := c.send(protocol.TypeOffer, protocol.OfferMsg{To: paired.PartnerID, Offer: offer}); err != nil {
			return "send_error"
		}
		if _, err := c.await(ctx, protocol.TypeAnswer); err != nil {
			return "no_answer"
		}
	} else {
		if _, err := c.await(ctx, protocol.TypeOffer); err != nil {
			return "no_offer"
		}
		if err := c.send(protocol.TypeAnswer, protocol.AnswerMsg{To: paired.PartnerID, Answer: answer}); err != nil {
			return "send_error"
		}
	}
	stats.observe("signaling", time.Since(signaled))

	requeue := false
	if err := c.send(protocol.TypeLeave, protocol.LeaveMsg{Requeue: &requeue}); err != nil {
		return "send_error"
	}
	return "completed"
}

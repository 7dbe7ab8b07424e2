package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"time"
)

// collector aggregates latencies and outcomes from every simulated client.
type collector struct {
	mu        sync.Mutex
	latencies map[string][]time.Duration // by phase
	outcomes  map[string]int
	start     time.Time
}

func newCollector() *collector {
	return &collector{
		latencies: make(map[string][]time.Duration),
		outcomes:  make(map[string]int),
		start:     time.Now(),
	}
}

func (c *collector) observe(phase string, d time.Duration) {
	c.mu.Lock()
	c.latencies[phase] = append(c.latencies[phase], d)
	c.mu.Unlock()
}

func (c *collector) count(outcome string) {
	c.mu.Lock()
	c.outcomes[outcome]++
	c.mu.Unlock()
}

// phases in report order.
var phases = []string{"connect", "paired", "signaling"}

func (c *collector) report(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(w, "\n=== Pairing Load Test Results ===")
	fmt.Fprintf(w, "Duration:  %s\n", time.Since(c.start).Round(time.Millisecond))

	names := make([]string, 0, len(c.outcomes))
	for name := range c.outcomes {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "%-10s %d\n", name+":", c.outcomes[name])
	}

	for _, phase := range phases {
		if ds := c.latencies[phase]; len(ds) > 0 {
			fmt.Fprintf(w, "\n--- %s latency ---\n", phase)
			fmt.Fprintln(w, " ", summarize(ds))
		}
	}
	fmt.Fprintln(w)
}

// summarize sorts durations in place and formats avg, p50, p95, p99 and max.
func summarize(durations []time.Duration) string {
	slices.Sort(durations)
	n := len(durations)

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	pct := func(p float64) time.Duration {
		return durations[int(math.Ceil(float64(n)*p))-1]
	}

	return fmt.Sprintf("avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)",
		(sum / time.Duration(n)).Round(time.Microsecond),
		pct(0.50).Round(time.Microsecond),
		pct(0.95).Round(time.Microsecond),
		pct(0.99).Round(time.Microsecond),
		durations[n-1].Round(time.Microsecond),
		n)
}

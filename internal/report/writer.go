package report

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/whisper/pairing/internal/matching"
)

const (
	// DefaultWriterBuffer bounds reports waiting to be written.
	DefaultWriterBuffer = 256

	// FlagWindow and FlagThreshold decide when a reported participant is
	// logged for moderator attention.
	FlagWindow    = 24 * time.Hour
	FlagThreshold = 3

	writeTimeout = 5 * time.Second
)

// Recorder is the subset of Store the Writer needs.
type Recorder interface {
	Create(ctx context.Context, report *Report) error
	CountRecent(ctx context.Context, reportedID string, window time.Duration) (int, error)
}

// Writer is a matching.Observer that persists reported events. Observe only
// enqueues; Run does the database work.
type Writer struct {
	rec     Recorder
	server  string
	reports chan *Report
	dropped atomic.Int64
	written atomic.Int64
}

// NewWriter creates a Writer tagging reports with the server name.
func NewWriter(rec Recorder, server string, buffer int) *Writer {
	if buffer <= 0 {
		buffer = DefaultWriterBuffer
	}
	return &Writer{rec: rec, server: server, reports: make(chan *Report, buffer)}
}

// Observe implements matching.Observer.
func (w *Writer) Observe(e matching.Event) {
	if e.Kind != matching.EventReported {
		return
	}
	reason, details := Classify(e.Reason)
	r := &Report{
		ReporterID:    e.ParticipantID,
		ReportedID:    e.PartnerID,
		Reason:        reason,
		Details:       details,
		ReporterState: e.State,
		Server:        w.server,
	}
	select {
	case w.reports <- r:
	default:
		w.dropped.Add(1)
		log.Printf("[report] buffer full, dropped report from %s", e.ParticipantID)
	}
}

// Dropped returns how many reports were discarded on a full buffer.
func (w *Writer) Dropped() int64 { return w.dropped.Load() }

// Written returns how many reports were stored.
func (w *Writer) Written() int64 { return w.written.Load() }

// Run writes queued reports until ctx is cancelled, then drains the buffer.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case r := <-w.reports:
					w.write(r)
				default:
					return
				}
			}
		case r := <-w.reports:
			w.write(r)
		}
	}
}

func (w *Writer) write(r *Report) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := w.rec.Create(ctx, r); err != nil {
		log.Printf("[report] store report from %s: %v", r.ReporterID, err)
		return
	}
	w.written.Add(1)

	if r.ReportedID == "" {
		return
	}
	n, err := w.rec.CountRecent(ctx, r.ReportedID, FlagWindow)
	if err != nil {
		log.Printf("[report] count reports against %s: %v", r.ReportedID, err)
		return
	}
	if n >= FlagThreshold {
		log.Printf("[report] %s reported %d times in %s, flagging for review", r.ReportedID, n, FlagWindow)
	}
}

package report

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whisper/pairing/internal/matching"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		raw     string
		reason  string
		details string
	}{
		{"spam", "spam", ""},
		{"  Harassment ", "harassment", ""},
		{"", "other", ""},
		{"kept asking for my number", "other", "kept asking for my number"},
		{strings.Repeat("é", MaxDetailsLength+10), "other", strings.Repeat("é", MaxDetailsLength)},
	}

	for _, tt := range tests {
		reason, details := Classify(tt.raw)
		if reason != tt.reason || details != tt.details {
			t.Errorf("Classify(%q) = (%q, %q), want (%q, %q)", tt.raw, reason, details, tt.reason, tt.details)
		}
	}
}

type fakeRecorder struct {
	mu      sync.Mutex
	reports []*Report
	count   int
	err     error
}

func (f *fakeRecorder) Create(_ context.Context, r *Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeRecorder) CountRecent(context.Context, string, time.Duration) (int, error) {
	return f.count, nil
}

func (f *fakeRecorder) all() []*Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Report(nil), f.reports...)
}

func TestWriter_PersistsReportedEvents(t *testing.T) {
	req := require.New(t)
	rec := &fakeRecorder{count: FlagThreshold}
	w := NewWriter(rec, "ws-1", 8)

	// Given a paired reporter filing a free-text report
	w.Observe(matching.Event{Kind: matching.EventReported, ParticipantID: "a", PartnerID: "b",
		State: "paired", Reason: "rude"})
	w.Observe(matching.Event{Kind: matching.EventPaired, ParticipantID: "a", PartnerID: "b"})

	// When the writer drains
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	// Then one classified report is stored
	got := rec.all()
	req.Len(got, 1)
	req.Equal(&Report{ReporterID: "a", ReportedID: "b", Reason: "other", Details: "rude",
		ReporterState: "paired", Server: "ws-1"}, got[0])
	req.EqualValues(1, w.Written())
}

func TestWriter_StoreErrorAndFullBuffer(t *testing.T) {
	req := require.New(t)
	rec := &fakeRecorder{err: errors.New("db down")}
	w := NewWriter(rec, "ws-1", 1)

	w.Observe(matching.Event{Kind: matching.EventReported, ParticipantID: "a", Reason: "spam"})
	w.Observe(matching.Event{Kind: matching.EventReported, ParticipantID: "a", Reason: "spam"})
	req.EqualValues(1, w.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)
	req.Zero(w.Written())
}

func TestStore_Postgres(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	req := require.New(t)
	ctx := context.Background()

	store, err := Open(ctx, url)
	req.NoError(err)
	defer store.Close()

	// Migrations are idempotent.
	req.NoError(Migrate(url))

	reported := "it-" + time.Now().Format("150405.000000000")
	for i := 0; i < 2; i++ {
		req.NoError(store.Create(ctx, &Report{ReporterID: "r", ReportedID: reported, Reason: "spam", Server: "ws-it"}))
	}

	n, err := store.CountRecent(ctx, reported, time.Hour)
	req.NoError(err)
	req.Equal(2, n)

	err = store.Create(ctx, &Report{ReporterID: "r", Reason: "bogus"})
	req.ErrorIs(err, ErrInvalidReason)
}

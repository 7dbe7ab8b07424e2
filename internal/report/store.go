// Package report persists participant reports to PostgreSQL for moderator
// review. Reports never affect pairing; they are written off the hot path by
// a Writer fed from pairing events.
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// MaxDetailsLength caps the free-text part of a report.
const MaxDetailsLength = 256

// ErrInvalidReason is returned when a report carries a reason the
// pairing_reports CHECK constraint rejects.
var ErrInvalidReason = errors.New("report: invalid reason")

// validReasons is the set of allowed reason values, matching the CHECK
// constraint on the pairing_reports table.
var validReasons = map[string]bool{
	"harassment": true,
	"spam":       true,
	"explicit":   true,
	"other":      true,
}

// Report is a single participant report to be persisted.
type Report struct {
	ReporterID    string
	ReportedID    string // empty when the reporter had no partner
	Reason        string // one of the valid reasons
	Details       string // free text supplied by the reporter
	ReporterState string // reporter's pairing state when it filed
	Server        string
}

// Classify maps a raw client-supplied reason onto a stored reason and free
// text details. Known reasons are kept; anything else is filed as "other"
// with the raw text (truncated) as details.
func Classify(raw string) (reason, details string) {
	trimmed := strings.TrimSpace(raw)
	if lower := strings.ToLower(trimmed); validReasons[lower] {
		return lower, ""
	}
	if r := []rune(trimmed); len(r) > MaxDetailsLength {
		trimmed = string(r[:MaxDetailsLength])
	}
	return "other", trimmed
}

// Store manages reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL, applies pending migrations and returns a
// ready store.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if err := Migrate(databaseURL); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("report: open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: ping: %w", err)
	}
	return NewStore(db), nil
}

// Create inserts a report.
func (s *Store) Create(ctx context.Context, report *Report) error {
	if !validReasons[report.Reason] {
		return fmt.Errorf("%w: %q", ErrInvalidReason, report.Reason)
	}

	const query = `
		INSERT INTO pairing_reports (reporter_id, reported_id, reason, details, reporter_state, server)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		report.ReporterID,
		report.ReportedID,
		report.Reason,
		report.Details,
		report.ReporterState,
		report.Server,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "check_violation" {
			return fmt.Errorf("%w: %q", ErrInvalidReason, report.Reason)
		}
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of reports filed against reportedID within
// the given window.
func (s *Store) CountRecent(ctx context.Context, reportedID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM pairing_reports
		WHERE reported_id = $1
		  AND created_at >= NOW() - make_interval(secs => $2)`

	var count int
	err := s.db.QueryRowContext(ctx, query, reportedID, window.Seconds()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("report: count recent: %w", err)
	}
	return count, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

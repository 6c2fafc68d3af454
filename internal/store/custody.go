package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"evidencevault/internal/models"
)

const custodyColumns = "event_id, evidence_id, sequence, action, outcome, actor_id, actor_role, client_origin, reason, timestamp, prev_hash, event_hash"

const (
	defaultEventPageSize = 100
	maxEventPageSize     = 1000
)

// EventPage is one page of an item's custody trail in sequence order.
type EventPage struct {
	Events    []models.CustodyEvent `json:"events"`
	NextAfter int64                 `json:"next_after,omitempty"`
	HasMore   bool                  `json:"has_more"`
}

// ChainReport is the result of recomputing an item's custody hash chain.
type ChainReport struct {
	EvidenceID string `json:"evidence_id"`
	Events     int    `json:"events"`
	Valid      bool   `json:"valid"`
	HeadHash   string `json:"head_hash,omitempty"`
	BrokenAt   int64  `json:"broken_at,omitempty"`
	Problem    string `json:"problem,omitempty"`
}

// AppendEvent assigns the event id, sequence, timestamp and chain hashes,
// then inserts the event. The item must exist; tombstones accept events.
func (t *sqlTx) AppendEvent(ctx context.Context, event *models.CustodyEvent) error {
	if event == nil {
		return fmt.Errorf("custody event is required")
	}
	if !models.IsValidAction(event.Action) {
		return fmt.Errorf("invalid custody action: %s", event.Action)
	}
	if event.Outcome == "" {
		event.Outcome = models.OutcomeSucceeded
	}
	if !models.IsValidOutcome(event.Outcome) {
		return fmt.Errorf("invalid custody outcome: %s", event.Outcome)
	}
	if strings.TrimSpace(event.ActorID) == "" {
		return fmt.Errorf("actor id is required")
	}

	exists, err := evidenceExists(ctx, t.tx, event.EvidenceID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, event.EvidenceID)
	}

	var lastSeq int64
	var lastHash, lastTS string
	err = t.tx.QueryRowContext(ctx,
		`SELECT sequence, event_hash, timestamp FROM custody_events WHERE evidence_id = ? ORDER BY sequence DESC LIMIT 1`,
		event.EvidenceID).Scan(&lastSeq, &lastHash, &lastTS)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	ts := time.Now().UTC()
	if lastTS != "" {
		prev, err := dbParseTime(lastTS)
		if err != nil {
			return err
		}
		// Timestamps never go backwards within one trail, even if the wall clock does.
		if ts.Before(prev) {
			ts = prev
		}
	}

	event.EventID = uuid.NewString()
	event.Sequence = lastSeq + 1
	event.Timestamp = ts
	event.PrevHash = lastHash
	event.EventHash = ComputeEventHash(event)

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO custody_events (`+custodyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID,
		event.EvidenceID,
		event.Sequence,
		string(event.Action),
		string(event.Outcome),
		event.ActorID,
		event.ActorRole,
		nullString(event.ClientOrigin),
		nullString(event.Reason),
		dbFormatTime(event.Timestamp),
		nullString(event.PrevHash),
		event.EventHash,
	)
	return err
}

// AppendEvent appends one event in its own transaction.
func (s *Store) AppendEvent(ctx context.Context, event *models.CustodyEvent) error {
	return s.WithTx(ctx, func(tx Tx) error {
		return tx.AppendEvent(ctx, event)
	})
}

// ListEvents returns events with sequence greater than afterSequence, in order.
func (s *Store) ListEvents(ctx context.Context, evidenceID string, afterSequence int64, limit int) (*EventPage, error) {
	if limit <= 0 {
		limit = defaultEventPageSize
	}
	if limit > maxEventPageSize {
		limit = maxEventPageSize
	}
	if afterSequence < 0 {
		afterSequence = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+custodyColumns+` FROM custody_events WHERE evidence_id = ? AND sequence > ? ORDER BY sequence ASC LIMIT ?`,
		evidenceID, afterSequence, limit+1)
	if err != nil {
		return nil, err
	}
	events, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}

	page := &EventPage{Events: events}
	if len(events) > limit {
		page.Events = events[:limit]
		page.HasMore = true
		page.NextAfter = page.Events[limit-1].Sequence
	}
	return page, nil
}

// VerifyChain walks the full trail and checks sequence continuity, prev
// links and each event's own hash. The first failure stops the walk.
func (s *Store) VerifyChain(ctx context.Context, evidenceID string) (*ChainReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+custodyColumns+` FROM custody_events WHERE evidence_id = ? ORDER BY sequence ASC`,
		evidenceID)
	if err != nil {
		return nil, err
	}
	events, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}

	report := &ChainReport{EvidenceID: evidenceID, Events: len(events), Valid: true}
	prevHash := ""
	for i := range events {
		ev := &events[i]
		want := int64(i + 1)
		switch {
		case ev.Sequence != want:
			report.fail(want, fmt.Sprintf("expected sequence %d, found %d", want, ev.Sequence))
		case ev.PrevHash != prevHash:
			report.fail(ev.Sequence, "prev_hash does not link to previous event")
		case ComputeEventHash(ev) != ev.EventHash:
			report.fail(ev.Sequence, "event_hash does not match event contents")
		}
		if !report.Valid {
			return report, nil
		}
		prevHash = ev.EventHash
	}
	report.HeadHash = prevHash
	return report, nil
}

func (r *ChainReport) fail(seq int64, problem string) {
	r.Valid = false
	r.BrokenAt = seq
	r.Problem = problem
}

// ComputeEventHash returns the hex sha256 binding an event to its predecessor.
func ComputeEventHash(ev *models.CustodyEvent) string {
	fields := []string{
		ev.PrevHash,
		ev.EvidenceID,
		strconv.FormatInt(ev.Sequence, 10),
		string(ev.Action),
		string(ev.Outcome),
		ev.ActorID,
		ev.ActorRole,
		ev.ClientOrigin,
		ev.Reason,
		dbFormatTime(ev.Timestamp),
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}

func collectEvents(rows *sql.Rows) ([]models.CustodyEvent, error) {
	defer rows.Close()

	events := []models.CustodyEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func scanEvent(scanner interface {
	Scan(dest ...any) error
}) (*models.CustodyEvent, error) {
	ev := models.CustodyEvent{}
	var action, outcome, ts string
	var origin, reason, prevHash sql.NullString

	err := scanner.Scan(
		&ev.EventID,
		&ev.EvidenceID,
		&ev.Sequence,
		&action,
		&outcome,
		&ev.ActorID,
		&ev.ActorRole,
		&origin,
		&reason,
		&ts,
		&prevHash,
		&ev.EventHash,
	)
	if err != nil {
		return nil, err
	}

	ev.Action = models.Action(action)
	ev.Outcome = models.Outcome(outcome)
	ev.ClientOrigin = origin.String
	ev.Reason = reason.String
	ev.PrevHash = prevHash.String
	if ev.Timestamp, err = dbParseTime(ts); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Package journal keeps a local record of what happened to each print job.
// It is diagnostic only; nothing is ever replayed from it.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal result of one job within a poll cycle.
type Outcome string

const (
	Printed      Outcome = "printed"
	DecodeFailed Outcome = "decode_failed"
	WriteFailed  Outcome = "write_failed"
	AckFailed    Outcome = "ack_failed"
)

// Entry is one journal row.
type Entry struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	PrinterID  string    `json:"printer_id"`
	Outcome    Outcome   `json:"outcome"`
	Bytes      int       `json:"bytes"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Fixed width so recorded_at sorts and compares as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Journal struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Record appends e, filling in the id and timestamp when empty.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.JobID == "" {
		return fmt.Errorf("journal entry has no job id")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = j.now()
	}

	var errText any
	if e.Error != "" {
		errText = e.Error
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO job_journal(id, job_id, printer_id, outcome, bytes, error, recorded_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.JobID, e.PrinterID, string(e.Outcome), e.Bytes, errText, e.RecordedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, job_id, printer_id, outcome, bytes, error, recorded_at
FROM job_journal
ORDER BY recorded_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			outcome  string
			errText  sql.NullString
			recorded string
		)
		if err := rows.Scan(&e.ID, &e.JobID, &e.PrinterID, &outcome, &e.Bytes, &errText, &recorded); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Outcome = Outcome(outcome)
		e.Error = errText.String
		if e.RecordedAt, err = time.Parse(timeLayout, recorded); err != nil {
			return nil, fmt.Errorf("parse recorded_at %q: %w", recorded, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries older than retention and reports how many went.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := j.now().Add(-retention).UTC().Format(timeLayout)
	res, err := j.db.ExecContext(ctx, "DELETE FROM job_journal WHERE recorded_at < ?;", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return res.RowsAffected()
}

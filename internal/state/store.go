package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

// DefaultMaxStateBytes caps a single named blob.
const DefaultMaxStateBytes = 64 << 10

// Store keeps small JSON objects keyed by name (for example the runtime
// intervals an operator changed from the console).
type Store struct {
	db       *sql.DB
	maxBytes int
	now      func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		maxBytes: DefaultMaxStateBytes,
		now:      time.Now,
	}
}

// Get returns the stored object for name, or {} if missing.
func (s *Store) Get(ctx context.Context, name string) (json.RawMessage, error) {
	if name == "" {
		return nil, fmt.Errorf("state name is empty")
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT state FROM bridge_state WHERE name = ?;", name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return json.RawMessage(`{}`), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %q: %w", name, err)
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("stored state %q is invalid JSON", name)
	}
	return json.RawMessage(raw), nil
}

// ShallowMerge replaces the top-level keys in updates and persists the result.
func (s *Store) ShallowMerge(ctx context.Context, name string, updates json.RawMessage) (json.RawMessage, error) {
	if name == "" {
		return nil, fmt.Errorf("state name is empty")
	}

	upd, err := decodeObjectOrEmpty(updates)
	if err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var curRaw string
	err = tx.QueryRowContext(ctx, "SELECT state FROM bridge_state WHERE name = ?;", name).Scan(&curRaw)
	if errors.Is(err, sql.ErrNoRows) {
		curRaw = "{}"
	} else if err != nil {
		return nil, fmt.Errorf("read state %q: %w", name, err)
	}

	cur, err := decodeObjectOrEmpty(json.RawMessage(curRaw))
	if err != nil {
		return nil, fmt.Errorf("decode stored state: %w", err)
	}
	maps.Copy(cur, upd)

	merged, err := json.Marshal(cur)
	if err != nil {
		return nil, fmt.Errorf("marshal merged state: %w", err)
	}
	if len(merged) > s.maxBytes {
		return nil, fmt.Errorf("state %q exceeds max size (%d bytes)", name, s.maxBytes)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO bridge_state(name, state, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
  state = excluded.state,
  updated_at = excluded.updated_at;
`, name, string(merged), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("upsert state %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return json.RawMessage(merged), nil
}

func decodeObjectOrEmpty(b json.RawMessage) (map[string]json.RawMessage, error) {
	if len(b) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	return m, nil
}

// Package cache is an opt-in, TTL-bound store for rendered profile
// responses. Profiles are always recomputed once an entry expires; nothing
// in the retrieval or aggregation core depends on it.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const DefaultTTL = time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS responses (
	query      TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

type Store struct {
	db  *sqlx.DB
	ttl time.Duration
}

func Open(path string, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func normalizeKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Get returns the cached payload for a query if it is still within the TTL.
// Expired rows are deleted on the way out.
func (s *Store) Get(query string) ([]byte, bool, error) {
	key := normalizeKey(query)
	var row struct {
		Payload   string `db:"payload"`
		CreatedAt string `db:"created_at"`
	}
	err := s.db.Get(&row, `SELECT payload, created_at FROM responses WHERE query = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	created, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil || time.Since(created) > s.ttl {
		_, _ = s.db.Exec(`DELETE FROM responses WHERE query = ?`, key)
		return nil, false, nil
	}
	return []byte(row.Payload), true, nil
}

func (s *Store) Put(query string, payload []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO responses (query, payload, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(query) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`,
		normalizeKey(query), string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

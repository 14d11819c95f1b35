// internal/storage/auditdb/auditdb.go
package auditdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Corphon/SoloRealmMCP/internal/dice"
	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed audit archive. Every dice roll and every
// adjudication entry is appended here for post-session review. The archive
// is advisory; losing it never corrupts a save.
type Store struct {
	sqlDB *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS rolls (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session    TEXT NOT NULL,
	game_date  TEXT NOT NULL,
	expression TEXT NOT NULL,
	faces      TEXT NOT NULL,
	modifier   INTEGER NOT NULL DEFAULT 0,
	total      INTEGER NOT NULL,
	label      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rolls_session ON rolls(session);

CREATE TABLE IF NOT EXISTS adjudications (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session    TEXT NOT NULL,
	game_date  TEXT NOT NULL,
	kind       TEXT NOT NULL,
	entry      TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_adjudications_session ON adjudications(session);
`

// Open opens and migrates the audit archive at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit db path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordRoll archives one dice roll.
func (s *Store) RecordRoll(ctx context.Context, session, gameDate string, roll dice.Roll) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("audit store is not configured")
	}

	faces, err := json.Marshal(roll.Faces)
	if err != nil {
		return fmt.Errorf("marshal faces: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO rolls (session, game_date, expression, faces, modifier, total, label, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session, gameDate, roll.Expression, string(faces), roll.Modifier, roll.Total, roll.Label,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert roll: %w", err)
	}
	return nil
}

// RecordAdjudication archives one adjudication log entry.
func (s *Store) RecordAdjudication(ctx context.Context, session, gameDate, kind, entry string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("audit store is not configured")
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO adjudications (session, game_date, kind, entry, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		session, gameDate, kind, entry, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert adjudication: %w", err)
	}
	return nil
}

// RollRecord is one archived roll.
type RollRecord struct {
	ID         int64  `json:"id"`
	Session    string `json:"session"`
	GameDate   string `json:"game_date"`
	Expression string `json:"expression"`
	Faces      []int  `json:"faces"`
	Modifier   int    `json:"modifier"`
	Total      int    `json:"total"`
	Label      string `json:"label,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// RecentRolls returns up to limit archived rolls for a session, newest
// first. An empty session matches every session.
func (s *Store) RecentRolls(ctx context.Context, session string, limit int) ([]RollRecord, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("audit store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, session, game_date, expression, faces, modifier, total, label, created_at
		 FROM rolls ORDER BY id DESC LIMIT ?`
	args := []any{limit}
	if session != "" {
		query = `SELECT id, session, game_date, expression, faces, modifier, total, label, created_at
		 FROM rolls WHERE session = ? ORDER BY id DESC LIMIT ?`
		args = []any{session, limit}
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rolls: %w", err)
	}
	defer rows.Close()

	var out []RollRecord
	for rows.Next() {
		var rec RollRecord
		var faces string
		if err := rows.Scan(&rec.ID, &rec.Session, &rec.GameDate, &rec.Expression,
			&faces, &rec.Modifier, &rec.Total, &rec.Label, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan roll: %w", err)
		}
		if err := json.Unmarshal([]byte(faces), &rec.Faces); err != nil {
			rec.Faces = nil
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AdjudicationRecord is one archived adjudication entry.
type AdjudicationRecord struct {
	ID        int64  `json:"id"`
	Session   string `json:"session"`
	GameDate  string `json:"game_date"`
	Kind      string `json:"kind"`
	Entry     string `json:"entry"`
	CreatedAt int64  `json:"created_at"`
}

// RecentAdjudications returns up to limit archived adjudication entries
// for a session, newest first. An empty session matches every session.
func (s *Store) RecentAdjudications(ctx context.Context, session string, limit int) ([]AdjudicationRecord, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("audit store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, session, game_date, kind, entry, created_at
		 FROM adjudications ORDER BY id DESC LIMIT ?`
	args := []any{limit}
	if session != "" {
		query = `SELECT id, session, game_date, kind, entry, created_at
		 FROM adjudications WHERE session = ? ORDER BY id DESC LIMIT ?`
		args = []any{session, limit}
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query adjudications: %w", err)
	}
	defer rows.Close()

	var out []AdjudicationRecord
	for rows.Next() {
		var rec AdjudicationRecord
		if err := rows.Scan(&rec.ID, &rec.Session, &rec.GameDate, &rec.Kind,
			&rec.Entry, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan adjudication: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

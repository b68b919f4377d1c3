package adminlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lotuscatalog/curator/pkg/database"
	"github.com/lotuscatalog/curator/pkg/logging"
)

// Admin action types recorded in the audit log.
const (
	ActionFunctionCall    = "FUNCTION_CALL"
	ActionFunctionSuccess = "FUNCTION_SUCCESS"
	ActionFunctionError   = "FUNCTION_ERROR"
	ActionCheckDuplicate  = "CHECK_DUPLICATE"
)

// Entry is one audit record.
type Entry struct {
	ID         string                 `json:"id"`
	Action     string                 `json:"action"`
	AdminEmail string                 `json:"admin_email"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Recorder persists audit entries. The Kafka mirror sits behind the same
// interface so callers never block on the broker.
type Recorder interface {
	Record(ctx context.Context, action, adminEmail string, metadata map[string]interface{})
}

// Store writes audit entries to Postgres.
type Store struct {
	db     database.PostgresConn
	logger logging.Logger
}

func NewStore(db database.PostgresConn, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Insert writes one audit entry.
func (s *Store) Insert(ctx context.Context, action, adminEmail string, metadata map[string]interface{}) error {
	var meta interface{}
	if metadata != nil {
		payload, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("admin log: marshal metadata: %w", err)
		}
		meta = payload
	}

	query := `INSERT INTO admin_actions (action, admin_email, metadata) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, query, action, adminEmail, meta); err != nil {
		return fmt.Errorf("admin log: insert: %w", err)
	}
	return nil
}

// Recent lists the newest audit entries.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, action, admin_email, metadata, created_at FROM admin_actions ORDER BY created_at DESC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("admin log: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.Action, &e.AdminEmail, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("admin log: scan: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				s.logger.WithError(err).WithField("entry_id", e.ID).Warn("Undecodable admin action metadata")
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

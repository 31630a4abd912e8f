// Package sqldb is the SQL activity journal. It runs on SQLite
// (modernc.org/sqlite) and PostgreSQL (github.com/lib/pq).
package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/steelflow/internal/core/domain"
	"github.com/tjfontaine/steelflow/internal/core/ports"
	"github.com/tjfontaine/steelflow/internal/storage/dialect"
)

// Store is a SQL implementation of ports.ActivityStore that supports
// multiple database dialects.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var _ ports.ActivityStore = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// New opens the journal database and creates its schema.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewSQLite opens a SQLite journal at path.
func NewSQLite(path string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: path})
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *Store) initSchema() error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS activity (
	id TEXT PRIMARY KEY,
	connection_id TEXT NOT NULL,
	redline_id TEXT NOT NULL DEFAULT '',
	event_type TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	created_at %s NOT NULL
)`, s.dialect.TimestampType()),
		`CREATE INDEX IF NOT EXISTS idx_activity_connection ON activity(connection_id, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AppendActivity inserts rec, assigning an ID and timestamp when missing.
func (s *Store) AppendActivity(ctx context.Context, rec *domain.ActivityRecord) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate activity id: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	query := s.dialect.Rebind(`INSERT INTO activity
	(id, connection_id, redline_id, event_type, outcome, error_kind, message, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.ConnectionID, rec.RedlineID, string(rec.EventType), string(rec.Outcome),
		string(rec.ErrorKind), rec.Message, rec.Status, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// ListActivity returns a connection's records oldest first. With a limit, only
// the most recent records are returned.
func (s *Store) ListActivity(ctx context.Context, opts ports.ActivityListOptions) ([]*domain.ActivityRecord, error) {
	query := `SELECT id, connection_id, redline_id, event_type, outcome, error_kind, message, status, created_at
	FROM activity`
	var args []any
	if opts.ConnectionID != "" {
		query += ` WHERE connection_id = ?`
		args = append(args, opts.ConnectionID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	var records []*domain.ActivityRecord
	if err := s.db.SelectContext(ctx, &records, s.dialect.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

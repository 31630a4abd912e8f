package ports

import (
	"context"
	"io"

	"github.com/tjfontaine/steelflow/internal/core/domain"
)

// EventPublisher publishes workflow events.
// Implementations: direct journal write (default), no-op.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.WorkflowEvent) error
	Close() error
}

// ActivityStore is the local append-only journal of workflow activity.
// Implementations: memory, SQL (SQLite, PostgreSQL).
type ActivityStore interface {
	// AppendActivity stores a record. Records without an ID are assigned one.
	AppendActivity(ctx context.Context, rec *domain.ActivityRecord) error

	// ListActivity returns records for a connection, oldest first.
	ListActivity(ctx context.Context, opts ActivityListOptions) ([]*domain.ActivityRecord, error)

	// Close closes the storage connection
	Close() error
}

// ActivityListOptions filters ListActivity.
type ActivityListOptions struct {
	ConnectionID string
	Limit        int
}

// ExportSink persists an export document under a name.
// Implementations: local directory, S3-compatible object storage.
type ExportSink interface {
	// Put stores the document and returns a location describing where it went.
	Put(ctx context.Context, name string, body io.Reader, size int64) (string, error)
}

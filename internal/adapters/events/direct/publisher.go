// Package direct provides a workflow event publisher that writes straight to
// the activity journal.
package direct

import (
	"context"
	"fmt"

	"github.com/tjfontaine/steelflow/internal/core/domain"
	"github.com/tjfontaine/steelflow/internal/core/ports"
)

// Publisher implements ports.EventPublisher by appending to an ActivityStore.
type Publisher struct {
	store ports.ActivityStore
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a new direct event publisher.
func NewPublisher(store ports.ActivityStore) (*Publisher, error) {
	if store == nil {
		return nil, fmt.Errorf("activity store required")
	}
	return &Publisher{store: store}, nil
}

// Publish journals a workflow event. The store assigns the record id.
func (p *Publisher) Publish(ctx context.Context, event *domain.WorkflowEvent) error {
	rec := &domain.ActivityRecord{
		ConnectionID: event.ConnectionID,
		RedlineID:    event.RedlineID,
		EventType:    event.Type,
		Outcome:      event.Outcome,
		ErrorKind:    event.ErrorKind,
		Message:      event.Message,
		Status:       event.Status,
		CreatedAt:    event.Timestamp,
	}
	return p.store.AppendActivity(ctx, rec)
}

// Close closes the underlying journal.
func (p *Publisher) Close() error {
	return p.store.Close()
}

// Nop discards every event.
type Nop struct{}

var _ ports.EventPublisher = Nop{}

// Publish implements ports.EventPublisher.
func (Nop) Publish(context.Context, *domain.WorkflowEvent) error { return nil }

// Close implements ports.EventPublisher.
func (Nop) Close() error { return nil }

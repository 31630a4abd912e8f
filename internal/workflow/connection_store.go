package workflow

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/tjfontaine/steelflow/internal/core/domain"
	"github.com/tjfontaine/steelflow/internal/core/ports"
)

// ConnectionSnapshot is an atomic copy of the connection store's state.
type ConnectionSnapshot struct {
	Connection      *domain.Connection       `json:"connection"`
	Draft           domain.Parameters        `json:"draft_parameters"`
	Validation      *domain.ValidationResult `json:"validation,omitempty"`
	Dirty           bool                     `json:"dirty"`
	MissingRequired []string                 `json:"missing_required,omitempty"`
}

// ConnectionStore holds one connection as last reported by the design service
// (the persisted view) plus the user's unsaved parameter edits (the draft view).
// Every successful mutation is followed by a reload; state is only ever
// replaced wholesale from a service response.
type ConnectionStore struct {
	svc    ports.DesignService
	logger *slog.Logger

	mu         sync.RWMutex
	persisted  *domain.Connection
	draft      domain.Parameters
	validation *domain.ValidationResult
}

// NewConnectionStore creates an empty store backed by svc.
func NewConnectionStore(svc ports.DesignService, logger *slog.Logger) *ConnectionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionStore{svc: svc, logger: logger}
}

// Load fetches the connection and replaces both views. On failure nothing changes.
func (s *ConnectionStore) Load(ctx context.Context, id string) (*domain.Connection, error) {
	conn, err := s.fetch(ctx, "load", id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persisted == nil || s.persisted.ID != id || s.validation == nil {
		s.install(conn, conn.ValidationResults)
	} else {
		s.install(conn, s.validation)
	}
	return conn.Clone(), nil
}

func (s *ConnectionStore) fetch(ctx context.Context, op, id string) (*domain.Connection, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrValidationf("connection id is required").WithOp(op)
	}
	conn, err := s.svc.GetConnection(ctx, id)
	if err != nil {
		return nil, domain.AsWorkflowError(op, err)
	}
	if conn.ID != "" && conn.ID != id {
		return nil, domain.ErrTransportf("service returned connection %s for %s", conn.ID, id).WithOp(op)
	}
	conn = conn.Clone()
	conn.ID = id
	return conn, nil
}

// install replaces persisted, draft and validation together. Callers hold mu.
func (s *ConnectionStore) install(conn *domain.Connection, validation *domain.ValidationResult) {
	s.persisted = conn
	s.draft = conn.Parameters.Clone()
	s.validation = validation.Clone()
	s.logger.Debug("connection loaded",
		slog.String("connection_id", conn.ID),
		slog.String("status", string(conn.Status)),
	)
}

// EditParameter sets a draft parameter. The persisted view is untouched.
func (s *ConnectionStore) EditParameter(key string, value float64) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrValidationf("parameter key is required").WithOp("edit_parameter")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return domain.ErrValidationf("parameter %s must be a finite number", key).WithOp("edit_parameter")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persisted == nil {
		return domain.ErrPreconditionf("no connection loaded").WithOp("edit_parameter")
	}
	s.draft[key] = value
	return nil
}

// ClearParameter empties a draft parameter.
func (s *ConnectionStore) ClearParameter(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persisted == nil {
		return domain.ErrPreconditionf("no connection loaded").WithOp("edit_parameter")
	}
	delete(s.draft, strings.TrimSpace(key))
	return nil
}

// EditParameterText applies a user-entered value: blank clears the parameter,
// anything else must parse as a number.
func (s *ConnectionStore) EditParameterText(key, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return s.ClearParameter(key)
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return domain.ErrValidationf("parameter %s: %q is not a number", key, text).WithOp("edit_parameter")
	}
	return s.EditParameter(key, value)
}

// CommitParameters sends the full draft to the service and reloads, since a
// parameter change may reset the server-side status.
func (s *ConnectionStore) CommitParameters(ctx context.Context) (*domain.Connection, error) {
	s.mu.RLock()
	if s.persisted == nil {
		s.mu.RUnlock()
		return nil, domain.ErrPreconditionf("no connection loaded").WithOp("commit_parameters")
	}
	id := s.persisted.ID
	draft := s.draft.Clone()
	s.mu.RUnlock()

	if _, err := s.svc.UpdateParameters(ctx, id, draft); err != nil {
		return nil, domain.AsWorkflowError("commit_parameters", err)
	}
	conn, err := s.Load(ctx, id)
	if err != nil {
		return nil, domain.AsWorkflowError("commit_parameters", err)
	}
	return conn, nil
}

// RunValidation asks the service to validate the persisted connection. A
// failed engineering outcome is returned as a result, not an error. The new
// result and the reloaded connection are installed together; when either call
// fails the previous state is kept.
func (s *ConnectionStore) RunValidation(ctx context.Context) (*domain.ValidationResult, error) {
	s.mu.RLock()
	if s.persisted == nil {
		s.mu.RUnlock()
		return nil, domain.ErrPreconditionf("no connection loaded").WithOp("run_validation")
	}
	id := s.persisted.ID
	s.mu.RUnlock()

	result, err := s.svc.ValidateConnection(ctx, id)
	if err != nil {
		return nil, domain.AsWorkflowError("run_validation", err)
	}
	conn, err := s.fetch(ctx, "run_validation", id)
	if err != nil {
		return result, err
	}

	s.mu.Lock()
	s.install(conn, result)
	s.mu.Unlock()
	return result, nil
}

// RunExport requests the Tekla export. It is refused without a service call
// unless the persisted status is validated.
func (s *ConnectionStore) RunExport(ctx context.Context) (*domain.ExportPayload, error) {
	s.mu.RLock()
	if s.persisted == nil {
		s.mu.RUnlock()
		return nil, domain.ErrPreconditionf("no connection loaded").WithOp("run_export")
	}
	id := s.persisted.ID
	status := s.persisted.Status
	s.mu.RUnlock()

	if !status.Allows(domain.OpRunExport) {
		return nil, domain.ErrPreconditionf("connection is %s; export requires %s", status, domain.ConnectionValidated).
			WithOp("run_export")
	}

	payload, err := s.svc.ExportConnection(ctx, id)
	if err != nil {
		return nil, domain.AsWorkflowError("run_export", err)
	}
	if _, err := s.Load(ctx, id); err != nil {
		return payload, domain.AsWorkflowError("run_export", err)
	}
	return payload, nil
}

// Status returns the last persisted status, or empty when nothing is loaded.
func (s *ConnectionStore) Status() domain.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.persisted == nil {
		return ""
	}
	return s.persisted.Status
}

// Snapshot returns a consistent copy of the store for readers.
func (s *ConnectionStore) Snapshot() ConnectionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.persisted == nil {
		return ConnectionSnapshot{}
	}
	return ConnectionSnapshot{
		Connection:      s.persisted.Clone(),
		Draft:           s.draft.Clone(),
		Validation:      s.validation.Clone(),
		Dirty:           !s.draft.Equal(s.persisted.Parameters),
		MissingRequired: domain.MissingRequired(s.persisted.ConnectionType, s.draft),
	}
}

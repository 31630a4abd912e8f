package workflow

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/tjfontaine/steelflow/internal/core/domain"
	"github.com/tjfontaine/steelflow/internal/core/ports"
)

// RedlineStore holds the redlines of one connection in service order.
type RedlineStore struct {
	svc          ports.DesignService
	rejecter     ports.RedlineRejecter
	connectionID string
	logger       *slog.Logger

	mu       sync.RWMutex
	redlines []domain.Redline
	// rejected overlays local-only rejections until the service reports a decision.
	rejected map[string]struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewRedlineStore creates an empty store for connectionID. When rejecter is nil,
// rejections are recorded locally only.
func NewRedlineStore(svc ports.DesignService, rejecter ports.RedlineRejecter, connectionID string, logger *slog.Logger) *RedlineStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedlineStore{
		svc:          svc,
		rejecter:     rejecter,
		connectionID: connectionID,
		logger:       logger,
		rejected:     make(map[string]struct{}),
		inflight:     make(map[string]struct{}),
	}
}

// Refresh replaces the collection with the service's current list.
func (s *RedlineStore) Refresh(ctx context.Context) error {
	list, err := s.svc.ListRedlines(ctx, s.connectionID)
	if err != nil {
		return domain.AsWorkflowError("refresh_redlines", err)
	}

	out := make([]domain.Redline, 0, len(list))
	for _, rl := range list {
		if err := rl.Validate(); err != nil {
			s.logger.Warn("service returned inconsistent redline",
				slog.String("connection_id", s.connectionID),
				slog.String("error", err.Error()),
			)
		}
		out = append(out, rl.Clone())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range out {
		if _, ok := s.rejected[out[i].ID]; !ok {
			continue
		}
		if out[i].Status.Terminal() {
			delete(s.rejected, out[i].ID)
			continue
		}
		if out[i].Status.Allows(domain.ActionReject) {
			out[i].Status = domain.RedlineRejected
		}
	}
	s.redlines = out
	return nil
}

// Upload sends a new markup file. The returned receipt carries the new
// redline id. The collection is refreshed afterwards; a refresh failure is
// returned alongside a non-nil receipt, and the upload still stands.
func (s *RedlineStore) Upload(ctx context.Context, file []byte, fileName string) (*domain.UploadReceipt, error) {
	fileName = strings.TrimSpace(fileName)
	if len(file) == 0 {
		return nil, domain.ErrValidationf("redline file is required").WithOp("upload_redline")
	}
	if fileName == "" {
		return nil, domain.ErrValidationf("redline file name is required").WithOp("upload_redline")
	}

	receipt, err := s.svc.UploadRedline(ctx, s.connectionID, fileName, file)
	if err != nil {
		return nil, domain.AsWorkflowError("upload_redline", err)
	}
	if receipt.RedlineID == "" {
		return nil, domain.ErrTransportf("service did not return a redline id").WithOp("upload_redline")
	}
	if err := s.Refresh(ctx); err != nil {
		return receipt, err
	}
	return receipt, nil
}

// Interpret runs AI extraction for one redline. Only one interpretation per
// redline id may be in flight; a repeat is refused with Busy without a
// service call.
func (s *RedlineStore) Interpret(ctx context.Context, redlineID string) (*domain.Interpretation, error) {
	if rl, ok := s.Get(redlineID); ok && !rl.Status.Allows(domain.ActionInterpret) {
		return nil, domain.ErrPreconditionf("redline %s is already %s", redlineID, rl.Status).WithOp("interpret_redline")
	}
	if !s.acquire(redlineID) {
		return nil, domain.ErrBusyf("interpretation of redline %s is already in progress", redlineID).WithOp("interpret_redline")
	}
	defer s.release(redlineID)

	result, err := s.svc.InterpretRedline(ctx, redlineID)
	if err != nil {
		return nil, domain.AsWorkflowError("interpret_redline", err)
	}
	if err := s.Refresh(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// Approve sends overrides, or the redline's suggested parameters when
// overrides is empty. The service merges them into the connection, so the
// caller must reload the connection and then refresh this store.
func (s *RedlineStore) Approve(ctx context.Context, redlineID string, overrides domain.Parameters) (*domain.Approval, error) {
	params := overrides.Clone()
	rl, known := s.Get(redlineID)
	if known {
		if !rl.Status.Allows(domain.ActionApprove) {
			return nil, domain.ErrPreconditionf("redline %s is %s; approval requires %s", redlineID, rl.Status, domain.RedlineExtracted).
				WithOp("approve_redline")
		}
		if len(params) == 0 {
			params = rl.SuggestedParameters()
		}
	}
	if len(params) == 0 {
		return nil, domain.ErrValidationf("redline %s has no parameters to approve", redlineID).WithOp("approve_redline")
	}

	approval, err := s.svc.ApproveRedline(ctx, redlineID, params)
	if err != nil {
		return nil, domain.AsWorkflowError("approve_redline", err)
	}
	return approval, nil
}

// Reject records a human rejection. The connection is never touched.
func (s *RedlineStore) Reject(ctx context.Context, redlineID string) error {
	rl, ok := s.Get(redlineID)
	if !ok {
		return domain.ErrNotFoundf("redline %s is not part of connection %s", redlineID, s.connectionID).WithOp("reject_redline")
	}
	if !rl.Status.Allows(domain.ActionReject) {
		return domain.ErrPreconditionf("redline %s is %s; rejection requires %s", redlineID, rl.Status, domain.RedlineExtracted).
			WithOp("reject_redline")
	}

	if s.rejecter != nil {
		if err := s.rejecter.RejectRedline(ctx, redlineID); err != nil {
			return domain.AsWorkflowError("reject_redline", err)
		}
		return s.Refresh(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[redlineID] = struct{}{}
	for i := range s.redlines {
		if s.redlines[i].ID == redlineID {
			s.redlines[i].Status = domain.RedlineRejected
		}
	}
	return nil
}

// Get returns a copy of one redline.
func (s *RedlineStore) Get(redlineID string) (domain.Redline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rl := range s.redlines {
		if rl.ID == redlineID {
			return rl.Clone(), true
		}
	}
	return domain.Redline{}, false
}

// Snapshot returns a copy of the collection in service order.
func (s *RedlineStore) Snapshot() []domain.Redline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Redline, len(s.redlines))
	for i, rl := range s.redlines {
		out[i] = rl.Clone()
	}
	return out
}

// InFlight reports whether an interpretation of redlineID is running.
func (s *RedlineStore) InFlight(redlineID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	_, ok := s.inflight[redlineID]
	return ok
}

func (s *RedlineStore) acquire(redlineID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[redlineID]; busy {
		return false
	}
	s.inflight[redlineID] = struct{}{}
	return true
}

func (s *RedlineStore) release(redlineID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, redlineID)
}

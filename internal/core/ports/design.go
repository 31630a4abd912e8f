package ports

import (
	"context"

	"github.com/tjfontaine/steelflow/internal/core/domain"
)

// DesignService is the remote design service contract consumed by the workflow
// controller. Implementations: HTTP client (default), in-process fakes for tests.
type DesignService interface {
	// GetConnection fetches the authoritative connection record.
	GetConnection(ctx context.Context, id string) (*domain.Connection, error)

	// UpdateParameters replaces the connection's parameter set.
	UpdateParameters(ctx context.Context, id string, params domain.Parameters) (*domain.Connection, error)

	// ValidateConnection runs rule and geometry validation server-side.
	ValidateConnection(ctx context.Context, id string) (*domain.ValidationResult, error)

	// ExportConnection produces the Tekla export document.
	ExportConnection(ctx context.Context, id string) (*domain.ExportPayload, error)

	// UploadRedline creates a redline for the connection from a file.
	UploadRedline(ctx context.Context, connectionID, fileName string, file []byte) (*domain.UploadReceipt, error)

	// InterpretRedline runs AI extraction on a redline.
	InterpretRedline(ctx context.Context, redlineID string) (*domain.Interpretation, error)

	// ApproveRedline marks the redline approved and merges params into its connection.
	ApproveRedline(ctx context.Context, redlineID string, params domain.Parameters) (*domain.Approval, error)

	// ListRedlines returns the connection's redlines in service order.
	ListRedlines(ctx context.Context, connectionID string) ([]domain.Redline, error)
}

// RedlineRejecter is implemented by services that record redline rejections remotely.
type RedlineRejecter interface {
	RejectRedline(ctx context.Context, redlineID string) error
}

// AuditReader reads the design service's audit trail.
type AuditReader interface {
	ConnectionAudit(ctx context.Context, connectionID string) ([]domain.AuditEntry, error)
	MyActivity(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}

// RFIGenerator drafts Requests for Information from a connection snapshot.
type RFIGenerator interface {
	GenerateRFI(ctx context.Context, conn *domain.Connection, issue string) (*domain.RFIDraft, error)
}

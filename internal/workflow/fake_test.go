package workflow

import (
	"context"
	"sync"

	"github.com/tjfontaine/steelflow/internal/core/domain"
)

// fakeService is an in-process DesignService with per-call counters and
// optional hooks that replace the default behavior.
type fakeService struct {
	mu       sync.Mutex
	conns    map[string]*domain.Connection
	redlines map[string][]domain.Redline
	calls    map[string]int

	getHook       func(id string) (*domain.Connection, error)
	validateHook  func(id string) (*domain.ValidationResult, error)
	exportHook    func(id string) (*domain.ExportPayload, error)
	uploadHook    func(connectionID, fileName string) (*domain.UploadReceipt, error)
	interpretHook func(ctx context.Context, redlineID string) (*domain.Interpretation, error)
	approveHook   func(redlineID string, params domain.Parameters) (*domain.Approval, error)
	listHook      func(connectionID string) ([]domain.Redline, error)

	// order records mutating and read calls in the order they were made.
	order []string
}

func newFakeService() *fakeService {
	return &fakeService{
		conns:    make(map[string]*domain.Connection),
		redlines: make(map[string][]domain.Redline),
		calls:    make(map[string]int),
	}
}

func (f *fakeService) addConnection(conn domain.Connection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conn.Parameters == nil {
		conn.Parameters = domain.Parameters{}
	}
	if conn.Status == "" {
		conn.Status = domain.ConnectionDraft
	}
	f.conns[conn.ID] = &conn
}

func (f *fakeService) setStatus(id string, status domain.ConnectionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns[id].Status = status
}

func (f *fakeService) addRedline(rl domain.Redline) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redlines[rl.ConnectionID] = append(f.redlines[rl.ConnectionID], rl)
}

func (f *fakeService) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeService) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	f.order = append(f.order, name)
}

func (f *fakeService) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func (f *fakeService) GetConnection(ctx context.Context, id string) (*domain.Connection, error) {
	f.record("get")
	if f.getHook != nil {
		return f.getHook(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.conns[id]
	if !ok {
		return nil, domain.ErrNotFoundf("Connection not found").WithStatusCode(404)
	}
	return conn.Clone(), nil
}

func (f *fakeService) UpdateParameters(ctx context.Context, id string, params domain.Parameters) (*domain.Connection, error) {
	f.record("update")
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.conns[id]
	if !ok {
		return nil, domain.ErrNotFoundf("Connection not found").WithStatusCode(404)
	}
	conn.Parameters = params.Clone()
	return conn.Clone(), nil
}

func (f *fakeService) ValidateConnection(ctx context.Context, id string) (*domain.ValidationResult, error) {
	f.record("validate")
	if f.validateHook != nil {
		return f.validateHook(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.conns[id]
	if !ok {
		return nil, domain.ErrNotFoundf("Connection not found").WithStatusCode(404)
	}
	result := &domain.ValidationResult{Status: domain.ConnectionValidated}
	if missing := domain.MissingRequired(conn.ConnectionType, conn.Parameters); len(missing) > 0 {
		result.Status = domain.ConnectionFailed
		result.RuleValidation.Checks = []domain.RuleCheck{{RuleName: "Required Parameters", Status: domain.RuleFail}}
	} else {
		result.Geometry = []byte(`{"plate":{}}`)
		conn.Geometry = result.Geometry
	}
	conn.Status = result.Status
	return result, nil
}

func (f *fakeService) ExportConnection(ctx context.Context, id string) (*domain.ExportPayload, error) {
	f.record("export")
	if f.exportHook != nil {
		return f.exportHook(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	conn := f.conns[id]
	conn.Status = domain.ConnectionExported
	return &domain.ExportPayload{TeklaExport: []byte(`{"connection_name":"` + conn.Name + `"}`), Format: "tekla_parametric_json", Editable: true}, nil
}

func (f *fakeService) UploadRedline(ctx context.Context, connectionID, fileName string, file []byte) (*domain.UploadReceipt, error) {
	f.record("upload")
	if f.uploadHook != nil {
		return f.uploadHook(connectionID, fileName)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "rl-" + fileName
	f.redlines[connectionID] = append(f.redlines[connectionID], domain.Redline{
		ID:           id,
		ConnectionID: connectionID,
		FileName:     fileName,
		Status:       domain.RedlineUploaded,
	})
	return &domain.UploadReceipt{RedlineID: id, Status: domain.RedlineUploaded}, nil
}

func (f *fakeService) InterpretRedline(ctx context.Context, redlineID string) (*domain.Interpretation, error) {
	f.record("interpret")
	if f.interpretHook != nil {
		return f.interpretHook(ctx, redlineID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for cid, list := range f.redlines {
		for i := range list {
			if list[i].ID != redlineID {
				continue
			}
			list[i].Status = domain.RedlineExtracted
			list[i].AIExtraction = &domain.AIExtraction{Confidence: 0.9, Parameters: domain.Parameters{"plate_thickness": 0.5}}
			f.redlines[cid] = list
			return &domain.Interpretation{RedlineID: redlineID, Status: domain.RedlineExtracted, AIExtraction: list[i].AIExtraction}, nil
		}
	}
	return nil, domain.ErrNotFoundf("Redline not found").WithStatusCode(404)
}

func (f *fakeService) ApproveRedline(ctx context.Context, redlineID string, params domain.Parameters) (*domain.Approval, error) {
	f.record("approve")
	if f.approveHook != nil {
		return f.approveHook(redlineID, params)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for cid, list := range f.redlines {
		for i := range list {
			if list[i].ID != redlineID {
				continue
			}
			conn := f.conns[cid]
			for k, v := range params {
				conn.Parameters[k] = v
			}
			conn.Status = domain.ConnectionDraft
			list[i].Status = domain.RedlineApproved
			list[i].ApprovedChanges = params.Clone()
			return &domain.Approval{ConnectionID: cid, UpdatedParameters: conn.Parameters.Clone()}, nil
		}
	}
	return nil, domain.ErrNotFoundf("Redline not found").WithStatusCode(404)
}

func (f *fakeService) ListRedlines(ctx context.Context, connectionID string) ([]domain.Redline, error) {
	f.record("list")
	if f.listHook != nil {
		return f.listHook(connectionID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Redline, 0, len(f.redlines[connectionID]))
	for _, rl := range f.redlines[connectionID] {
		out = append(out, rl.Clone())
	}
	return out, nil
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.WorkflowEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event *domain.WorkflowEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) ofType(t domain.WorkflowEventType) []domain.WorkflowEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.WorkflowEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

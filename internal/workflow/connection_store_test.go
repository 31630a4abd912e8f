package workflow

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/tjfontaine/steelflow/internal/core/domain"
)

var completeSinglePlate = domain.Parameters{
	"beam_depth":            18,
	"beam_flange_width":     7.5,
	"beam_flange_thickness": 0.57,
	"beam_web_thickness":    0.355,
	"shear_force":           50,
	"plate_thickness":       0.375,
	"plate_width":           6,
	"bolt_diameter":         0.75,
	"bolt_rows":             3,
}

func TestConnectionStore_Load(t *testing.T) {
	svc := newFakeService()
	svc.addConnection(domain.Connection{
		ID:             "c1",
		Name:           "Beam A",
		ConnectionType: domain.ConnectionTypeSinglePlate,
		Parameters:     domain.Parameters{"beam_depth": 18},
		ValidationResults: &domain.ValidationResult{
			RuleValidation: domain.RuleValidation{Summary: "stored"},
		},
	})
	store := NewConnectionStore(svc, nil)

	conn, err := store.Load(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if conn.Name != "Beam A" {
		t.Errorf("Name = %q, want Beam A", conn.Name)
	}

	snap := store.Snapshot()
	if snap.Dirty {
		t.Error("fresh load should not be dirty")
	}
	if snap.Draft["beam_depth"] != 18 {
		t.Errorf("draft beam_depth = %v, want 18", snap.Draft["beam_depth"])
	}
	if snap.Validation == nil || snap.Validation.RuleValidation.Summary != "stored" {
		t.Errorf("validation = %+v, want stored result from connection", snap.Validation)
	}
	if len(snap.MissingRequired) == 0 {
		t.Error("expected missing required parameters")
	}
}

func TestConnectionStore_LoadFailureLeavesStateUntouched(t *testing.T) {
	svc := newFakeService()
	svc.addConnection(domain.Connection{ID: "c1", Name: "Beam A"})
	store := NewConnectionStore(svc, nil)
	ctx := context.Background()

	if _, err := store.Load(ctx, "c1"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := store.EditParameter("beam_depth", 21); err != nil {
		t.Fatalf("EditParameter failed: %v", err)
	}

	_, err := store.Load(ctx, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	snap := store.Snapshot()
	if snap.Connection == nil || snap.Connection.ID != "c1" {
		t.Fatalf("connection changed after failed load: %+v", snap.Connection)
	}
	if snap.Draft["beam_depth"] != 21 {
		t.Errorf("draft lost after failed load: %v", snap.Draft)
	}
}

func TestConnectionStore_LoadRequiresID(t *testing.T) {
	store := NewConnectionStore(newFakeService(), nil)
	_, err := store.Load(context.Background(), "  ")
	if !domain.IsKind(err, domain.ErrorKindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConnectionStore_EditBeforeLoad(t *testing.T) {
	store := NewConnectionStore(newFakeService(), nil)
	if err := store.EditParameter("beam_depth", 1); !errors.Is(err, domain.ErrPrecondition) {
		t.Errorf("expected precondition error, got %v", err)
	}
	if _, err := store.CommitParameters(context.Background()); !errors.Is(err, domain.ErrPrecondition) {
		t.Errorf("expected precondition error, got %v", err)
	}
}

func TestConnectionStore_EditParameterText(t *testing.T) {
	svc := newFakeService()
	svc.addConnection(domain.Connection{ID: "c1", Parameters: domain.Parameters{"beam_depth": 18}})
	store := NewConnectionStore(svc, nil)
	if _, err := store.Load(context.Background(), "c1"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		name    string
		text    string
		want    float64
		present bool
		wantErr domain.ErrorKind
	}{
		{name: "number", text: "21.5", want: 21.5, present: true},
		{name: "padded", text: " 12 ", want: 12, present: true},
		{name: "blank clears", text: "   ", present: false},
		{name: "not a number", text: "deep", present: false, wantErr: domain.ErrorKindValidation},
		{name: "NaN", text: "NaN", wantErr: domain.ErrorKindValidation},
		{name: "infinity", text: "Inf", wantErr: domain.ErrorKindValidation},
		{name: "signed infinity", text: "+Inf", wantErr: domain.ErrorKindValidation},
		{name: "negative infinity", text: "-inf", wantErr: domain.ErrorKindValidation},
		{name: "overflow", text: "1e999", wantErr: domain.ErrorKindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.EditParameterText("beam_depth", tt.text)
			if tt.wantErr != "" {
				if !domain.IsKind(err, tt.wantErr) {
					t.Fatalf("expected %s, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("EditParameterText failed: %v", err)
			}
			got, ok := store.Snapshot().Draft["beam_depth"]
			if ok != tt.present {
				t.Fatalf("present = %v, want %v", ok, tt.present)
			}
			if ok && got != tt.want {
				t.Errorf("value = %v, want %v", got, tt.want)
			}
		})
	}

	if store.Snapshot().Connection.Parameters["beam_depth"] != 18 {
		t.Error("editing the draft changed the persisted parameters")
	}
	if _, ok := store.Snapshot().Draft["beam_depth"]; ok {
		t.Error("a rejected value reached the draft")
	}
	if err := store.EditParameter("beam_depth", math.NaN()); !domain.IsKind(err, domain.ErrorKindValidation) {
		t.Errorf("EditParameter(NaN) error = %v, want validation_error", err)
	}
	if err := store.EditParameter("beam_depth", math.Inf(-1)); !domain.IsKind(err, domain.ErrorKindValidation) {
		t.Errorf("EditParameter(-Inf) error = %v, want validation_error", err)
	}
	if _, err := store.CommitParameters(context.Background()); err != nil {
		t.Fatalf("CommitParameters() error = %v", err)
	}
}

func TestConnectionStore_CommitParametersIsIdempotent(t *testing.T) {
	svc := newFakeService()
	svc.addConnection(domain.Connection{ID: "c1", ConnectionType: domain.ConnectionTypeSinglePlate})
	store := NewConnectionStore(svc, nil)
	ctx := context.Background()
	if _, err := store.Load(ctx, "c1"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for k, v := range completeSinglePlate {
		if err := store.EditParameter(k, v); err != nil {
			t.Fatalf("EditParameter failed: %v", err)
		}
	}
	if !store.Snapshot().Dirty {
		t.Fatal("expected dirty draft before commit")
	}

	first, err := store.CommitParameters(ctx)
	if err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	second, err := store.CommitParameters(ctx)
	if err != nil {
		t.Fatalf("second commit failed: %v", err)
	}

	if !first.Parameters.Equal(second.Parameters) {
		t.Errorf("parameters differ between commits: %v vs %v", first.Parameters, second.Parameters)
	}
	if !second.Parameters.Equal(completeSinglePlate) {
		t.Errorf("persisted parameters = %v", second.Parameters)
	}
	if store.Snapshot().Dirty {
		t.Error("draft still dirty after commit")
	}
	if got := svc.count("update"); got != 2 {
		t.Errorf("update calls = %d, want 2", got)
	}
	// Every commit is followed by a reload.
	if got := svc.count("get"); got != 3 {
		t.Errorf("get calls = %d, want 3", got)
	}
}

func TestConnectionStore_RunValidation(t *testing.T) {
	svc := newFakeService()
	svc.addConnection(domain.Connection{ID: "c1", ConnectionType: domain.ConnectionTypeSinglePlate})
	store := NewConnectionStore(svc, nil)
	ctx := context.Background()
	if _, err := store.Load(ctx, "c1"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	result, err := store.RunValidation(ctx)
	if err != nil {
		t.Fatalf("RunValidation returned error for a failed outcome: %v", err)
	}
	if result.Status != domain.ConnectionFailed {
		t.Errorf("result status = %s, want failed", result.Status)
	}
	if store.Status() != domain.ConnectionFailed {
		t.Errorf("store status = %s, want failed", store.Status())
	}
	if len(store.Snapshot().Validation.FailedChecks()) != 1 {
		t.Error("expected the failed check to be kept")
	}

	svc.validateHook = func(string) (*domain.ValidationResult, error) {
		return nil, domain.ErrTransportf("boom")
	}
	if _, err := store.RunValidation(ctx); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if store.Snapshot().Validation == nil || store.Snapshot().Validation.Status != domain.ConnectionFailed {
		t.Error("previous validation result was not kept after a failed call")
	}
}

func TestConnectionStore_RunValidationInstallsResultWithReload(t *testing.T) {
	svc := newFakeService()
	svc.addConnection(domain.Connection{ID: "c1", ConnectionType: domain.ConnectionTypeSinglePlate, Parameters: completeSinglePlate.Clone()})
	store := NewConnectionStore(svc, nil)
	ctx := context.Background()
	if _, err := store.Load(ctx, "c1"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var during ConnectionSnapshot
	svc.getHook = func(id string) (*domain.Connection, error) {
		during = store.Snapshot()
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.conns[id].Clone(), nil
	}
	result, err := store.RunValidation(ctx)
	if err != nil {
		t.Fatalf("RunValidation() error = %v", err)
	}
	if result.Status != domain.ConnectionValidated {
		t.Fatalf("result status = %s, want validated", result.Status)
	}
	if during.Validation != nil {
		t.Errorf("new result visible before the reload: %+v", during.Validation)
	}
	if during.Connection.Status != domain.ConnectionDraft {
		t.Errorf("status during reload = %s, want draft", during.Connection.Status)
	}
	after := store.Snapshot()
	if after.Validation == nil || after.Validation.Status != domain.ConnectionValidated || after.Connection.Status != domain.ConnectionValidated {
		t.Errorf("after validation: result %+v with status %s, want both validated", after.Validation, after.Connection.Status)
	}

	svc.validateHook = func(string) (*domain.ValidationResult, error) {
		return &domain.ValidationResult{Status: domain.ConnectionFailed}, nil
	}
	svc.getHook = func(string) (*domain.Connection, error) {
		return nil, domain.ErrTransportf("reload failed")
	}
	result, err = store.RunValidation(ctx)
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("RunValidation() error = %v, want transport error", err)
	}
	if result == nil || result.Status != domain.ConnectionFailed {
		t.Errorf("result = %+v, want the failed outcome returned", result)
	}
	kept := store.Snapshot()
	if kept.Validation.Status != domain.ConnectionValidated || kept.Connection.Status != domain.ConnectionValidated {
		t.Errorf("after failed reload: result %s with status %s, want previous pair kept", kept.Validation.Status, kept.Connection.Status)
	}
}

func TestConnectionStore_RunExportGate(t *testing.T) {
	tests := []struct {
		status    domain.ConnectionStatus
		wantCall  bool
		wantError bool
	}{
		{status: domain.ConnectionDraft, wantError: true},
		{status: domain.ConnectionValidated, wantCall: true},
		{status: domain.ConnectionFailed, wantError: true},
		{status: domain.ConnectionExported, wantError: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			svc := newFakeService()
			svc.addConnection(domain.Connection{ID: "c1", Name: "Beam A", Status: tt.status})
			store := NewConnectionStore(svc, nil)
			ctx := context.Background()
			if _, err := store.Load(ctx, "c1"); err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			payload, err := store.RunExport(ctx)
			if tt.wantError {
				if !errors.Is(err, domain.ErrPrecondition) {
					t.Fatalf("expected precondition error, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("RunExport failed: %v", err)
			}

			calls := svc.count("export")
			if tt.wantCall && calls != 1 {
				t.Errorf("export calls = %d, want 1", calls)
			}
			if !tt.wantCall && calls != 0 {
				t.Errorf("export calls = %d, want 0", calls)
			}
			if tt.wantCall {
				if payload.Empty() {
					t.Error("expected export payload")
				}
				if store.Status() != domain.ConnectionExported {
					t.Errorf("status after export = %s, want exported", store.Status())
				}
			}
		})
	}
}

func TestConnectionStore_ExportServiceRefusal(t *testing.T) {
	svc := newFakeService()
	svc.addConnection(domain.Connection{ID: "c1", Status: domain.ConnectionValidated})
	svc.exportHook = func(string) (*domain.ExportPayload, error) {
		return nil, domain.ErrTransportf("Connection must be validated before export").WithStatusCode(400)
	}
	store := NewConnectionStore(svc, nil)
	ctx := context.Background()
	if _, err := store.Load(ctx, "c1"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := store.RunExport(ctx); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if store.Status() != domain.ConnectionValidated {
		t.Errorf("status changed after refused export: %s", store.Status())
	}
}

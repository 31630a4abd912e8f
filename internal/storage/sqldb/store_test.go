package sqldb

import (
	"context"
	"testing"
	"time"

	"github.com/tjfontaine/steelflow/internal/core/domain"
	"github.com/tjfontaine/steelflow/internal/core/ports"
)

func newTestStore(t *testing.T, name string) *Store {
	t.Helper()
	store, err := NewSQLite("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLDBStore_AppendActivity(t *testing.T) {
	store := newTestStore(t, "activity1")
	ctx := context.Background()

	rec := &domain.ActivityRecord{
		ConnectionID: "c1",
		EventType:    domain.EventConnectionValidated,
		Outcome:      domain.OutcomeOK,
		Status:       "validated",
	}
	if err := store.AppendActivity(ctx, rec); err != nil {
		t.Fatalf("AppendActivity() error = %v", err)
	}
	if rec.ID == "" {
		t.Error("expected an ID to be assigned")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected a timestamp to be assigned")
	}

	records, err := store.ListActivity(ctx, ports.ActivityListOptions{ConnectionID: "c1"})
	if err != nil {
		t.Fatalf("ListActivity() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	got := records[0]
	if got.ID != rec.ID || got.EventType != domain.EventConnectionValidated || got.Status != "validated" {
		t.Errorf("record = %+v", got)
	}
}

func TestSQLDBStore_ListActivity(t *testing.T) {
	store := newTestStore(t, "activity2")
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	events := []struct {
		conn  string
		typ   domain.WorkflowEventType
		kind  domain.ErrorKind
		delay time.Duration
	}{
		{"c1", domain.EventConnectionOpened, "", 0},
		{"c2", domain.EventConnectionOpened, "", time.Second},
		{"c1", domain.EventConnectionExported, domain.ErrorKindPrecondition, 2 * time.Second},
		{"c1", domain.EventConnectionValidated, "", 3 * time.Second},
	}
	for _, e := range events {
		rec := &domain.ActivityRecord{
			ConnectionID: e.conn,
			EventType:    e.typ,
			Outcome:      domain.OutcomeOK,
			ErrorKind:    e.kind,
			CreatedAt:    base.Add(e.delay),
		}
		if e.kind != "" {
			rec.Outcome = domain.OutcomeFailed
		}
		if err := store.AppendActivity(ctx, rec); err != nil {
			t.Fatalf("AppendActivity() error = %v", err)
		}
	}

	all, err := store.ListActivity(ctx, ports.ActivityListOptions{ConnectionID: "c1"})
	if err != nil {
		t.Fatalf("ListActivity() error = %v", err)
	}
	want := []domain.WorkflowEventType{domain.EventConnectionOpened, domain.EventConnectionExported, domain.EventConnectionValidated}
	if len(all) != len(want) {
		t.Fatalf("records = %d, want %d", len(all), len(want))
	}
	for i, typ := range want {
		if all[i].EventType != typ {
			t.Errorf("record[%d] = %s, want %s", i, all[i].EventType, typ)
		}
	}
	if all[1].ErrorKind != domain.ErrorKindPrecondition || all[1].Outcome != domain.OutcomeFailed {
		t.Errorf("failed record = %+v", all[1])
	}

	recent, err := store.ListActivity(ctx, ports.ActivityListOptions{ConnectionID: "c1", Limit: 2})
	if err != nil {
		t.Fatalf("ListActivity() error = %v", err)
	}
	if len(recent) != 2 || recent[0].EventType != domain.EventConnectionExported || recent[1].EventType != domain.EventConnectionValidated {
		t.Errorf("recent = %+v", recent)
	}

	everything, err := store.ListActivity(ctx, ports.ActivityListOptions{})
	if err != nil {
		t.Fatalf("ListActivity() error = %v", err)
	}
	if len(everything) != 4 {
		t.Errorf("records = %d, want 4", len(everything))
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	if _, err := New(Config{Driver: "mysql", DSN: "x"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

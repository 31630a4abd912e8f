package domain

import (
	"encoding/json"
	"regexp"
)

// ExportPayload is the result of a Tekla export. TeklaExport is opaque and is
// handed back to callers byte for byte.
type ExportPayload struct {
	TeklaExport json.RawMessage `json:"tekla_export"`
	Format      string          `json:"format,omitempty"`
	Editable    bool            `json:"editable,omitempty"`
	Disclaimer  string          `json:"disclaimer,omitempty"`
}

// Empty reports whether the service returned no export document.
func (p *ExportPayload) Empty() bool {
	return p == nil || len(p.TeklaExport) == 0 || string(p.TeklaExport) == "null"
}

var whitespace = regexp.MustCompile(`\s+`)

// ExportFileName returns the download name used for a connection's Tekla export.
func ExportFileName(connectionName string) string {
	return whitespace.ReplaceAllString(connectionName, "_") + "_tekla_export.json"
}

// AuditEntry is one record of the design service's audit trail.
type AuditEntry struct {
	ID           string          `json:"id"`
	Action       string          `json:"action"`
	UserID       string          `json:"user_id"`
	ConnectionID string          `json:"connection_id,omitempty"`
	ProjectID    string          `json:"project_id,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	AIInvolved   bool            `json:"ai_involved"`
	Timestamp    ServiceTime     `json:"timestamp"`
}

package domain

import (
	"fmt"
)

// AIExtraction is the structured interpretation of a redline produced by the
// design service. It is advisory until a human approves it.
type AIExtraction struct {
	Confidence float64    `json:"confidence"`
	Intent     string     `json:"intent"`
	Reasoning  string     `json:"reasoning"`
	Parameters Parameters `json:"parameters"`
}

// Redline is a markup artifact attached to exactly one connection.
type Redline struct {
	ID              string        `json:"id"`
	ConnectionID    string        `json:"connection_id"`
	FileName        string        `json:"file_name"`
	Status          RedlineStatus `json:"status"`
	AIExtraction    *AIExtraction `json:"ai_extraction,omitempty"`
	ApprovedChanges Parameters    `json:"approved_changes,omitempty"`
	CreatedAt       ServiceTime   `json:"created_at"`
	UpdatedAt       ServiceTime   `json:"updated_at"`
}

// Validate checks the extraction/status invariant and the confidence range.
func (r *Redline) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("redline id is required")
	}
	if r.Status.HasExtraction() != (r.AIExtraction != nil) {
		return fmt.Errorf("redline %s: status %s with extraction present=%t", r.ID, r.Status, r.AIExtraction != nil)
	}
	if r.AIExtraction != nil && (r.AIExtraction.Confidence < 0 || r.AIExtraction.Confidence > 1) {
		return fmt.Errorf("redline %s: confidence %v outside [0,1]", r.ID, r.AIExtraction.Confidence)
	}
	return nil
}

// SuggestedParameters returns the AI-suggested parameters, or nil when the
// redline has not been interpreted.
func (r *Redline) SuggestedParameters() Parameters {
	if r == nil || r.AIExtraction == nil {
		return nil
	}
	return r.AIExtraction.Parameters.Clone()
}

// Clone returns a deep copy of r.
func (r Redline) Clone() Redline {
	if r.AIExtraction != nil {
		ext := *r.AIExtraction
		ext.Parameters = r.AIExtraction.Parameters.Clone()
		r.AIExtraction = &ext
	}
	if r.ApprovedChanges != nil {
		r.ApprovedChanges = r.ApprovedChanges.Clone()
	}
	return r
}

// UploadReceipt acknowledges a redline upload.
type UploadReceipt struct {
	RedlineID string        `json:"redline_id"`
	Status    RedlineStatus `json:"status"`
	Message   string        `json:"message,omitempty"`
}

// Interpretation is the result of an AI interpretation call.
type Interpretation struct {
	RedlineID    string        `json:"redline_id"`
	Status       RedlineStatus `json:"status"`
	AIExtraction *AIExtraction `json:"ai_extraction"`
	Disclaimer   string        `json:"disclaimer,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// Approval is the acknowledgement of an approved redline.
type Approval struct {
	Message           string     `json:"message,omitempty"`
	ConnectionID      string     `json:"connection_id"`
	UpdatedParameters Parameters `json:"updated_parameters,omitempty"`
	Note              string     `json:"note,omitempty"`
}

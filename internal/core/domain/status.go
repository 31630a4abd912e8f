package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ConnectionStatus is the server-assigned lifecycle state of a connection.
type ConnectionStatus string

const (
	ConnectionDraft     ConnectionStatus = "draft"
	ConnectionValidated ConnectionStatus = "validated"
	ConnectionFailed    ConnectionStatus = "failed"
	ConnectionExported  ConnectionStatus = "exported"
)

// ConnectionStatuses lists every connection status.
var ConnectionStatuses = []ConnectionStatus{
	ConnectionDraft,
	ConnectionValidated,
	ConnectionFailed,
	ConnectionExported,
}

// ParseConnectionStatus converts a wire value into a ConnectionStatus.
func ParseConnectionStatus(s string) (ConnectionStatus, error) {
	switch status := ConnectionStatus(strings.ToLower(strings.TrimSpace(s))); status {
	case ConnectionDraft, ConnectionValidated, ConnectionFailed, ConnectionExported:
		return status, nil
	default:
		return "", fmt.Errorf("unknown connection status %q", s)
	}
}

// UnmarshalJSON rejects statuses outside the lifecycle so an unknown value
// never reaches the stores. An absent status decodes as draft.
func (s *ConnectionStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*s = ConnectionDraft
		return nil
	}
	parsed, err := ParseConnectionStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ConnectionOp names an operation that may move a connection through its lifecycle.
type ConnectionOp string

const (
	OpCommitParameters ConnectionOp = "commit_parameters"
	OpRunValidation    ConnectionOp = "run_validation"
	OpRunExport        ConnectionOp = "run_export"
)

// Allows reports whether op may be requested while the connection is in status s.
// Only export is gated locally; the other operations are always requestable and the
// service decides the outcome.
func (s ConnectionStatus) Allows(op ConnectionOp) bool {
	switch op {
	case OpCommitParameters, OpRunValidation:
		return true
	case OpRunExport:
		return s == ConnectionValidated
	default:
		return false
	}
}

// ExpectedOutcomes lists the statuses the service is expected to report after op
// succeeds from status s. Anything else is still accepted as authoritative but is
// worth a warning.
func (s ConnectionStatus) ExpectedOutcomes(op ConnectionOp) []ConnectionStatus {
	switch op {
	case OpCommitParameters:
		return []ConnectionStatus{ConnectionDraft, ConnectionValidated, ConnectionFailed}
	case OpRunValidation:
		return []ConnectionStatus{ConnectionValidated, ConnectionFailed}
	case OpRunExport:
		if s == ConnectionValidated {
			return []ConnectionStatus{ConnectionExported}
		}
		return nil
	default:
		return nil
	}
}

// IsExpectedTransition reports whether moving from s to next via op matches the lifecycle.
func (s ConnectionStatus) IsExpectedTransition(op ConnectionOp, next ConnectionStatus) bool {
	for _, candidate := range s.ExpectedOutcomes(op) {
		if candidate == next {
			return true
		}
	}
	return false
}

// RedlineStatus is the server-assigned state of a redline.
type RedlineStatus string

const (
	RedlineUploaded   RedlineStatus = "uploaded"
	RedlineProcessing RedlineStatus = "processing"
	RedlineExtracted  RedlineStatus = "extracted"
	RedlineApproved   RedlineStatus = "approved"
	RedlineRejected   RedlineStatus = "rejected"
)

// ParseRedlineStatus converts a wire value into a RedlineStatus.
func ParseRedlineStatus(s string) (RedlineStatus, error) {
	switch status := RedlineStatus(strings.ToLower(strings.TrimSpace(s))); status {
	case RedlineUploaded, RedlineProcessing, RedlineExtracted, RedlineApproved, RedlineRejected:
		return status, nil
	default:
		return "", fmt.Errorf("unknown redline status %q", s)
	}
}

// UnmarshalJSON validates the redline status. An absent status decodes as uploaded.
func (s *RedlineStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*s = RedlineUploaded
		return nil
	}
	parsed, err := ParseRedlineStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// HasExtraction reports whether a redline in status s must carry an AI extraction.
func (s RedlineStatus) HasExtraction() bool {
	switch s {
	case RedlineExtracted, RedlineApproved, RedlineRejected:
		return true
	case RedlineUploaded, RedlineProcessing:
		return false
	default:
		return false
	}
}

// Terminal reports whether a human decision has been recorded.
func (s RedlineStatus) Terminal() bool {
	return s == RedlineApproved || s == RedlineRejected
}

// RedlineAction names a request that moves a redline through its sub-workflow.
type RedlineAction string

const (
	ActionInterpret RedlineAction = "interpret"
	ActionApprove   RedlineAction = "approve"
	ActionReject    RedlineAction = "reject"
)

// Allows reports whether action may be requested while the redline is in status s.
// Interpretation may be re-run until a decision is made. A decision needs an
// extraction to decide on, since approved and rejected redlines always carry one.
func (s RedlineStatus) Allows(action RedlineAction) bool {
	switch action {
	case ActionInterpret:
		return !s.Terminal()
	case ActionApprove, ActionReject:
		return s == RedlineExtracted
	default:
		return false
	}
}

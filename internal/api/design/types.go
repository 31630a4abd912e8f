package design

import (
	"encoding/json"
	"strings"

	"github.com/tjfontaine/steelflow/internal/core/domain"
)

// UpdateConnectionRequest is the body of PUT /connections/{id}.
type UpdateConnectionRequest struct {
	Parameters domain.Parameters `json:"parameters"`
}

// ErrorResponse is the error body returned by the design service.
// Detail is a string for handled errors and a list of field errors for
// request validation failures.
type ErrorResponse struct {
	Detail  json.RawMessage `json:"detail,omitempty"`
	Message string          `json:"message,omitempty"`
}

type fieldError struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// Text returns the most useful human-readable message in the body.
func (e *ErrorResponse) Text() string {
	if len(e.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(e.Detail, &detail); err == nil && detail != "" {
			return detail
		}
		var fields []fieldError
		if err := json.Unmarshal(e.Detail, &fields); err == nil && len(fields) > 0 {
			msgs := make([]string, 0, len(fields))
			for _, f := range fields {
				msgs = append(msgs, f.Msg)
			}
			return strings.Join(msgs, "; ")
		}
	}
	return e.Message
}

// ParseErrorResponse attempts to parse an error response from JSON.
func ParseErrorResponse(data []byte) (*ErrorResponse, error) {
	var errResp ErrorResponse
	if err := json.Unmarshal(data, &errResp); err != nil {
		return nil, err
	}
	if errResp.Text() == "" {
		return nil, nil
	}
	return &errResp, nil
}

// ToWorkflowError converts the error body into a classified workflow error.
func (e *ErrorResponse) ToWorkflowError(statusCode int) *domain.WorkflowError {
	return domain.NewWorkflowError(domain.KindForStatus(statusCode), e.Text()).
		WithStatusCode(statusCode)
}

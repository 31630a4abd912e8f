package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RuleStatus is the outcome of a single compliance rule.
type RuleStatus string

const (
	RulePass    RuleStatus = "PASS"
	RuleFail    RuleStatus = "FAIL"
	RuleWarning RuleStatus = "WARNING"
)

// UnmarshalJSON accepts the rule status in any letter case; the service sends lowercase.
func (s *RuleStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch status := RuleStatus(strings.ToUpper(strings.TrimSpace(raw))); status {
	case "":
		*s = ""
		return nil
	case RulePass, RuleFail, RuleWarning:
		*s = status
		return nil
	default:
		return fmt.Errorf("unknown rule status %q", raw)
	}
}

// RuleCheck is one compliance rule evaluation.
type RuleCheck struct {
	RuleID          string     `json:"rule_id,omitempty"`
	RuleName        string     `json:"rule_name"`
	Status          RuleStatus `json:"status"`
	Message         string     `json:"message"`
	CodeReference   string     `json:"code_reference,omitempty"`
	CalculatedValue *float64   `json:"calculated_value,omitempty"`
	LimitValue      *float64   `json:"limit_value,omitempty"`
}

// RuleValidation groups the rule checks of one validation run.
type RuleValidation struct {
	Summary       string      `json:"summary"`
	OverallStatus RuleStatus  `json:"overall_status,omitempty"`
	IsValid       bool        `json:"is_valid"`
	Checks        []RuleCheck `json:"checks"`
}

// GeometryValidation reports geometric consistency of the generated model.
type GeometryValidation struct {
	IsValid  bool     `json:"is_valid"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`
}

// ValidationResult is the payload of a validate call. A result with status failed
// is a successful call that carries a negative engineering outcome.
type ValidationResult struct {
	Status             ConnectionStatus    `json:"status"`
	Message            string              `json:"message,omitempty"`
	RuleValidation     RuleValidation      `json:"rule_validation"`
	GeometryValidation *GeometryValidation `json:"geometry_validation,omitempty"`
	Geometry           json.RawMessage     `json:"geometry,omitempty"`
	// ParameterValidation holds the service's report when it rejected the
	// parameter set before running any rule.
	ParameterValidation json.RawMessage `json:"validation_results,omitempty"`
}

// UnmarshalJSON also accepts the rule-only shape the service stores on the
// connection record ({summary, checks, is_valid, overall_status}).
func (v *ValidationResult) UnmarshalJSON(data []byte) error {
	type alias ValidationResult
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	var probe struct {
		RuleValidation json.RawMessage `json:"rule_validation"`
		Checks         json.RawMessage `json:"checks"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if len(probe.RuleValidation) == 0 && len(probe.Checks) > 0 {
		if err := json.Unmarshal(data, &decoded.RuleValidation); err != nil {
			return fmt.Errorf("rule validation: %w", err)
		}
	}

	*v = ValidationResult(decoded)
	return nil
}

// FailedChecks returns the checks whose status is FAIL, in service order.
func (v *ValidationResult) FailedChecks() []RuleCheck {
	if v == nil {
		return nil
	}
	var failed []RuleCheck
	for _, check := range v.RuleValidation.Checks {
		if check.Status == RuleFail {
			failed = append(failed, check)
		}
	}
	return failed
}

// Passed reports whether the service marked the connection validated.
func (v *ValidationResult) Passed() bool {
	return v != nil && v.Status == ConnectionValidated
}

// Clone returns a deep copy of v.
func (v *ValidationResult) Clone() *ValidationResult {
	if v == nil {
		return nil
	}
	out := *v
	out.RuleValidation.Checks = append([]RuleCheck(nil), v.RuleValidation.Checks...)
	if v.GeometryValidation != nil {
		gv := *v.GeometryValidation
		gv.Issues = append([]string(nil), v.GeometryValidation.Issues...)
		gv.Warnings = append([]string(nil), v.GeometryValidation.Warnings...)
		out.GeometryValidation = &gv
	}
	if v.Geometry != nil {
		out.Geometry = append(json.RawMessage(nil), v.Geometry...)
	}
	if v.ParameterValidation != nil {
		out.ParameterValidation = append(json.RawMessage(nil), v.ParameterValidation...)
	}
	return &out
}

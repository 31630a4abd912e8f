package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// ConnectionType identifies the kind of steel joint a connection describes.
type ConnectionType string

const (
	ConnectionTypeBeamToColumnShear ConnectionType = "beam_to_column_shear"
	ConnectionTypeBeamToBeamShear   ConnectionType = "beam_to_beam_shear"
	ConnectionTypeSinglePlate       ConnectionType = "single_plate"
	ConnectionTypeDoubleAngle       ConnectionType = "double_angle"
	ConnectionTypeEndPlate          ConnectionType = "end_plate"
)

// ConnectionTypes lists every known connection type in display order.
var ConnectionTypes = []ConnectionType{
	ConnectionTypeBeamToColumnShear,
	ConnectionTypeBeamToBeamShear,
	ConnectionTypeSinglePlate,
	ConnectionTypeDoubleAngle,
	ConnectionTypeEndPlate,
}

// Label returns the human readable name of the connection type.
func (t ConnectionType) Label() string {
	switch t {
	case ConnectionTypeBeamToColumnShear:
		return "Beam-to-Column Shear"
	case ConnectionTypeBeamToBeamShear:
		return "Beam-to-Beam Shear"
	case ConnectionTypeSinglePlate:
		return "Single Plate"
	case ConnectionTypeDoubleAngle:
		return "Double Angle"
	case ConnectionTypeEndPlate:
		return "End Plate"
	default:
		return string(t)
	}
}

// Valid reports whether t is one of the known connection types.
func (t ConnectionType) Valid() bool {
	for _, known := range ConnectionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Parameters maps a design parameter key (e.g. "beam_depth") to its numeric value.
type Parameters map[string]float64

// Clone returns an independent copy of p. A nil map clones to an empty map.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	maps.Copy(out, p)
	return out
}

// Equal reports whether p and other hold the same keys and values.
func (p Parameters) Equal(other Parameters) bool {
	return maps.Equal(p, other)
}

// UnmarshalJSON accepts numbers and numeric strings. Non-numeric values
// (the browser client stored "" for cleared fields) are dropped.
func (p *Parameters) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parameters: %w", err)
	}
	out := make(Parameters, len(raw))
	for key, value := range raw {
		var num float64
		if err := json.Unmarshal(value, &num); err == nil {
			out[key] = num
			continue
		}
		var str string
		if err := json.Unmarshal(value, &str); err == nil {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
				out[key] = parsed
			}
		}
	}
	*p = out
	return nil
}

// Connection is a single steel connection design record as last reported by
// the design service. Status and Geometry are server-derived and are never
// computed locally.
type Connection struct {
	ID                string            `json:"id"`
	ProjectID         string            `json:"project_id"`
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	ConnectionType    ConnectionType    `json:"connection_type"`
	Parameters        Parameters        `json:"parameters"`
	Status            ConnectionStatus  `json:"status"`
	AISuggested       bool              `json:"ai_suggested"`
	ValidationResults *ValidationResult `json:"validation_results,omitempty"`
	Geometry          json.RawMessage   `json:"geometry,omitempty"`
	CreatedAt         ServiceTime       `json:"created_at"`
	UpdatedAt         ServiceTime       `json:"updated_at"`
}

// HasGeometry reports whether the service attached a geometry model.
func (c *Connection) HasGeometry() bool {
	return c != nil && len(c.Geometry) > 0 && string(c.Geometry) != "null"
}

// Clone returns a deep copy so snapshots handed to readers cannot alias store state.
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	out := *c
	out.Parameters = c.Parameters.Clone()
	if c.Geometry != nil {
		out.Geometry = append(json.RawMessage(nil), c.Geometry...)
	}
	out.ValidationResults = c.ValidationResults.Clone()
	return &out
}

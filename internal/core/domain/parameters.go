package domain

// ParameterField describes one design parameter the service expects for a connection type.
type ParameterField struct {
	Key      string  `json:"key" yaml:"key"`
	Label    string  `json:"label" yaml:"label"`
	Unit     string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	Step     float64 `json:"step" yaml:"step"`
	Required bool    `json:"required" yaml:"required"`
}

var commonFields = []ParameterField{
	{Key: "beam_depth", Label: "Beam Depth", Unit: "inches", Step: 0.1, Required: true},
	{Key: "beam_flange_width", Label: "Beam Flange Width", Unit: "inches", Step: 0.1, Required: true},
	{Key: "beam_flange_thickness", Label: "Beam Flange Thickness", Unit: "inches", Step: 0.01, Required: true},
	{Key: "beam_web_thickness", Label: "Beam Web Thickness", Unit: "inches", Step: 0.01, Required: true},
	{Key: "shear_force", Label: "Shear Force", Unit: "kips", Step: 0.1, Required: true},
}

var typeFields = map[ConnectionType][]ParameterField{
	ConnectionTypeSinglePlate: {
		{Key: "plate_thickness", Label: "Plate Thickness", Unit: "inches", Step: 0.01, Required: true},
		{Key: "plate_width", Label: "Plate Width", Unit: "inches", Step: 0.1, Required: true},
		{Key: "bolt_diameter", Label: "Bolt Diameter", Unit: "inches", Step: 0.125, Required: true},
		{Key: "bolt_rows", Label: "Number of Bolt Rows", Step: 1, Required: true},
	},
	ConnectionTypeDoubleAngle: {
		{Key: "angle_size", Label: "Angle Size", Unit: "inches", Step: 0.1, Required: true},
		{Key: "angle_thickness", Label: "Angle Thickness", Unit: "inches", Step: 0.01, Required: true},
		{Key: "bolt_diameter", Label: "Bolt Diameter", Unit: "inches", Step: 0.125, Required: true},
	},
	ConnectionTypeEndPlate: {
		{Key: "plate_thickness", Label: "Plate Thickness", Unit: "inches", Step: 0.01, Required: true},
		{Key: "bolt_diameter", Label: "Bolt Diameter", Unit: "inches", Step: 0.125, Required: true},
		{Key: "moment", Label: "Moment", Unit: "kip-ft", Step: 0.1, Required: true},
	},
}

// ParameterFields returns the parameter catalogue for t: the fields shared by
// every type followed by the type-specific ones.
func ParameterFields(t ConnectionType) []ParameterField {
	fields := make([]ParameterField, 0, len(commonFields)+len(typeFields[t]))
	fields = append(fields, commonFields...)
	return append(fields, typeFields[t]...)
}

// MissingRequired lists the required keys of t that params does not set.
// Physical plausibility is the service's concern.
func MissingRequired(t ConnectionType, params Parameters) []string {
	var missing []string
	for _, field := range ParameterFields(t) {
		if !field.Required {
			continue
		}
		if _, ok := params[field.Key]; !ok {
			missing = append(missing, field.Key)
		}
	}
	return missing
}

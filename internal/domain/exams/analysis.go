package exams

// MarkerKey names a clinical marker inside an analysis
type MarkerKey string

const (
	MarkerBloodGlucose           MarkerKey = "blood_glucose"
	MarkerCholesterolTotal       MarkerKey = "cholesterol_total"
	MarkerCholesterolHDL         MarkerKey = "cholesterol_hdl"
	MarkerCholesterolLDL         MarkerKey = "cholesterol_ldl"
	MarkerBloodPressureSystolic  MarkerKey = "blood_pressure_systolic"
	MarkerBloodPressureDiastolic MarkerKey = "blood_pressure_diastolic"
	MarkerHeartRate              MarkerKey = "heart_rate"
	MarkerECG                    MarkerKey = "ecg"
	MarkerGeneral                MarkerKey = "general"
)

// KnownMarkers lists every key an analysis may carry.
var KnownMarkers = []MarkerKey{
	MarkerBloodGlucose,
	MarkerCholesterolTotal,
	MarkerCholesterolHDL,
	MarkerCholesterolLDL,
	MarkerBloodPressureSystolic,
	MarkerBloodPressureDiastolic,
	MarkerHeartRate,
	MarkerECG,
	MarkerGeneral,
}

// IsKnownMarker reports whether k is in KnownMarkers.
func IsKnownMarker(k MarkerKey) bool {
	for _, m := range KnownMarkers {
		if m == k {
			return true
		}
	}
	return false
}

// MarkerStatus enum
type MarkerStatus string

const (
	MarkerNormal    MarkerStatus = "normal"
	MarkerAttention MarkerStatus = "attention"
)

// Marker value object. Numeric readings use Value, textual findings use Text.
type Marker struct {
	Value     *float64     `json:"value,omitempty"`
	Text      string       `json:"text,omitempty"`
	Unit      string       `json:"unit,omitempty"`
	Status    MarkerStatus `json:"status"`
	Reference string       `json:"reference,omitempty"`
}

// Analysis is the structured marker set derived from one exam
type Analysis struct {
	Markers         map[MarkerKey]Marker `json:"markers"`
	Summary         string               `json:"summary"`
	Recommendations []string             `json:"recommendations"`
}

// Marker returns the marker stored under k, if any.
func (a *Analysis) Marker(k MarkerKey) (Marker, bool) {
	if a == nil || a.Markers == nil {
		return Marker{}, false
	}
	m, ok := a.Markers[k]
	return m, ok
}

// Has reports whether any of keys is present.
func (a *Analysis) Has(keys ...MarkerKey) bool {
	for _, k := range keys {
		if _, ok := a.Marker(k); ok {
			return true
		}
	}
	return false
}

// InAttention reports whether k is present and flagged.
func (a *Analysis) InAttention(k MarkerKey) bool {
	m, ok := a.Marker(k)
	return ok && m.Status == MarkerAttention
}

func num(v float64) *float64 { return &v }

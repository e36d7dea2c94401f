package insights

import (
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/health-insight/internal/domain/exams"
)

// Payload holds the markers that justified an insight. One concrete type per category.
type Payload interface {
	Category() Category
}

// CardiovascularData payload
type CardiovascularData struct {
	BloodPressureSystolic  *exams.Marker `json:"blood_pressure_systolic,omitempty"`
	BloodPressureDiastolic *exams.Marker `json:"blood_pressure_diastolic,omitempty"`
	HeartRate              *exams.Marker `json:"heart_rate,omitempty"`
	CholesterolTotal       *exams.Marker `json:"cholesterol_total,omitempty"`
	CholesterolHDL         *exams.Marker `json:"cholesterol_hdl,omitempty"`
	CholesterolLDL         *exams.Marker `json:"cholesterol_ldl,omitempty"`
}

func (CardiovascularData) Category() Category { return CategoryCardiovascular }

// NutritionData payload
type NutritionData struct {
	CholesterolTotal *exams.Marker `json:"cholesterol_total,omitempty"`
	CholesterolHDL   *exams.Marker `json:"cholesterol_hdl,omitempty"`
	CholesterolLDL   *exams.Marker `json:"cholesterol_ldl,omitempty"`
	BloodGlucose     *exams.Marker `json:"blood_glucose,omitempty"`
}

func (NutritionData) Category() Category { return CategoryNutrition }

// MetabolismData payload
type MetabolismData struct {
	BloodGlucose *exams.Marker `json:"blood_glucose,omitempty"`
}

func (MetabolismData) Category() Category { return CategoryMetabolism }

// EncodePayload serializes p for storage. A nil payload encodes as an empty object.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// DecodePayload restores the concrete payload for category c.
func DecodePayload(c Category, raw []byte) (Payload, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var (
		p   Payload
		err error
	)
	switch c {
	case CategoryCardiovascular:
		var d CardiovascularData
		err = json.Unmarshal(raw, &d)
		p = d
	case CategoryNutrition:
		var d NutritionData
		err = json.Unmarshal(raw, &d)
		p = d
	case CategoryMetabolism:
		var d MetabolismData
		err = json.Unmarshal(raw, &d)
		p = d
	default:
		return nil, fmt.Errorf("unknown insight category %q", c)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", c, err)
	}
	return p, nil
}

// UnmarshalJSON restores Data as the variant that matches Category.
func (in *Insight) UnmarshalJSON(b []byte) error {
	type alias Insight
	aux := struct {
		*alias
		Data json.RawMessage `json:"data,omitempty"`
	}{alias: (*alias)(in)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		in.Data = nil
		return nil
	}
	p, err := DecodePayload(in.Category, aux.Data)
	if err != nil {
		return err
	}
	in.Data = p
	return nil
}

func markerRef(a *exams.Analysis, k exams.MarkerKey) *exams.Marker {
	m, ok := a.Marker(k)
	if !ok {
		return nil
	}
	return &m
}

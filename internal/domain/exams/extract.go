package exams

import (
	"context"
	"strings"
)

// ExtractRequest is what a MarkerExtractor gets to look at.
type ExtractRequest struct {
	Type       string
	RawResults string
	FileRef    string
}

// TemplateExtractor is the deterministic MarkerExtractor. It ignores the file and
// raw results and picks a fixed panel from the exam type.
type TemplateExtractor struct{}

func (TemplateExtractor) Extract(_ context.Context, req ExtractRequest) (*Analysis, error) {
	return ExtractTemplate(req.Type), nil
}

// ExtractTemplate builds the marker set for an exam type.
func ExtractTemplate(examType string) *Analysis {
	t := strings.ToLower(examType)
	switch {
	case strings.Contains(t, "blood"), strings.Contains(t, "lab"):
		return labPanel()
	case strings.Contains(t, "cardiac"), strings.Contains(t, "cardio"):
		return cardiacPanel()
	default:
		return generalPanel()
	}
}

func labPanel() *Analysis {
	return &Analysis{
		Markers: map[MarkerKey]Marker{
			MarkerBloodGlucose: {
				Value: num(95), Unit: "mg/dL", Status: MarkerNormal, Reference: "70-99 mg/dL",
			},
			MarkerCholesterolTotal: {
				Value: num(180), Unit: "mg/dL", Status: MarkerNormal, Reference: "<200 mg/dL",
			},
			MarkerCholesterolHDL: {
				Value: num(55), Unit: "mg/dL", Status: MarkerNormal, Reference: ">40 mg/dL",
			},
			MarkerCholesterolLDL: {
				Value: num(110), Unit: "mg/dL", Status: MarkerNormal, Reference: "<130 mg/dL",
			},
		},
		Summary: "Exame de sangue com glicemia e perfil lipídico dentro dos valores de referência.",
		Recommendations: []string{
			"Manter alimentação equilibrada, rica em fibras e pobre em gorduras saturadas.",
			"Praticar atividade física regular, ao menos 150 minutos por semana.",
			"Repetir o exame anualmente ou conforme orientação médica.",
		},
	}
}

func cardiacPanel() *Analysis {
	return &Analysis{
		Markers: map[MarkerKey]Marker{
			MarkerBloodPressureSystolic: {
				Value: num(120), Unit: "mmHg", Status: MarkerNormal, Reference: "90-120 mmHg",
			},
			MarkerBloodPressureDiastolic: {
				Value: num(80), Unit: "mmHg", Status: MarkerNormal, Reference: "60-80 mmHg",
			},
			MarkerHeartRate: {
				Value: num(72), Unit: "bpm", Status: MarkerNormal, Reference: "60-100 bpm",
			},
			MarkerECG: {
				Text: "Ritmo sinusal normal", Status: MarkerNormal, Reference: "Ritmo sinusal",
			},
		},
		Summary: "Avaliação cardíaca com pressão arterial, frequência cardíaca e ECG normais.",
		Recommendations: []string{
			"Monitorar a pressão arterial periodicamente.",
			"Reduzir o consumo de sal e evitar o tabagismo.",
			"Manter acompanhamento cardiológico anual.",
		},
	}
}

func generalPanel() *Analysis {
	return &Analysis{
		Markers: map[MarkerKey]Marker{
			MarkerGeneral: {
				Text: "Sem alterações relevantes", Status: MarkerNormal,
			},
		},
		Summary: "Exame sem achados relevantes.",
		Recommendations: []string{
			"Manter hábitos saudáveis.",
			"Seguir o acompanhamento médico de rotina.",
		},
	}
}

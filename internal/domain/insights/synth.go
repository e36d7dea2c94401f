package insights

import "github.com/bryanwahyu/health-insight/internal/domain/exams"

var (
	cholesterolMarkers   = []exams.MarkerKey{exams.MarkerCholesterolTotal, exams.MarkerCholesterolHDL, exams.MarkerCholesterolLDL}
	bloodPressureMarkers = []exams.MarkerKey{exams.MarkerBloodPressureSystolic, exams.MarkerBloodPressureDiastolic}
)

// Synthesize produces at most one draft per category, in Categories order.
// Categories whose markers are absent are skipped.
func Synthesize(a *exams.Analysis, risk exams.RiskLevel) []Draft {
	sev := SeverityFromRisk(risk)
	alert := risk != exams.RiskNormal

	out := make([]Draft, 0, len(Categories))
	if d, ok := cardiovascular(a, alert); ok {
		out = append(out, d)
	}
	if d, ok := nutrition(a, alert); ok {
		out = append(out, d)
	}
	if d, ok := metabolism(a, alert); ok {
		out = append(out, d)
	}
	for i := range out {
		out[i].Severity = sev
	}
	return out
}

func cardiovascular(a *exams.Analysis, alert bool) (Draft, bool) {
	if !a.Has(bloodPressureMarkers...) && !a.Has(exams.MarkerHeartRate) && !a.Has(cholesterolMarkers...) {
		return Draft{}, false
	}
	d := Draft{
		Category: CategoryCardiovascular,
		Data: CardiovascularData{
			BloodPressureSystolic:  markerRef(a, exams.MarkerBloodPressureSystolic),
			BloodPressureDiastolic: markerRef(a, exams.MarkerBloodPressureDiastolic),
			HeartRate:              markerRef(a, exams.MarkerHeartRate),
			CholesterolTotal:       markerRef(a, exams.MarkerCholesterolTotal),
			CholesterolHDL:         markerRef(a, exams.MarkerCholesterolHDL),
			CholesterolLDL:         markerRef(a, exams.MarkerCholesterolLDL),
		},
	}
	if alert {
		d.Title = "Atenção Cardiovascular"
		d.Description = "Alguns indicadores cardiovasculares estão fora da faixa de referência."
		d.Recommendation = "Agende uma consulta com um cardiologista e monitore a pressão arterial regularmente."
	} else {
		d.Title = "Saúde Cardiovascular"
		d.Description = "Seus indicadores cardiovasculares estão dentro da faixa de referência."
		d.Recommendation = "Mantenha a prática regular de exercícios aeróbicos e uma dieta equilibrada."
	}
	return d, true
}

func nutrition(a *exams.Analysis, alert bool) (Draft, bool) {
	if !a.Has(cholesterolMarkers...) && !a.Has(exams.MarkerBloodGlucose) {
		return Draft{}, false
	}
	d := Draft{
		Category: CategoryNutrition,
		Data: NutritionData{
			CholesterolTotal: markerRef(a, exams.MarkerCholesterolTotal),
			CholesterolHDL:   markerRef(a, exams.MarkerCholesterolHDL),
			CholesterolLDL:   markerRef(a, exams.MarkerCholesterolLDL),
			BloodGlucose:     markerRef(a, exams.MarkerBloodGlucose),
		},
	}
	if alert {
		d.Title = "Atenção Nutricional"
		d.Description = "Seu perfil lipídico ou glicêmico indica necessidade de ajustes na alimentação."
		d.Recommendation = "Reduza açúcares e gorduras saturadas e procure orientação de um nutricionista."
	} else {
		d.Title = "Perfil Nutricional"
		d.Description = "Seu perfil lipídico e glicêmico está adequado."
		d.Recommendation = "Continue com uma alimentação variada, rica em fibras, frutas e vegetais."
	}
	return d, true
}

func metabolism(a *exams.Analysis, alert bool) (Draft, bool) {
	if !a.Has(exams.MarkerBloodGlucose) {
		return Draft{}, false
	}
	d := Draft{
		Category: CategoryMetabolism,
		Data:     MetabolismData{BloodGlucose: markerRef(a, exams.MarkerBloodGlucose)},
	}
	if alert {
		d.Title = "Controle Metabólico"
		d.Description = "Seus resultados sugerem atenção ao controle metabólico."
		d.Recommendation = "Acompanhe a glicemia com seu médico e evite longos períodos sem atividade física."
	} else {
		d.Title = "Metabolismo Adequado"
		d.Description = "Sua glicemia está dentro da faixa de referência."
		d.Recommendation = "Mantenha horários regulares de refeição e boa qualidade de sono."
	}
	return d, true
}

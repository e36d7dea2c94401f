package exams

// riskMarkers are the markers the classifier inspects. Heart rate is not one of
// them, for either the count or the anomaly flag.
var riskMarkers = []MarkerKey{
	MarkerBloodPressureSystolic,
	MarkerBloodPressureDiastolic,
	MarkerCholesterolTotal,
	MarkerCholesterolLDL,
	MarkerBloodGlucose,
	MarkerECG,
}

// RiskFactors counts inspected markers flagged for attention.
func RiskFactors(a *Analysis) int {
	n := 0
	for _, k := range riskMarkers {
		if a.InAttention(k) {
			n++
		}
	}
	return n
}

// ClassifyRisk maps an analysis to a risk level and anomaly flag. It never fails;
// absent markers and a nil analysis count as not flagged.
func ClassifyRisk(a *Analysis) (RiskLevel, bool) {
	factors := RiskFactors(a)
	anomaly := factors > 0

	switch {
	case factors >= 3:
		return RiskHigh, anomaly
	case factors >= 1:
		return RiskAttention, anomaly
	default:
		return RiskNormal, anomaly
	}
}

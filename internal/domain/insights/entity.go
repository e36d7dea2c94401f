package insights

import (
	"time"

	"github.com/bryanwahyu/health-insight/internal/domain/exams"
)

// InsightID identifier type
type InsightID string

// Category enum. The set is closed.
type Category string

const (
	CategoryCardiovascular Category = "Cardiovascular"
	CategoryNutrition      Category = "Nutrition"
	CategoryMetabolism     Category = "Metabolism"
)

// Categories in generation order.
var Categories = []Category{CategoryCardiovascular, CategoryNutrition, CategoryMetabolism}

// Valid reports whether c is one of Categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryCardiovascular, CategoryNutrition, CategoryMetabolism:
		return true
	}
	return false
}

// Severity enum, same values as exams.RiskLevel
type Severity string

const (
	SeverityNormal    Severity = "normal"
	SeverityAttention Severity = "attention"
	SeverityHigh      Severity = "high"
)

// SeverityFromRisk snapshots an exam risk level as an insight severity.
func SeverityFromRisk(r exams.RiskLevel) Severity {
	switch r {
	case exams.RiskHigh:
		return SeverityHigh
	case exams.RiskAttention:
		return SeverityAttention
	default:
		return SeverityNormal
	}
}

// Insight is a generated health observation owned by one user
type Insight struct {
	ID             InsightID     `json:"id"`
	UserID         string        `json:"user_id"`
	Category       Category      `json:"category"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Recommendation string        `json:"recommendation"`
	Severity       Severity      `json:"severity"`
	SourceExamID   *exams.ExamID `json:"source_exam_id,omitempty"`
	Automated      bool          `json:"automated"`
	Data           Payload       `json:"data,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Draft is an insight before it gets an identity and an owner.
type Draft struct {
	Category       Category
	Title          string
	Description    string
	Recommendation string
	Severity       Severity
	Data           Payload
}

// FromExam turns a draft into an automated insight tied to exam and its owner.
func (d Draft) FromExam(id InsightID, exam *exams.Exam, now time.Time) *Insight {
	examID := exam.ID
	return &Insight{
		ID:             id,
		UserID:         exam.UserID,
		Category:       d.Category,
		Title:          d.Title,
		Description:    d.Description,
		Recommendation: d.Recommendation,
		Severity:       d.Severity,
		SourceExamID:   &examID,
		Automated:      true,
		Data:           d.Data,
		CreatedAt:      now,
	}
}

package events

import (
	"context"
	"time"
)

// TypeExamAnalyzed is emitted after an analysis commits.
const TypeExamAnalyzed = "exam.analyzed"

// ExamAnalyzed is the payload of TypeExamAnalyzed
type ExamAnalyzed struct {
	Type       string    `json:"type"`
	ExamID     string    `json:"exam_id"`
	UserID     string    `json:"user_id"`
	RiskLevel  string    `json:"risk_level"`
	Anomaly    bool      `json:"anomaly"`
	InsightIDs []string  `json:"insight_ids"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher port (outbound notification of domain events)
type Publisher interface {
	PublishExamAnalyzed(ctx context.Context, e ExamAnalyzed) error
	Close() error
}

package exams

import (
	domain "github.com/bryanwahyu/health-insight/internal/domain/exams"
	"github.com/bryanwahyu/health-insight/internal/domain/insights"
)

// Failure classifies an unsuccessful analysis
type Failure string

const (
	FailureNone         Failure = ""
	FailureNotFound     Failure = "not_found"
	FailureUnauthorized Failure = "unauthorized"
	FailureInvalidState Failure = "invalid_state"
	FailurePersistence  Failure = "persistence_failure"
	FailureExtraction   Failure = "extraction_failure"
)

// AnalysisResult is what Analyze returns in every case. Callers branch on
// Success/Failure, never on a Go error.
type AnalysisResult struct {
	Exam     *domain.Exam        `json:"exam"`
	Insights []*insights.Insight `json:"insights"`
	Success  bool                `json:"success"`
	Message  string              `json:"message"`
	Failure  Failure             `json:"failure,omitempty"`

	// Cause is the underlying error, kept for logging and status mapping.
	Cause error `json:"-"`
}

func failed(f Failure, msg string, cause error) AnalysisResult {
	return AnalysisResult{
		Insights: []*insights.Insight{},
		Message:  msg,
		Failure:  f,
		Cause:    cause,
	}
}

package exams

import (
	"context"
	"io"
)

// Repository port (persistence of exams)
type Repository interface {
	FindByID(ctx context.Context, id ExamID) (*Exam, error)
	FindByUserID(ctx context.Context, userID string) ([]*Exam, error)
	Create(ctx context.Context, e *Exam) error

	// Update applies p. When p touches analysis inputs the write is conditional on
	// the row being unprocessed, and a processed row yields ErrAnalysisFieldsImmutable.
	Update(ctx context.Context, id ExamID, p Patch) (*Exam, error)

	// UpdateWithAnalysis sets the analysis fields and processed=true only when the
	// row is still unprocessed, returning ErrAlreadyProcessed otherwise.
	UpdateWithAnalysis(ctx context.Context, id ExamID, a *Analysis, anomaly bool, risk RiskLevel) (*Exam, error)
	Delete(ctx context.Context, id ExamID) error
}

// MarkerExtractor derives a marker set from an exam. Implementations may call an
// inference provider; the template one is pure.
type MarkerExtractor interface {
	Extract(ctx context.Context, req ExtractRequest) (*Analysis, error)
}

// FileStore port (where exam files live)
type FileStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

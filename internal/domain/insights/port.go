package insights

import (
	"context"
	"errors"

	"github.com/bryanwahyu/health-insight/internal/domain/exams"
)

// ErrNotFound is returned when an insight id does not resolve.
var ErrNotFound = errors.New("insight not found")

// Repository port for persisting and querying insights
type Repository interface {
	Create(ctx context.Context, in *Insight) error
	FindByID(ctx context.Context, id InsightID) (*Insight, error)
	FindByUserID(ctx context.Context, userID string) ([]*Insight, error)
	FindByExamID(ctx context.Context, examID exams.ExamID) ([]*Insight, error)
	Delete(ctx context.Context, id InsightID) error

	// DeleteAutomatedByExam removes generated insights of one exam and reports how many.
	DeleteAutomatedByExam(ctx context.Context, examID exams.ExamID) (int64, error)
}

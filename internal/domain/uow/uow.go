package uow

import (
	"context"

	"github.com/bryanwahyu/health-insight/internal/domain/exams"
	"github.com/bryanwahyu/health-insight/internal/domain/insights"
)

// Repositories are the stores bound to one unit of work.
type Repositories struct {
	Exams    exams.Repository
	Insights insights.Repository
}

// UnitOfWork runs fn atomically: every write through repos commits together or
// none does. A non-nil error from fn rolls back.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

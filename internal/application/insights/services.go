package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/health-insight/internal/application"
	"github.com/bryanwahyu/health-insight/internal/domain/exams"
	domain "github.com/bryanwahyu/health-insight/internal/domain/insights"
	"github.com/bryanwahyu/health-insight/internal/domain/uow"
)

// ErrNotProcessed is returned by Regenerate for an exam without a committed analysis.
var ErrNotProcessed = errors.New("exam has not been analyzed")

// Service implements insight read/delete use cases and regeneration
type Service struct {
	Repo  domain.Repository
	Tx    uow.UnitOfWork
	Clock application.Clock
	NewID application.IDGenerator
	Log   *slog.Logger
}

// ListByUser returns every insight of userID, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*domain.Insight, error) {
	return s.Repo.FindByUserID(ctx, userID)
}

// ListByExam returns the insights generated from one exam, filtered to userID.
func (s *Service) ListByExam(ctx context.Context, userID string, examID exams.ExamID) ([]*domain.Insight, error) {
	all, err := s.Repo.FindByExamID(ctx, examID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Insight, 0, len(all))
	for _, in := range all {
		if in.UserID == userID {
			out = append(out, in)
		}
	}
	return out, nil
}

// Get returns one insight owned by userID.
func (s *Service) Get(ctx context.Context, userID string, id domain.InsightID) (*domain.Insight, error) {
	in, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.UserID != userID {
		return nil, application.ErrForbidden
	}
	return in, nil
}

// Delete removes one insight owned by userID.
func (s *Service) Delete(ctx context.Context, userID string, id domain.InsightID) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.Repo.Delete(ctx, id)
}

// Regenerate rebuilds the automated insights of an analyzed exam from its
// persisted analysis and risk level. Old automated insights are replaced in the
// same unit of work, so the call can be repeated safely.
func (s *Service) Regenerate(ctx context.Context, userID string, examID exams.ExamID) ([]*domain.Insight, error) {
	if s.Tx == nil {
		return nil, fmt.Errorf("%w: unit of work", application.ErrUnavailable)
	}
	var created []*domain.Insight
	err := s.Tx.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		created = nil

		exam, err := repos.Exams.FindByID(ctx, examID)
		if err != nil {
			return err
		}
		if !exam.OwnedBy(userID) {
			return application.ErrForbidden
		}
		if !exam.Processed || exam.Analysis == nil {
			return ErrNotProcessed
		}

		removed, err := repos.Insights.DeleteAutomatedByExam(ctx, exam.ID)
		if err != nil {
			return fmt.Errorf("removing previous insights: %w", err)
		}

		now := s.now()
		for _, d := range domain.Synthesize(exam.Analysis, exam.RiskLevel) {
			in := d.FromExam(domain.InsightID(s.newID()), exam, now)
			if err := repos.Insights.Create(ctx, in); err != nil {
				return fmt.Errorf("creating %s insight: %w", d.Category, err)
			}
			created = append(created, in)
		}
		s.log().Info("insights regenerated", "exam_id", exam.ID, "removed", removed, "created", len(created))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = []*domain.Insight{}
	}
	return created, nil
}

// helper
func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

func (s *Service) newID() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

func (s *Service) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

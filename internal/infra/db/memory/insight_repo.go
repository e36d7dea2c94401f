package memory

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/health-insight/internal/domain/exams"
	domain "github.com/bryanwahyu/health-insight/internal/domain/insights"
)

var _ domain.Repository = (*InsightRepository)(nil)

// InsightRepository implements insights.Repository over a Store
type InsightRepository struct {
	store  *Store
	staged *state
}

func (r *InsightRepository) Create(_ context.Context, in *domain.Insight) error {
	return r.store.write(r.staged, "insights.create", func(st *state) error {
		if _, exists := st.insights[in.ID]; exists {
			return fmt.Errorf("insight %s already exists", in.ID)
		}
		st.insights[in.ID] = cloneInsight(in)
		return nil
	})
}

func (r *InsightRepository) FindByID(_ context.Context, id domain.InsightID) (*domain.Insight, error) {
	var out *domain.Insight
	r.store.read(r.staged, func(st *state) {
		if in, ok := st.insights[id]; ok {
			out = cloneInsight(in)
		}
	})
	if out == nil {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

func (r *InsightRepository) FindByUserID(_ context.Context, userID string) ([]*domain.Insight, error) {
	return r.filter(func(in *domain.Insight) bool { return in.UserID == userID }), nil
}

func (r *InsightRepository) FindByExamID(_ context.Context, examID exams.ExamID) ([]*domain.Insight, error) {
	return r.filter(func(in *domain.Insight) bool {
		return in.SourceExamID != nil && *in.SourceExamID == examID
	}), nil
}

func (r *InsightRepository) Delete(_ context.Context, id domain.InsightID) error {
	return r.store.write(r.staged, "insights.delete", func(st *state) error {
		if _, ok := st.insights[id]; !ok {
			return domain.ErrNotFound
		}
		delete(st.insights, id)
		return nil
	})
}

func (r *InsightRepository) DeleteAutomatedByExam(_ context.Context, examID exams.ExamID) (int64, error) {
	var n int64
	err := r.store.write(r.staged, "insights.delete_automated", func(st *state) error {
		for id, in := range st.insights {
			if in.Automated && in.SourceExamID != nil && *in.SourceExamID == examID {
				delete(st.insights, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *InsightRepository) filter(keep func(*domain.Insight) bool) []*domain.Insight {
	out := []*domain.Insight{}
	r.store.read(r.staged, func(st *state) {
		for _, in := range st.insights {
			if keep(in) {
				out = append(out, cloneInsight(in))
			}
		}
	})
	sortInsights(out)
	return out
}

package memory

import (
	"context"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/health-insight/internal/domain/exams"
)

var _ domain.Repository = (*ExamRepository)(nil)

// ExamRepository implements exams.Repository over a Store
type ExamRepository struct {
	store  *Store
	staged *state
}

func (r *ExamRepository) FindByID(_ context.Context, id domain.ExamID) (*domain.Exam, error) {
	var out *domain.Exam
	r.store.read(r.staged, func(st *state) {
		if e, ok := st.exams[id]; ok {
			out = cloneExam(e)
		}
	})
	if out == nil {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

func (r *ExamRepository) FindByUserID(_ context.Context, userID string) ([]*domain.Exam, error) {
	out := []*domain.Exam{}
	r.store.read(r.staged, func(st *state) {
		for _, e := range st.exams {
			if e.UserID == userID {
				out = append(out, cloneExam(e))
			}
		}
	})
	sortExams(out)
	return out, nil
}

func (r *ExamRepository) Create(_ context.Context, e *domain.Exam) error {
	return r.store.write(r.staged, "exams.create", func(st *state) error {
		if _, exists := st.exams[e.ID]; exists {
			return fmt.Errorf("exam %s already exists", e.ID)
		}
		st.exams[e.ID] = cloneExam(e)
		return nil
	})
}

func (r *ExamRepository) Update(_ context.Context, id domain.ExamID, p domain.Patch) (*domain.Exam, error) {
	var out *domain.Exam
	err := r.store.write(r.staged, "exams.update", func(st *state) error {
		e, ok := st.exams[id]
		if !ok {
			return domain.ErrNotFound
		}
		if e.Processed && p.TouchesAnalysisInputs() {
			return domain.ErrAnalysisFieldsImmutable
		}
		p.Apply(e)
		e.UpdatedAt = time.Now().UTC()
		out = cloneExam(e)
		return nil
	})
	return out, err
}

func (r *ExamRepository) UpdateWithAnalysis(_ context.Context, id domain.ExamID, a *domain.Analysis, anomaly bool, risk domain.RiskLevel) (*domain.Exam, error) {
	var out *domain.Exam
	err := r.store.write(r.staged, "exams.update_with_analysis", func(st *state) error {
		e, ok := st.exams[id]
		if !ok {
			return domain.ErrNotFound
		}
		if e.Processed {
			return domain.ErrAlreadyProcessed
		}
		e.Analysis = cloneAnalysis(a)
		e.Anomaly = anomaly
		e.RiskLevel = risk
		e.Processed = true
		e.Status = domain.StatusAnalyzed
		e.UpdatedAt = time.Now().UTC()
		out = cloneExam(e)
		return nil
	})
	return out, err
}

func (r *ExamRepository) Delete(_ context.Context, id domain.ExamID) error {
	return r.store.write(r.staged, "exams.delete", func(st *state) error {
		if _, ok := st.exams[id]; !ok {
			return domain.ErrNotFound
		}
		delete(st.exams, id)
		return nil
	})
}

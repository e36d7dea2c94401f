package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bryanwahyu/health-insight/internal/domain/exams"
	"github.com/bryanwahyu/health-insight/internal/domain/insights"
	"github.com/bryanwahyu/health-insight/internal/domain/uow"
)

type state struct {
	exams    map[exams.ExamID]*exams.Exam
	insights map[insights.InsightID]*insights.Insight
}

func newState() *state {
	return &state{
		exams:    make(map[exams.ExamID]*exams.Exam),
		insights: make(map[insights.InsightID]*insights.Insight),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.exams {
		c.exams[k] = cloneExam(v)
	}
	for k, v := range s.insights {
		c.insights[k] = cloneInsight(v)
	}
	return c
}

var _ uow.UnitOfWork = (*Store)(nil)

// Store keeps exams and insights in process memory. Writes and units of work are
// serialized; a unit of work stages its writes on a copy and swaps it in on success.
type Store struct {
	tx sync.Mutex   // held by every writer and for the whole of a unit of work
	mu sync.RWMutex // guards st
	st *state

	// OnWrite, when set, is called before every write with the operation name.
	// A non-nil error aborts the write.
	OnWrite func(op string) error
}

func NewStore() *Store {
	return &Store{st: newState()}
}

// Exams returns the exam repository over committed state.
func (s *Store) Exams() *ExamRepository { return &ExamRepository{store: s} }

// Insights returns the insight repository over committed state.
func (s *Store) Insights() *InsightRepository { return &InsightRepository{store: s} }

// Do implements uow.UnitOfWork.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos uow.Repositories) error) error {
	s.tx.Lock()
	defer s.tx.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	staged := s.st.clone()
	s.mu.RUnlock()

	err := fn(ctx, uow.Repositories{
		Exams:    &ExamRepository{store: s, staged: staged},
		Insights: &InsightRepository{store: s, staged: staged},
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.st = staged
	s.mu.Unlock()
	return nil
}

func (s *Store) read(staged *state, fn func(st *state)) {
	if staged != nil {
		fn(staged)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.st)
}

func (s *Store) write(staged *state, op string, fn func(st *state) error) error {
	if staged == nil {
		s.tx.Lock()
		defer s.tx.Unlock()
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if s.OnWrite != nil {
		if err := s.OnWrite(op); err != nil {
			return err
		}
	}
	if staged != nil {
		return fn(staged)
	}
	return fn(s.st)
}

func cloneExam(e *exams.Exam) *exams.Exam {
	c := *e
	c.Analysis = cloneAnalysis(e.Analysis)
	return &c
}

func cloneAnalysis(a *exams.Analysis) *exams.Analysis {
	if a == nil {
		return nil
	}
	c := &exams.Analysis{
		Markers:         make(map[exams.MarkerKey]exams.Marker, len(a.Markers)),
		Summary:         a.Summary,
		Recommendations: append([]string(nil), a.Recommendations...),
	}
	for k, m := range a.Markers {
		if m.Value != nil {
			v := *m.Value
			m.Value = &v
		}
		c.Markers[k] = m
	}
	return c
}

func cloneInsight(in *insights.Insight) *insights.Insight {
	c := *in
	if in.SourceExamID != nil {
		id := *in.SourceExamID
		c.SourceExamID = &id
	}
	return &c
}

func newestFirst(a, b time.Time, idA, idB string) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return idA > idB
}

func sortExams(out []*exams.Exam) {
	sort.Slice(out, func(i, j int) bool {
		return newestFirst(out[i].CreatedAt, out[j].CreatedAt, string(out[i].ID), string(out[j].ID))
	})
}

func sortInsights(out []*insights.Insight) {
	sort.Slice(out, func(i, j int) bool {
		return newestFirst(out[i].CreatedAt, out[j].CreatedAt, string(out[i].ID), string(out[j].ID))
	})
}

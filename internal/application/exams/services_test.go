package exams_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/health-insight/internal/application"
	appexams "github.com/bryanwahyu/health-insight/internal/application/exams"
	"github.com/bryanwahyu/health-insight/internal/domain/ai"
	"github.com/bryanwahyu/health-insight/internal/domain/events"
	"github.com/bryanwahyu/health-insight/internal/domain/exams"
	"github.com/bryanwahyu/health-insight/internal/domain/insights"
	"github.com/bryanwahyu/health-insight/internal/infra/db/memory"
)

var fixedNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

// MockExtractor is a mock implementation of exams.MarkerExtractor
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, req exams.ExtractRequest) (*exams.Analysis, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exams.Analysis), args.Error(1)
}

// MockPublisher is a mock implementation of events.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishExamAnalyzed(ctx context.Context, e events.ExamAnalyzed) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockPublisher) Close() error { return nil }

type fileStoreFunc func(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)

func (f fileStoreFunc) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	return f(ctx, key, r, size, contentType)
}

type fixture struct {
	store  *memory.Store
	svc    *appexams.Service
	mu     sync.Mutex
	writes []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore()}
	var seq int64
	f.svc = &appexams.Service{
		Repo:  f.store.Exams(),
		Tx:    f.store,
		Clock: application.FixedClock{T: fixedNow},
		NewID: func() string { return fmt.Sprintf("id-%d", atomic.AddInt64(&seq, 1)) },
	}
	f.store.OnWrite = func(op string) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.writes = append(f.writes, op)
		return nil
	}
	return f
}

func (f *fixture) seed(t *testing.T, e exams.Exam) exams.ExamID {
	t.Helper()
	if e.RiskLevel == "" {
		e.RiskLevel = exams.RiskNormal
	}
	require.NoError(t, f.store.Exams().Create(context.Background(), &e))
	f.resetWrites()
	return e.ID
}

func (f *fixture) resetWrites() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
}

func (f *fixture) writeOps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fixture) count(op string) int {
	n := 0
	for _, w := range f.writeOps() {
		if w == op {
			n++
		}
	}
	return n
}

func TestAnalyze_BloodTest(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Type: "Blood Test", FileRef: "7/e1/hemograma.pdf", Status: exams.StatusUploaded})

	res := f.svc.Analyze(context.Background(), id, "7")

	require.True(t, res.Success, res.Message)
	assert.Equal(t, appexams.FailureNone, res.Failure)
	require.NotNil(t, res.Exam)
	assert.True(t, res.Exam.Processed)
	assert.Equal(t, exams.RiskNormal, res.Exam.RiskLevel)
	assert.False(t, res.Exam.Anomaly)
	assert.Equal(t, exams.StatusAnalyzed, res.Exam.Status)
	require.NotNil(t, res.Exam.Analysis)

	require.Len(t, res.Insights, 3)
	for i, c := range insights.Categories {
		in := res.Insights[i]
		assert.Equal(t, c, in.Category)
		assert.Equal(t, "7", in.UserID)
		require.NotNil(t, in.SourceExamID)
		assert.Equal(t, id, *in.SourceExamID)
		assert.True(t, in.Automated)
		assert.Equal(t, insights.SeverityNormal, in.Severity)
		assert.Equal(t, fixedNow, in.CreatedAt)
	}

	assert.Equal(t, 1, f.count("exams.update_with_analysis"))
	assert.Equal(t, 3, f.count("insights.create"))
	assert.Len(t, f.writeOps(), 4)

	stored, err := f.store.Insights().FindByExamID(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestAnalyze_Cardiac(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Type: "Cardiac", FileRef: "ecg.pdf"})

	res := f.svc.Analyze(context.Background(), id, "7")

	require.True(t, res.Success)
	assert.Equal(t, exams.RiskNormal, res.Exam.RiskLevel)
	require.Len(t, res.Insights, 1)
	assert.Equal(t, insights.CategoryCardiovascular, res.Insights[0].Category)
}

func TestAnalyze_GenericTypeCreatesNoInsights(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Type: "X-Ray", FileRef: "rx.png"})

	res := f.svc.Analyze(context.Background(), id, "7")

	require.True(t, res.Success)
	assert.True(t, res.Exam.Processed)
	assert.NotNil(t, res.Insights)
	assert.Empty(t, res.Insights)
	assert.Equal(t, []string{"exams.update_with_analysis"}, f.writeOps())
}

func TestAnalyze_NoFile(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Type: "Blood Test"})

	res := f.svc.Analyze(context.Background(), id, "7")

	assert.False(t, res.Success)
	assert.Equal(t, appexams.FailureInvalidState, res.Failure)
	assert.Nil(t, res.Exam)
	assert.Empty(t, res.Insights)
	assert.Empty(t, f.writeOps())
}

func TestAnalyze_AlreadyProcessed(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, exams.Exam{
		ID: "e1", UserID: "7", Type: "Blood Test", FileRef: "x.pdf",
		Processed: true, Analysis: exams.ExtractTemplate("Blood Test"),
	})

	res := f.svc.Analyze(context.Background(), id, "7")

	assert.Equal(t, appexams.FailureInvalidState, res.Failure)
	assert.ErrorIs(t, res.Cause, exams.ErrAlreadyProcessed)
	assert.Empty(t, f.writeOps())
}

func TestAnalyze_WrongOwner(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Type: "Blood Test", FileRef: "x.pdf"})

	res := f.svc.Analyze(context.Background(), id, "8")

	assert.False(t, res.Success)
	assert.Equal(t, appexams.FailureUnauthorized, res.Failure)
	assert.Empty(t, f.writeOps())
}

func TestAnalyze_NotFound(t *testing.T) {
	f := newFixture(t)

	res := f.svc.Analyze(context.Background(), "missing", "7")

	assert.Equal(t, appexams.FailureNotFound, res.Failure)
	assert.NotEmpty(t, res.Message)
	assert.Empty(t, f.writeOps())
}

func TestAnalyze_SecondCallIsInvalidState(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Type: "Blood Test", FileRef: "x.pdf"})

	first := f.svc.Analyze(context.Background(), id, "7")
	require.True(t, first.Success)
	f.resetWrites()

	second := f.svc.Analyze(context.Background(), id, "7")

	assert.Equal(t, appexams.FailureInvalidState, second.Failure)
	assert.Empty(t, f.writeOps())
	all, err := f.store.Insights().FindByUserID(context.Background(), "7")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAnalyze_ConcurrentCallsOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Type: "Blood Test", FileRef: "x.pdf"})

	const callers = 16
	results := make([]appexams.AnalysisResult, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = f.svc.Analyze(context.Background(), id, "7")
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, r := range results {
		if r.Success {
			wins++
			continue
		}
		assert.Equal(t, appexams.FailureInvalidState, r.Failure)
	}
	assert.Equal(t, 1, wins)

	all, err := f.store.Insights().FindByExamID(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAnalyze_HighRiskFromExtractor(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Type: "Lab", FileRef: "x.pdf", RawResults: "raw"})

	a := exams.ExtractTemplate("Blood Test")
	for _, k := range []exams.MarkerKey{exams.MarkerCholesterolTotal, exams.MarkerCholesterolLDL, exams.MarkerBloodGlucose} {
		m := a.Markers[k]
		m.Status = exams.MarkerAttention
		a.Markers[k] = m
	}
	ext := new(MockExtractor)
	ext.On("Extract", mock.Anything, exams.ExtractRequest{Type: "Lab", RawResults: "raw", FileRef: "x.pdf"}).Return(a, nil).Once()
	f.svc.Extractor = ext

	res := f.svc.Analyze(context.Background(), id, "7")

	require.True(t, res.Success)
	assert.Equal(t, exams.RiskHigh, res.Exam.RiskLevel)
	assert.True(t, res.Exam.Anomaly)
	require.Len(t, res.Insights, 3)
	assert.Equal(t, "Atenção Cardiovascular", res.Insights[0].Title)
	for _, in := range res.Insights {
		assert.Equal(t, insights.SeverityHigh, in.Severity)
	}
	ext.AssertExpectations(t)
}

func TestAnalyze_ExtractorFailure(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Type: "Lab", FileRef: "x.pdf"})

	ext := new(MockExtractor)
	ext.On("Extract", mock.Anything, mock.Anything).Return(nil, ai.ErrQuotaExceeded)
	f.svc.Extractor = ext

	res := f.svc.Analyze(context.Background(), id, "7")

	assert.Equal(t, appexams.FailureExtraction, res.Failure)
	assert.ErrorIs(t, res.Cause, ai.ErrQuotaExceeded)
	assert.Empty(t, f.writeOps())
}

func TestAnalyze_ExtractorReturnsNoAnalysis(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Type: "Lab", FileRef: "x.pdf"})

	ext := new(MockExtractor)
	ext.On("Extract", mock.Anything, mock.Anything).Return(nil, nil)
	f.svc.Extractor = ext

	res := f.svc.Analyze(context.Background(), id, "7")

	assert.False(t, res.Success)
	assert.Equal(t, appexams.FailureExtraction, res.Failure)
	assert.ErrorIs(t, res.Cause, ai.ErrMalformedResponse)
	assert.Empty(t, f.writeOps())

	e, err := f.store.Exams().FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, e.Processed)
	assert.True(t, e.CanBeAnalyzed())
}

func TestAnalyze_InsightFailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Type: "Blood Test", FileRef: "x.pdf"})

	creates := 0
	f.store.OnWrite = func(op string) error {
		if op == "insights.create" {
			creates++
			if creates == 2 {
				return errors.New("disk full")
			}
		}
		return nil
	}

	res := f.svc.Analyze(context.Background(), id, "7")

	assert.Equal(t, appexams.FailurePersistence, res.Failure)
	e, err := f.store.Exams().FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, e.Processed)
	assert.True(t, e.CanBeAnalyzed())
	all, err := f.store.Insights().FindByUserID(context.Background(), "7")
	require.NoError(t, err)
	assert.Empty(t, all)

	// the exam stays eligible, so a retry succeeds
	f.store.OnWrite = nil
	retry := f.svc.Analyze(context.Background(), id, "7")
	require.True(t, retry.Success)
	assert.Len(t, retry.Insights, 3)
}

func TestAnalyze_ExamUpdateFailureCreatesNoInsights(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Type: "Blood Test", FileRef: "x.pdf"})

	var ops []string
	f.store.OnWrite = func(op string) error {
		ops = append(ops, op)
		if op == "exams.update_with_analysis" {
			return errors.New("connection reset")
		}
		return nil
	}

	res := f.svc.Analyze(context.Background(), id, "7")

	assert.Equal(t, appexams.FailurePersistence, res.Failure)
	assert.Equal(t, []string{"exams.update_with_analysis"}, ops)
}

func TestAnalyze_PublishesEvent(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Type: "Cardiac", FileRef: "x.pdf"})

	pub := new(MockPublisher)
	pub.On("PublishExamAnalyzed", mock.Anything, mock.MatchedBy(func(e events.ExamAnalyzed) bool {
		return e.Type == events.TypeExamAnalyzed && e.ExamID == "e1" && e.UserID == "7" &&
			e.RiskLevel == "normal" && len(e.InsightIDs) == 1
	})).Return(errors.New("broker down")).Once()
	f.svc.Events = pub

	res := f.svc.Analyze(context.Background(), id, "7")

	assert.True(t, res.Success, "a failed publish must not fail the analysis")
	pub.AssertExpectations(t)
}

func TestCreateAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, appexams.CreateExamCommand{UserID: "7", Name: " Hemograma ", Type: "Blood Test"})
	require.NoError(t, err)
	assert.Equal(t, "Hemograma", e.Name)
	assert.Equal(t, exams.StatusPending, e.Status)
	assert.Equal(t, exams.RiskNormal, e.RiskLevel)
	assert.Equal(t, fixedNow, e.Date)
	assert.False(t, e.Processed)

	got, err := f.svc.Get(ctx, "7", e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	_, err = f.svc.Get(ctx, "8", e.ID)
	assert.ErrorIs(t, err, application.ErrForbidden)

	_, err = f.svc.Create(ctx, appexams.CreateExamCommand{UserID: "7", Name: "x"})
	assert.ErrorIs(t, err, application.ErrInvalidInput)
}

func TestUpdate_FreezesAnalysisInputsAfterProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Name: "a", Type: "Blood Test", FileRef: "x.pdf"})
	require.True(t, f.svc.Analyze(ctx, id, "7").Success)

	typ := "Cardiac"
	_, err := f.svc.Update(ctx, "7", id, exams.Patch{Type: &typ})
	assert.ErrorIs(t, err, exams.ErrAnalysisFieldsImmutable)

	name := "renamed"
	e, err := f.svc.Update(ctx, "7", id, exams.Patch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", e.Name)
	assert.True(t, e.Processed)

	analyzed := exams.StatusAnalyzed
	_, err = f.svc.Update(ctx, "7", id, exams.Patch{Status: &analyzed})
	assert.ErrorIs(t, err, application.ErrInvalidInput)

	_, err = f.svc.Update(ctx, "7", id, exams.Patch{})
	assert.ErrorIs(t, err, application.ErrInvalidInput)
}

func TestUpdate_Status(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bare := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Name: "a", Type: "Lab", Status: exams.StatusPending})
	withFile := f.seed(t, exams.Exam{ID: "e2", UserID: "7", Name: "b", Type: "Lab", Status: exams.StatusPending, FileRef: "x.pdf"})

	garbage := exams.Status("garbage")
	_, err := f.svc.Update(ctx, "7", bare, exams.Patch{Status: &garbage})
	assert.ErrorIs(t, err, application.ErrInvalidInput)

	uploaded := exams.StatusUploaded
	_, err = f.svc.Update(ctx, "7", bare, exams.Patch{Status: &uploaded})
	assert.ErrorIs(t, err, application.ErrInvalidInput)

	e, err := f.store.Exams().FindByID(ctx, bare)
	require.NoError(t, err)
	assert.Equal(t, exams.StatusPending, e.Status)

	e, err = f.svc.Update(ctx, "7", withFile, exams.Patch{Status: &uploaded})
	require.NoError(t, err)
	assert.Equal(t, exams.StatusUploaded, e.Status)

	pending := exams.StatusPending
	e, err = f.svc.Update(ctx, "7", withFile, exams.Patch{Status: &pending})
	require.NoError(t, err)
	assert.Equal(t, exams.StatusPending, e.Status)
}

// analyzeAfterFind commits an analysis right after the service reads the exam.
type analyzeAfterFind struct {
	exams.Repository
	once sync.Once
	run  func()
}

func (r *analyzeAfterFind) FindByID(ctx context.Context, id exams.ExamID) (*exams.Exam, error) {
	e, err := r.Repository.FindByID(ctx, id)
	r.once.Do(r.run)
	return e, err
}

func TestUpdate_AnalysisCommittedAfterCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Name: "a", Type: "Blood Test", FileRef: "x.pdf"})

	f.svc.Repo = &analyzeAfterFind{Repository: f.store.Exams(), run: func() {
		_, err := f.store.Exams().UpdateWithAnalysis(ctx, id, exams.ExtractTemplate("Blood Test"), false, exams.RiskNormal)
		require.NoError(t, err)
	}}

	typ := "Cardiac"
	_, err := f.svc.Update(ctx, "7", id, exams.Patch{Type: &typ})
	assert.ErrorIs(t, err, exams.ErrAnalysisFieldsImmutable)

	e, err := f.store.Exams().FindByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, e.Processed)
	assert.Equal(t, "Blood Test", e.Type)
}

func TestAttachFile_MakesExamEligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Type: "Blood Test", Status: exams.StatusPending})

	var gotKey string
	f.svc.Files = fileStoreFunc(func(_ context.Context, key string, r io.Reader, size int64, ct string) (string, error) {
		gotKey = key
		b, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "%PDF", string(b))
		assert.Equal(t, "application/pdf", ct)
		return "s3://exams/" + key, nil
	})

	e, err := f.svc.AttachFile(ctx, "7", id, "../../etc/report.pdf", bytes.NewBufferString("%PDF"), 4, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "7/e1/report.pdf", gotKey)
	assert.Equal(t, "s3://exams/7/e1/report.pdf", e.FileRef)
	assert.Equal(t, exams.StatusUploaded, e.Status)
	assert.True(t, e.CanBeAnalyzed())

	_, err = f.svc.AttachFile(ctx, "8", id, "r.pdf", bytes.NewBufferString("x"), 1, "")
	assert.ErrorIs(t, err, application.ErrForbidden)
}

func TestAttachFile_WithoutStore(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AttachFile(context.Background(), "7", "e1", "r.pdf", bytes.NewBufferString("x"), 1, "")
	assert.ErrorIs(t, err, application.ErrUnavailable)
}

func TestDelete_KeepsInsights(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seed(t, exams.Exam{ID: "e1", UserID: "7", Type: "Blood Test", FileRef: "x.pdf"})
	require.True(t, f.svc.Analyze(ctx, id, "7").Success)

	assert.ErrorIs(t, f.svc.Delete(ctx, "8", id), application.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, "7", id))

	_, err := f.svc.Get(ctx, "7", id)
	assert.ErrorIs(t, err, exams.ErrNotFound)
	left, err := f.store.Insights().FindByUserID(ctx, "7")
	require.NoError(t, err)
	assert.Len(t, left, 3)
}

func TestListByUser(t *testing.T) {
	f := newFixture(t)
	f.seed(t, exams.Exam{ID: "a", UserID: "7", CreatedAt: fixedNow})
	f.seed(t, exams.Exam{ID: "b", UserID: "7", CreatedAt: fixedNow.Add(time.Minute)})
	f.seed(t, exams.Exam{ID: "c", UserID: "8", CreatedAt: fixedNow})

	list, err := f.svc.ListByUser(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, exams.ExamID("b"), list[0].ID)
}

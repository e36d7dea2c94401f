package exams

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/health-insight/internal/application"
	"github.com/bryanwahyu/health-insight/internal/domain/ai"
	domain "github.com/bryanwahyu/health-insight/internal/domain/exams"
	"github.com/bryanwahyu/health-insight/internal/domain/events"
	"github.com/bryanwahyu/health-insight/internal/domain/insights"
	"github.com/bryanwahyu/health-insight/internal/domain/uow"
)

// Service implements the exam use cases, including the analysis pipeline.
// It holds no mutable state and is safe for concurrent use.
type Service struct {
	Repo      domain.Repository
	Tx        uow.UnitOfWork
	Extractor domain.MarkerExtractor
	Files     domain.FileStore // optional
	Events    events.Publisher // optional
	Clock     application.Clock
	NewID     application.IDGenerator
	Log       *slog.Logger
}

//
// ==== ANALYSIS ====
//

// Analyze runs extract → classify → persist → synthesize for one exam owned by
// userID. The exam update and every insight create commit as one unit.
func (s *Service) Analyze(ctx context.Context, examID domain.ExamID, userID string) AnalysisResult {
	log := s.log().With("exam_id", examID, "user_id", userID)

	exam, err := s.Repo.FindByID(ctx, examID)
	if errors.Is(err, domain.ErrNotFound) {
		return failed(FailureNotFound, fmt.Sprintf("exam %s not found", examID), err)
	}
	if err != nil {
		log.Error("loading exam failed", "error", err)
		return failed(FailurePersistence, "could not load exam", err)
	}
	if !exam.OwnedBy(userID) {
		return failed(FailureUnauthorized, "exam belongs to another user", application.ErrForbidden)
	}
	if !exam.CanBeAnalyzed() {
		if exam.Processed {
			return failed(FailureInvalidState, "exam was already analyzed", domain.ErrAlreadyProcessed)
		}
		return failed(FailureInvalidState, "exam has no file attached", nil)
	}

	extractor := s.Extractor
	if extractor == nil {
		extractor = domain.TemplateExtractor{}
	}
	analysis, err := extractor.Extract(ctx, domain.ExtractRequest{
		Type:       exam.Type,
		RawResults: exam.RawResults,
		FileRef:    exam.FileRef,
	})
	if err != nil {
		log.Error("marker extraction failed", "error", err)
		return failed(FailureExtraction, "could not extract markers from exam", err)
	}
	if analysis == nil {
		log.Error("marker extraction returned no analysis")
		return failed(FailureExtraction, "could not extract markers from exam", ai.ErrMalformedResponse)
	}

	risk, anomaly := domain.ClassifyRisk(analysis)

	if s.Tx == nil {
		return failed(FailurePersistence, "no unit of work configured", application.ErrUnavailable)
	}
	var (
		updated *domain.Exam
		created []*insights.Insight
	)
	err = s.Tx.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		created = created[:0]

		var err error
		updated, err = repos.Exams.UpdateWithAnalysis(ctx, exam.ID, analysis, anomaly, risk)
		if err != nil {
			return err
		}

		now := s.now()
		for _, d := range insights.Synthesize(analysis, risk) {
			in := d.FromExam(insights.InsightID(s.newID()), updated, now)
			if err := repos.Insights.Create(ctx, in); err != nil {
				return fmt.Errorf("creating %s insight: %w", d.Category, err)
			}
			created = append(created, in)
		}
		return nil
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyProcessed):
		return failed(FailureInvalidState, "exam was already analyzed", err)
	case errors.Is(err, domain.ErrNotFound):
		return failed(FailureNotFound, fmt.Sprintf("exam %s not found", examID), err)
	case err != nil:
		log.Error("persisting analysis failed", "error", err)
		return failed(FailurePersistence, "could not persist analysis", err)
	}

	log.Info("exam analyzed", "risk_level", risk, "anomaly", anomaly, "insights", len(created))
	s.publishAnalyzed(ctx, updated, created)

	if created == nil {
		created = []*insights.Insight{}
	}
	return AnalysisResult{
		Exam:     updated,
		Insights: created,
		Success:  true,
		Message:  fmt.Sprintf("exam analyzed with %d insight(s)", len(created)),
	}
}

func (s *Service) publishAnalyzed(ctx context.Context, e *domain.Exam, ins []*insights.Insight) {
	if s.Events == nil {
		return
	}
	ids := make([]string, 0, len(ins))
	for _, in := range ins {
		ids = append(ids, string(in.ID))
	}
	ev := events.ExamAnalyzed{
		Type:       events.TypeExamAnalyzed,
		ExamID:     string(e.ID),
		UserID:     e.UserID,
		RiskLevel:  string(e.RiskLevel),
		Anomaly:    e.Anomaly,
		InsightIDs: ids,
		OccurredAt: s.now(),
	}
	// the analysis is committed; a lost event must not fail the request
	if err := s.Events.PublishExamAnalyzed(ctx, ev); err != nil {
		s.log().Warn("publishing exam.analyzed failed", "exam_id", e.ID, "error", err)
	}
}

//
// ==== CRUD ====
//

// CreateExamCommand carries the fields a user supplies for a new exam
type CreateExamCommand struct {
	UserID     string
	Name       string
	Type       string
	Date       time.Time
	RawResults string
}

// Create stores a new pending exam.
func (s *Service) Create(ctx context.Context, cmd CreateExamCommand) (*domain.Exam, error) {
	if strings.TrimSpace(cmd.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", application.ErrInvalidInput)
	}
	if strings.TrimSpace(cmd.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", application.ErrInvalidInput)
	}
	if strings.TrimSpace(cmd.Type) == "" {
		return nil, fmt.Errorf("%w: type is required", application.ErrInvalidInput)
	}

	now := s.now()
	date := cmd.Date
	if date.IsZero() {
		date = now
	}
	e := &domain.Exam{
		ID:         domain.ExamID(s.newID()),
		UserID:     cmd.UserID,
		Name:       strings.TrimSpace(cmd.Name),
		Date:       date,
		Type:       strings.TrimSpace(cmd.Type),
		Status:     domain.StatusPending,
		RawResults: cmd.RawResults,
		RiskLevel:  domain.RiskNormal,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("creating exam: %w", err)
	}
	return e, nil
}

// Get returns an exam owned by userID.
func (s *Service) Get(ctx context.Context, userID string, id domain.ExamID) (*domain.Exam, error) {
	e, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.OwnedBy(userID) {
		return nil, application.ErrForbidden
	}
	return e, nil
}

// ListByUser returns every exam of userID, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*domain.Exam, error) {
	return s.Repo.FindByUserID(ctx, userID)
}

// Update applies a partial edit. Fields that feed the analysis are frozen once
// the exam is processed, the analyzed status can only be set by Analyze, and
// uploaded requires a file.
func (s *Service) Update(ctx context.Context, userID string, id domain.ExamID, p domain.Patch) (*domain.Exam, error) {
	if p.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", application.ErrInvalidInput)
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", application.ErrInvalidInput, *p.Status)
		}
		if *p.Status == domain.StatusAnalyzed {
			return nil, fmt.Errorf("%w: status %q is set by analysis", application.ErrInvalidInput, domain.StatusAnalyzed)
		}
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", application.ErrInvalidInput)
	}

	e, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if e.Processed && p.TouchesAnalysisInputs() {
		return nil, domain.ErrAnalysisFieldsImmutable
	}
	if p.Status != nil && *p.Status == domain.StatusUploaded {
		after := *e
		p.Apply(&after)
		if !after.HasFile() {
			return nil, fmt.Errorf("%w: status %q needs an attached file", application.ErrInvalidInput, domain.StatusUploaded)
		}
	}
	// the repository re-checks processed in the same statement
	return s.Repo.Update(ctx, id, p)
}

// AttachFile streams an exam file to the file store and records its reference.
func (s *Service) AttachFile(ctx context.Context, userID string, id domain.ExamID, filename string, r io.Reader, size int64, contentType string) (*domain.Exam, error) {
	if s.Files == nil {
		return nil, fmt.Errorf("%w: file store", application.ErrUnavailable)
	}
	e, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if e.Processed {
		return nil, domain.ErrAnalysisFieldsImmutable
	}

	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		base = "exam"
	}
	key := fmt.Sprintf("%s/%s/%s", userID, id, base)
	ref, err := s.Files.Put(ctx, key, r, size, contentType)
	if err != nil {
		return nil, fmt.Errorf("uploading exam file: %w", err)
	}

	status := domain.StatusUploaded
	return s.Repo.Update(ctx, id, domain.Patch{FileRef: &ref, Status: &status})
}

// Delete removes an exam. Its insights are kept.
func (s *Service) Delete(ctx context.Context, userID string, id domain.ExamID) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.Repo.Delete(ctx, id)
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

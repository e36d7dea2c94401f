package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/health-insight/internal/domain/exams"
	"github.com/bryanwahyu/health-insight/internal/domain/insights"
	"github.com/bryanwahyu/health-insight/internal/domain/uow"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func analyzedRow() *sqlmock.Rows {
	ts := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "user_id", "name", "exam_date", "exam_type", "status", "file_ref", "raw_results",
		"analysis_json", "anomaly", "risk_level", "processed", "created_at", "updated_at",
	}).AddRow(
		"e1", "7", "ECG", ts, "Cardiac", "analyzed", "7/e1/ecg.pdf", "",
		[]byte(`{"markers":{"ecg":{"text":"Ritmo sinusal normal","status":"normal"}},"summary":"s","recommendations":[]}`),
		false, "normal", true, ts, ts,
	)
}

func TestExamRepository_UpdateWithAnalysisReturnsRow(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $6 AND processed = FALSE")).
		WithArgs(sqlmock.AnyArg(), false, "normal", "analyzed", sqlmock.AnyArg(), exams.ExamID("e1")).
		WillReturnRows(analyzedRow())

	e, err := NewExamRepository(db).UpdateWithAnalysis(context.Background(), "e1", exams.ExtractTemplate("Cardiac"), false, exams.RiskNormal)
	require.NoError(t, err)
	assert.True(t, e.Processed)
	assert.True(t, e.Analysis.Has(exams.MarkerECG))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepository_UpdateWithAnalysisLosesRace(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("AND processed = FALSE")).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM exams WHERE id=$1")).WillReturnRows(analyzedRow())

	_, err := NewExamRepository(db).UpdateWithAnalysis(context.Background(), "e1", exams.ExtractTemplate("Cardiac"), false, exams.RiskNormal)
	assert.ErrorIs(t, err, exams.ErrAlreadyProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepository_UpdateNumbersPlaceholders(t *testing.T) {
	db, mock := newMock(t)
	name := "Lipid panel"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE exams SET updated_at = $1, name = $2 WHERE id = $3;")).
		WithArgs(sqlmock.AnyArg(), name, exams.ExamID("e1")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := NewExamRepository(db).Update(context.Background(), "e1", exams.Patch{Name: &name})
	assert.ErrorIs(t, err, exams.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepository_UpdateAnalysisInputsOnlyWhileUnprocessed(t *testing.T) {
	const update = "UPDATE exams SET updated_at = $1, name = $2, exam_type = $3 WHERE id = $4 AND processed = FALSE;"
	name, typ := "Lipid panel", "Blood Test"

	t.Run("processed", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta(update)).
			WithArgs(sqlmock.AnyArg(), name, typ, exams.ExamID("e1")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("FROM exams WHERE id=$1")).WillReturnRows(analyzedRow())

		_, err := NewExamRepository(db).Update(context.Background(), "e1", exams.Patch{Name: &name, Type: &typ})
		assert.ErrorIs(t, err, exams.ErrAnalysisFieldsImmutable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta(update)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("FROM exams WHERE id=$1")).WillReturnError(sql.ErrNoRows)

		_, err := NewExamRepository(db).Update(context.Background(), "e1", exams.Patch{Name: &name, Type: &typ})
		assert.ErrorIs(t, err, exams.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInsightRepository_CreateSendsPayloadAsText(t *testing.T) {
	db, mock := newMock(t)
	examID := exams.ExamID("e1")
	v := 95.0
	in := &insights.Insight{
		ID: "i1", UserID: "7", Category: insights.CategoryMetabolism, Severity: insights.SeverityNormal,
		SourceExamID: &examID, Automated: true,
		Data: insights.MetabolismData{BloodGlucose: &exams.Marker{Value: &v, Unit: "mg/dL", Status: exams.MarkerNormal}},
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO insights")).
		WithArgs("i1", "7", "Metabolism", "", "", "", "normal", "e1", true,
			`{"blood_glucose":{"value":95,"unit":"mg/dL","status":"normal"}}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewInsightRepository(db).Create(context.Background(), in))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_RollsBack(t *testing.T) {
	db, mock := newMock(t)
	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM insights WHERE source_exam_id = $1")).WillReturnError(boom)
	mock.ExpectRollback()

	err := NewUnitOfWork(db).Do(context.Background(), func(ctx context.Context, repos uow.Repositories) error {
		_, err := repos.Insights.DeleteAutomatedByExam(ctx, "e1")
		return err
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/health-insight/internal/domain/exams"
)

const examColumns = `id, user_id, name, exam_date, exam_type, status, file_ref, raw_results,
       analysis_json, anomaly, risk_level, processed, created_at, updated_at`

var _ domain.Repository = (*ExamRepository)(nil)

type ExamRepository struct {
	db querier
}

func NewExamRepository(db *sql.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

// FindByID by primary key
func (r *ExamRepository) FindByID(ctx context.Context, id domain.ExamID) (*domain.Exam, error) {
	q := `SELECT ` + examColumns + ` FROM exams WHERE id=? LIMIT 1;`
	e, err := scanExam(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying exam %s: %w", id, err)
	}
	return e, nil
}

// FindByUserID lists a user's exams, newest first
func (r *ExamRepository) FindByUserID(ctx context.Context, userID string) ([]*domain.Exam, error) {
	q := `SELECT ` + examColumns + ` FROM exams WHERE user_id=? ORDER BY created_at DESC, id DESC;`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("querying exams: %w", err)
	}
	defer rows.Close()

	out := []*domain.Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Create inserts a new exam row
func (r *ExamRepository) Create(ctx context.Context, e *domain.Exam) error {
	const q = `
INSERT INTO exams
  (id, user_id, name, exam_date, exam_type, status, file_ref, raw_results,
   analysis_json, anomaly, risk_level, processed, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?);`

	analysis, err := encodeAnalysis(e.Analysis)
	if err != nil {
		return err
	}
	status := e.Status
	if status == "" {
		status = domain.StatusPending
	}
	risk := e.RiskLevel
	if risk == "" {
		risk = domain.RiskNormal
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := e.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	_, err = r.db.ExecContext(ctx, q,
		e.ID, e.UserID, e.Name, e.Date, e.Type, status,
		nullIfBlank(e.FileRef), nullIfBlank(e.RawResults),
		analysis, e.Anomaly, risk, e.Processed, created, updated,
	)
	if err != nil {
		return fmt.Errorf("inserting exam: %w", err)
	}
	return nil
}

// Update sets only the fields present in the patch. Analysis columns are never
// touched here, and analysis inputs only change on an unprocessed row.
func (r *ExamRepository) Update(ctx context.Context, id domain.ExamID, p domain.Patch) (*domain.Exam, error) {
	query := "UPDATE exams SET updated_at = ?"
	args := []any{time.Now().UTC()}

	if p.Name != nil {
		query += ", name = ?"
		args = append(args, *p.Name)
	}
	if p.Date != nil {
		query += ", exam_date = ?"
		args = append(args, *p.Date)
	}
	if p.Type != nil {
		query += ", exam_type = ?"
		args = append(args, *p.Type)
	}
	if p.Status != nil {
		query += ", status = ?"
		args = append(args, string(*p.Status))
	}
	if p.FileRef != nil {
		query += ", file_ref = ?"
		args = append(args, nullIfBlank(*p.FileRef))
	}
	if p.RawResults != nil {
		query += ", raw_results = ?"
		args = append(args, nullIfBlank(*p.RawResults))
	}
	query += " WHERE id = ?"
	args = append(args, id)
	frozen := p.TouchesAnalysisInputs()
	if frozen {
		query += " AND processed = 0"
	}
	query += ";"

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating exam %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reading affected rows: %w", err)
	}
	e, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// MySQL counts changed rows only, so 0 can also mean an unchanged match.
	if n == 0 && frozen && e.Processed {
		return nil, domain.ErrAnalysisFieldsImmutable
	}
	return e, nil
}

// UpdateWithAnalysis is a compare-and-swap on processed: only an unprocessed row
// is updated, so of two racing callers exactly one sees a row affected.
func (r *ExamRepository) UpdateWithAnalysis(ctx context.Context, id domain.ExamID, a *domain.Analysis, anomaly bool, risk domain.RiskLevel) (*domain.Exam, error) {
	const q = `
UPDATE exams
SET analysis_json = ?,
    anomaly = ?,
    risk_level = ?,
    processed = 1,
    status = ?,
    updated_at = ?
WHERE id = ? AND processed = 0;`

	analysis, err := encodeAnalysis(a)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, q,
		analysis, anomaly, string(risk), string(domain.StatusAnalyzed), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating exam analysis %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reading affected rows: %w", err)
	}
	if n != 1 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrAlreadyProcessed
	}
	return r.FindByID(ctx, id)
}

// Delete by id
func (r *ExamRepository) Delete(ctx context.Context, id domain.ExamID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM exams WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("deleting exam %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanExam(row rowScanner) (*domain.Exam, error) {
	var (
		e        domain.Exam
		fileRef  sql.NullString
		raw      sql.NullString
		analysis []byte
	)
	if err := row.Scan(
		&e.ID, &e.UserID, &e.Name, &e.Date, &e.Type, &e.Status, &fileRef, &raw,
		&analysis, &e.Anomaly, &e.RiskLevel, &e.Processed, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.FileRef = fileRef.String
	e.RawResults = raw.String

	a, err := decodeAnalysis(analysis)
	if err != nil {
		return nil, err
	}
	e.Analysis = a
	return &e, nil
}

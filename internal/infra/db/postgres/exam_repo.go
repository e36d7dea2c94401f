package postgres

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

type ExamRepository struct{ db querier }

func NewExamRepository(db *sql.DB) *ExamRepository { return &ExamRepository{db: db} }

func (r *ExamRepository) FindByID(ctx context.Context, id domain.ExamID) (*domain.Exam, error) {
	q := `SELECT ` + examColumns + ` FROM exams WHERE id=$1 LIMIT 1;`
	e, err := scanExam(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying exam %s: %w", id, err)
	}
	return e, nil
}

func (r *ExamRepository) FindByUserID(ctx context.Context, userID string) ([]*domain.Exam, error) {
	q := `SELECT ` + examColumns + ` FROM exams WHERE user_id=$1 ORDER BY created_at DESC, id DESC;`
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
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

func (r *ExamRepository) Create(ctx context.Context, e *domain.Exam) error {
	const q = `
INSERT INTO exams
(id, user_id, name, exam_date, exam_type, status, file_ref, raw_results,
 analysis_json, anomaly, risk_level, processed, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,
        $9,$10,$11,$12,$13,$14);`

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

	if _, err := r.db.ExecContext(ctx, q,
		e.ID, e.UserID, e.Name, e.Date, e.Type, string(status),
		nullIfBlank(e.FileRef), nullIfBlank(e.RawResults),
		analysis, e.Anomaly, string(risk), e.Processed, created, updated,
	); err != nil {
		return fmt.Errorf("inserting exam: %w", err)
	}
	return nil
}

// Update writes only the patched columns
func (r *ExamRepository) Update(ctx context.Context, id domain.ExamID, p domain.Patch) (*domain.Exam, error) {
	query := "UPDATE exams SET updated_at = $1"
	args := []any{time.Now().UTC()}
	next := 2

	set := func(col string, v any) {
		query += fmt.Sprintf(", %s = $%d", col, next)
		args = append(args, v)
		next++
	}
	if p.Name != nil {
		set("name", *p.Name)
	}
	if p.Date != nil {
		set("exam_date", *p.Date)
	}
	if p.Type != nil {
		set("exam_type", *p.Type)
	}
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if p.FileRef != nil {
		set("file_ref", nullIfBlank(*p.FileRef))
	}
	if p.RawResults != nil {
		set("raw_results", nullIfBlank(*p.RawResults))
	}
	query += fmt.Sprintf(" WHERE id = $%d", next)
	args = append(args, id)
	frozen := p.TouchesAnalysisInputs()
	if frozen {
		query += " AND processed = FALSE"
	}
	query += ";"

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating exam %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if !frozen {
			return nil, domain.ErrNotFound
		}
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrAnalysisFieldsImmutable
	}
	return r.FindByID(ctx, id)
}

// UpdateWithAnalysis only touches a row that is still unprocessed
func (r *ExamRepository) UpdateWithAnalysis(ctx context.Context, id domain.ExamID, a *domain.Analysis, anomaly bool, risk domain.RiskLevel) (*domain.Exam, error) {
	const q = `
UPDATE exams
SET analysis_json = $1,
    anomaly = $2,
    risk_level = $3,
    processed = TRUE,
    status = $4,
    updated_at = $5
WHERE id = $6 AND processed = FALSE
RETURNING ` + examColumns + `;`

	analysis, err := encodeAnalysis(a)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, q,
		analysis, anomaly, string(risk), string(domain.StatusAnalyzed), time.Now().UTC(), id,
	)
	e, err := scanExam(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrAlreadyProcessed
	}
	if err != nil {
		return nil, fmt.Errorf("updating exam analysis %s: %w", id, err)
	}
	return e, nil
}

func (r *ExamRepository) Delete(ctx context.Context, id domain.ExamID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM exams WHERE id = $1;`, id)
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

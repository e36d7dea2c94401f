package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/health-insight/internal/domain/exams"
	domain "github.com/bryanwahyu/health-insight/internal/domain/insights"
)

const insightColumns = `id, user_id, category, title, description, recommendation, severity,
       source_exam_id, automated, data_json, created_at`

var _ domain.Repository = (*InsightRepository)(nil)

type InsightRepository struct{ db querier }

func NewInsightRepository(db *sql.DB) *InsightRepository { return &InsightRepository{db: db} }

func (r *InsightRepository) Create(ctx context.Context, in *domain.Insight) error {
	const q = `
INSERT INTO insights
(id, user_id, category, title, description, recommendation, severity,
 source_exam_id, automated, data_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`

	data, err := domain.EncodePayload(in.Data)
	if err != nil {
		return err
	}
	var source sql.NullString
	if in.SourceExamID != nil {
		source = sql.NullString{String: string(*in.SourceExamID), Valid: true}
	}
	created := in.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, q,
		in.ID, in.UserID, string(in.Category), in.Title, in.Description, in.Recommendation,
		string(in.Severity), source, in.Automated, string(data), created,
	); err != nil {
		return fmt.Errorf("inserting insight: %w", err)
	}
	return nil
}

func (r *InsightRepository) FindByID(ctx context.Context, id domain.InsightID) (*domain.Insight, error) {
	q := `SELECT ` + insightColumns + ` FROM insights WHERE id=$1 LIMIT 1;`
	in, err := scanInsight(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying insight %s: %w", id, err)
	}
	return in, nil
}

func (r *InsightRepository) FindByUserID(ctx context.Context, userID string) ([]*domain.Insight, error) {
	return r.list(ctx, `SELECT `+insightColumns+` FROM insights WHERE user_id=$1 ORDER BY created_at DESC, id DESC;`, userID)
}

func (r *InsightRepository) FindByExamID(ctx context.Context, examID exams.ExamID) ([]*domain.Insight, error) {
	return r.list(ctx, `SELECT `+insightColumns+` FROM insights WHERE source_exam_id=$1 ORDER BY created_at DESC, id DESC;`, examID)
}

func (r *InsightRepository) Delete(ctx context.Context, id domain.InsightID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM insights WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("deleting insight %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *InsightRepository) DeleteAutomatedByExam(ctx context.Context, examID exams.ExamID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM insights WHERE source_exam_id = $1 AND automated = TRUE;`, examID)
	if err != nil {
		return 0, fmt.Errorf("deleting insights of exam %s: %w", examID, err)
	}
	return res.RowsAffected()
}

func (r *InsightRepository) list(ctx context.Context, q string, arg any) ([]*domain.Insight, error) {
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("querying insights: %w", err)
	}
	defer rows.Close()

	out := []*domain.Insight{}
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, in)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

func scanInsight(row rowScanner) (*domain.Insight, error) {
	var (
		in     domain.Insight
		source sql.NullString
		data   []byte
	)
	if err := row.Scan(
		&in.ID, &in.UserID, &in.Category, &in.Title, &in.Description, &in.Recommendation,
		&in.Severity, &source, &in.Automated, &data, &in.CreatedAt,
	); err != nil {
		return nil, err
	}
	if source.Valid {
		id := exams.ExamID(source.String)
		in.SourceExamID = &id
	}
	p, err := domain.DecodePayload(in.Category, data)
	if err != nil {
		return nil, err
	}
	in.Data = p
	return &in, nil
}

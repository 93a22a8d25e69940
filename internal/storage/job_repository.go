package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"transcriber/internal/models"
)

// JobRepository はジョブのデータアクセス層
type JobRepository struct {
	db DBTX
}

// NewJobRepository は新しいJobRepositoryを作成
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, type, status, priority, payload, retry_count, error, created_at, started_at, completed_at`

// Create は新しいジョブを作成
func (r *JobRepository) Create(ctx context.Context, job *models.ProcessingJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.CreatedAt = time.Now().UTC()
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	if job.Payload == "" {
		job.Payload = "{}"
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processing_jobs (id, type, status, priority, payload, retry_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Type, job.Status, job.Priority, job.Payload, job.RetryCount, job.CreatedAt)
	return err
}

// GetByID はIDでジョブを取得
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.ProcessingJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// JobFilter はジョブ種別で取得対象を絞り込む。空の場合はすべての種別が対象。
type JobFilter struct {
	Types   []string // この種別のみ
	Exclude []string // この種別を除く
}

func (f JobFilter) where() (string, []any) {
	clause := ""
	var args []any
	if len(f.Types) > 0 {
		clause += " AND type IN (" + placeholders(len(f.Types)) + ")"
		for _, t := range f.Types {
			args = append(args, t)
		}
	}
	if len(f.Exclude) > 0 {
		clause += " AND type NOT IN (" + placeholders(len(f.Exclude)) + ")"
		for _, t := range f.Exclude {
			args = append(args, t)
		}
	}
	return clause, args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// ClaimNext は次に処理すべきキュー済みジョブを取得し、実行中にする（優先度順）。
func (r *JobRepository) ClaimNext(ctx context.Context) (*models.ProcessingJob, error) {
	return r.Claim(ctx, JobFilter{})
}

// Claim は filter に合う次のキュー済みジョブを取得し、実行中にする（優先度順）。
// 取得と状態変更は1文で行うため、複数ワーカーが同じジョブを取ることはない。
func (r *JobRepository) Claim(ctx context.Context, filter JobFilter) (*models.ProcessingJob, error) {
	now := time.Now().UTC()
	clause, filterArgs := filter.where()
	args := append([]any{models.JobStatusRunning, now, models.JobStatusQueued}, filterArgs...)

	var id string
	err := r.db.QueryRowContext(ctx, `
		UPDATE processing_jobs SET status = ?, started_at = ?
		WHERE id = (
			SELECT id FROM processing_jobs
			WHERE status = ?`+clause+`
			ORDER BY priority ASC, created_at ASC
			LIMIT 1
		)
		RETURNING id
	`, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Complete はジョブを完了状態にする
func (r *JobRepository) Complete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return expectRow(r.db.ExecContext(ctx, `
		UPDATE processing_jobs SET status = ?, completed_at = ? WHERE id = ?
	`, models.JobStatusCompleted, now, id))
}

// Fail はジョブを失敗状態にする
func (r *JobRepository) Fail(ctx context.Context, id string, errorMsg string) error {
	now := time.Now().UTC()
	return expectRow(r.db.ExecContext(ctx, `
		UPDATE processing_jobs SET status = ?, error = ?, completed_at = ? WHERE id = ?
	`, models.JobStatusFailed, errorMsg, now, id))
}

// Retry はジョブを再試行キューに戻す
func (r *JobRepository) Retry(ctx context.Context, id string) error {
	return expectRow(r.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = ?, retry_count = retry_count + 1, started_at = NULL
		WHERE id = ?
	`, models.JobStatusQueued, id))
}

// FailRunning は実行中のまま残ったジョブをすべて失敗にする（ワーカー再起動時）
func (r *JobRepository) FailRunning(ctx context.Context, errorMsg string) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE processing_jobs SET status = ?, error = ?, completed_at = ? WHERE status = ?
	`, models.JobStatusFailed, errorMsg, now, models.JobStatusRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HasActive は指定した対象IDのジョブが待機中または実行中かを返す
func (r *JobRepository) HasActive(ctx context.Context, jobType, refID string) (bool, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM processing_jobs
		WHERE type = ? AND json_extract(payload, '$.id') = ? AND status IN (?, ?)
	`, jobType, refID, models.JobStatusQueued, models.JobStatusRunning).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByStatus はステータスでジョブ一覧を取得
func (r *JobRepository) ListByStatus(ctx context.Context, status string, limit int) ([]models.ProcessingJob, error) {
	if limit == 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM processing_jobs
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	return collectJobs(rows)
}

// ListRecent は最近のジョブ一覧を取得
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]models.ProcessingJob, error) {
	if limit == 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM processing_jobs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	return collectJobs(rows)
}

// Delete はジョブを削除
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	return expectRow(r.db.ExecContext(ctx, `DELETE FROM processing_jobs WHERE id = ?`, id))
}

// CleanupCompleted は完了済みジョブを削除（指定日数より古いもの）
func (r *JobRepository) CleanupCompleted(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM processing_jobs
		WHERE status IN (?, ?) AND completed_at < ?
	`, models.JobStatusCompleted, models.JobStatusFailed, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountByStatus はステータスごとのジョブ数を取得
func (r *JobRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM processing_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func collectJobs(rows *sql.Rows) ([]models.ProcessingJob, error) {
	defer rows.Close()

	var jobs []models.ProcessingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(s scanner) (*models.ProcessingJob, error) {
	var job models.ProcessingJob
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	if err := s.Scan(&job.ID, &job.Type, &job.Status, &job.Priority, &job.Payload, &job.RetryCount,
		&errMsg, &job.CreatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	job.Error = errMsg.String
	job.StartedAt = nullTime(startedAt)
	job.CompletedAt = nullTime(completedAt)
	return &job, nil
}

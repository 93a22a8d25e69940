package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"transcriber/internal/models"
)

// TranscriptionRepository は文字起こしのデータアクセス層
type TranscriptionRepository struct {
	db DBTX
}

// NewTranscriptionRepository は新しいTranscriptionRepositoryを作成
func NewTranscriptionRepository(db DBTX) *TranscriptionRepository {
	return &TranscriptionRepository{db: db}
}

const transcriptionColumns = `id, file_id, language, priority, status, task_ids, created_at, completed_at`

// Create は新しい文字起こしを作成
func (r *TranscriptionRepository) Create(ctx context.Context, t *models.Transcription) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now().UTC()
	if t.Status == "" {
		t.Status = models.StatusQueue
	}
	if t.TaskIDs == nil {
		t.TaskIDs = []string{}
	}
	taskIDs, err := json.Marshal(t.TaskIDs)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transcriptions (`+transcriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.FileID, t.Language, t.Priority, t.Status, string(taskIDs), t.CreatedAt, t.CompletedAt)
	return err
}

// GetByID はIDで文字起こしを取得
func (r *TranscriptionRepository) GetByID(ctx context.Context, id string) (*models.Transcription, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transcriptionColumns+` FROM transcriptions WHERE id = ?`, id)
	return getTranscription(row)
}

// GetByFileID はファイルIDで文字起こしを取得
func (r *TranscriptionRepository) GetByFileID(ctx context.Context, fileID string) (*models.Transcription, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transcriptionColumns+` FROM transcriptions WHERE file_id = ?`, fileID)
	return getTranscription(row)
}

// ListByStatus はステータスで文字起こし一覧を取得
func (r *TranscriptionRepository) ListByStatus(ctx context.Context, status models.Status) ([]models.Transcription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transcriptionColumns+` FROM transcriptions
		WHERE status = ?
		ORDER BY created_at ASC
	`, status)
	if err != nil {
		return nil, fmt.Errorf("query transcriptions: %w", err)
	}
	return collectTranscriptions(rows)
}

// List は文字起こし一覧を取得
func (r *TranscriptionRepository) List(ctx context.Context, limit, offset int, ascending bool) ([]models.Transcription, error) {
	if limit == 0 {
		limit = 100
	}
	order := "DESC"
	if ascending {
		order = "ASC"
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transcriptionColumns+` FROM transcriptions
		ORDER BY created_at `+order+`
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query transcriptions: %w", err)
	}
	return collectTranscriptions(rows)
}

// UpdateStatus は文字起こしのステータスを更新
func (r *TranscriptionRepository) UpdateStatus(ctx context.Context, id string, status models.Status, completedAt *time.Time) error {
	return expectRow(r.db.ExecContext(ctx, `
		UPDATE transcriptions SET status = ?, completed_at = ? WHERE id = ?
	`, status, completedAt, id))
}

// AppendTaskID はコンテナIDを task_ids の末尾に追加する。
// 行が削除済みの場合は ErrNotFound を返す。
func (r *TranscriptionRepository) AppendTaskID(ctx context.Context, id, taskID string) error {
	return expectRow(r.db.ExecContext(ctx, `
		UPDATE transcriptions SET task_ids = json_insert(task_ids, '$[#]', ?) WHERE id = ?
	`, taskID, id))
}

// Delete は文字起こしを削除
func (r *TranscriptionRepository) Delete(ctx context.Context, id string) error {
	return expectRow(r.db.ExecContext(ctx, `DELETE FROM transcriptions WHERE id = ?`, id))
}

// DeleteWithStatus は指定したステータスのときだけ文字起こしを削除する。
// 該当しない場合は ErrNotFound を返す。
func (r *TranscriptionRepository) DeleteWithStatus(ctx context.Context, id string, status models.Status) error {
	return expectRow(r.db.ExecContext(ctx, `DELETE FROM transcriptions WHERE id = ? AND status = ?`, id, status))
}

func getTranscription(row *sql.Row) (*models.Transcription, error) {
	t, err := scanTranscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func collectTranscriptions(rows *sql.Rows) ([]models.Transcription, error) {
	defer rows.Close()

	var out []models.Transcription
	for rows.Next() {
		t, err := scanTranscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transcription: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTranscription(s scanner) (*models.Transcription, error) {
	var t models.Transcription
	var taskIDs string
	var completedAt sql.NullTime
	if err := s.Scan(&t.ID, &t.FileID, &t.Language, &t.Priority, &t.Status, &taskIDs, &t.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(taskIDs), &t.TaskIDs); err != nil {
		return nil, fmt.Errorf("decode task_ids: %w", err)
	}
	if t.TaskIDs == nil {
		t.TaskIDs = []string{}
	}
	t.CompletedAt = nullTime(completedAt)
	return &t, nil
}

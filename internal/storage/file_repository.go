package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"transcriber/internal/models"
)

// FileRepository はファイルのデータアクセス層
type FileRepository struct {
	db DBTX
}

// NewFileRepository は新しいFileRepositoryを作成
func NewFileRepository(db DBTX) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, name, type, path, status, created_at, completed_at`

// Create は新しいファイルを作成
func (r *FileRepository) Create(ctx context.Context, file *models.File) error {
	file.CreatedAt = time.Now().UTC()
	if file.Status == "" {
		file.Status = models.StatusQueue
	}
	if file.Type == "" {
		file.Type = models.FileTypeAudio
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, file.ID, file.Name, file.Type, file.Path, file.Status, file.CreatedAt, file.CompletedAt)
	return err
}

// GetByID はIDでファイルを取得
func (r *FileRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	file, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

// List はファイル一覧を取得
func (r *FileRepository) List(ctx context.Context, limit, offset int, ascending bool) ([]models.File, error) {
	if limit == 0 {
		limit = 100
	}
	order := "DESC"
	if ascending {
		order = "ASC"
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files
		ORDER BY created_at `+order+`
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var files []models.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, *file)
	}
	return files, rows.Err()
}

// UpdateStatus はファイルのステータスを更新
func (r *FileRepository) UpdateStatus(ctx context.Context, id string, status models.Status, completedAt *time.Time) error {
	return expectRow(r.db.ExecContext(ctx, `
		UPDATE files SET status = ?, completed_at = ? WHERE id = ?
	`, status, completedAt, id))
}

// UpdatePath はファイルの保存先を更新
func (r *FileRepository) UpdatePath(ctx context.Context, id, path string) error {
	return expectRow(r.db.ExecContext(ctx, `UPDATE files SET path = ? WHERE id = ?`, path, id))
}

// Delete はファイルを削除（文字起こしもカスケード削除される）
func (r *FileRepository) Delete(ctx context.Context, id string) error {
	return expectRow(r.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	var f models.File
	var completedAt sql.NullTime
	if err := s.Scan(&f.ID, &f.Name, &f.Type, &f.Path, &f.Status, &f.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	f.CompletedAt = nullTime(completedAt)
	return &f, nil
}

// expectRow は更新件数が0の場合に ErrNotFound を返す
func expectRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

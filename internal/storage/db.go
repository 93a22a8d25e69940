package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound は更新対象の行が存在しないことを表す
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable はデータベースに到達できないことを表す
	ErrUnavailable = errors.New("database unavailable")
)

// DBTX は *sql.DB と *sql.Tx の共通インターフェース
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repositories は同じ接続（またはトランザクション）を共有するリポジトリ群
type Repositories struct {
	Files          *FileRepository
	Transcriptions *TranscriptionRepository
	Jobs           *JobRepository
}

func newRepositories(q DBTX) Repositories {
	return Repositories{
		Files:          NewFileRepository(q),
		Transcriptions: NewTranscriptionRepository(q),
		Jobs:           NewJobRepository(q),
	}
}

// DB はデータベース接続を保持する
type DB struct {
	*sql.DB
	Repositories
}

// Tx はトランザクションに束縛されたリポジトリ群
type Tx struct {
	Repositories
}

// Open はデータベースに接続し、スキーマを初期化する
func Open(path string) (*DB, error) {
	// ディレクトリが存在しない場合は作成
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 接続確認
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// スキーマ初期化
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{DB: db, Repositories: newRepositories(db)}, nil
}

// dsn はSQLite設定を接続ごとに適用するDSNを組み立てる。
// _txlock=immediate により BEGIN の時点で書き込みロックを取得する。
func dsn(path string) string {
	v := url.Values{}
	v.Add("_pragma", "journal_mode(WAL)")
	v.Add("_pragma", "foreign_keys(1)")
	v.Add("_pragma", "busy_timeout(5000)")
	v.Set("_txlock", "immediate")
	return "file:" + path + "?" + v.Encode()
}

// initSchema はスキーマを初期化する
func initSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	return err
}

// InTx は fn をひとつのトランザクション内で実行する。
// fn がエラーを返した場合はロールバックする。
func (db *DB) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := fn(&Tx{Repositories: newRepositories(sqlTx)}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close はデータベース接続を閉じる
func (db *DB) Close() error {
	return db.DB.Close()
}

// Ptr はポインタを返すヘルパー
func Ptr[T any](v T) *T {
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

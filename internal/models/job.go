package models

import "time"

// ProcessingJob は非同期処理タスク
type ProcessingJob struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority"`
	Payload     string     `json:"payload"`
	RetryCount  int        `json:"retry_count"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ジョブタイプ
const (
	JobTypeOptimize   = "optimize"
	JobTypeTranscribe = "transcribe"
	JobTypeTerminate  = "terminate"
)

// ジョブステータス
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// ジョブ優先度（小さいほど先に処理）
const (
	JobPriorityImmediate = 0 // 即時処理
	JobPriorityNormal    = 5 // 通常処理
	JobPriorityBatch     = 9 // バッチ処理
)

// JobPriorityFor は文字起こし優先度をキュー優先度に変換
func JobPriorityFor(p Priority) int {
	switch p {
	case PriorityHigh:
		return JobPriorityImmediate
	case PriorityMedium:
		return JobPriorityNormal
	default:
		return JobPriorityBatch
	}
}

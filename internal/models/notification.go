package models

import "time"

// Notification はクライアントへ配信するステータスイベント
type Notification struct {
	ID          string           `json:"id"`
	Status      Status           `json:"status"`
	Type        NotificationType `json:"type"`
	Task        Task             `json:"task"`
	Message     string           `json:"message"`
	CompletedAt *time.Time       `json:"completed_at"`
}

// NotificationType は通知の種類
type NotificationType string

const (
	NotificationInfo    NotificationType = "INFO"
	NotificationSuccess NotificationType = "SUCCESS"
	NotificationError   NotificationType = "ERROR"
)

// Task は通知対象の処理
type Task string

const (
	TaskConversion    Task = "CONVERSION"
	TaskOptimization  Task = "OPTIMIZATION"
	TaskTranscription Task = "TRANSCRIPTION"
	TaskTerminate     Task = "TERMINATE"
)

// ChannelNotifications は既定の通知チャンネル
const ChannelNotifications = "NOTIFICATIONS"

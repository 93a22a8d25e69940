package models

import (
	"fmt"
	"strings"
	"time"
)

// Transcription はファイルに対する文字起こしジョブ
type Transcription struct {
	ID          string     `json:"id"`
	FileID      string     `json:"file_id"`
	Language    Language   `json:"language"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	TaskIDs     []string   `json:"task_ids"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Status はファイルと文字起こしの共通ステータス
type Status string

const (
	StatusQueue      Status = "QUEUE"
	StatusProcessing Status = "PROCESSING"
	StatusDone       Status = "DONE"
	StatusError      Status = "ERROR"
)

// Active は処理待ちまたは処理中かどうか
func (s Status) Active() bool {
	return s == StatusQueue || s == StatusProcessing
}

// Priority は文字起こし優先度
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// ParsePriority は文字列を優先度に変換する
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	case "":
		return PriorityLow, nil
	}
	return "", fmt.Errorf("unsupported priority: %s", s)
}

// Language は音声言語（値はWhisperの言語コード）
type Language string

const (
	LanguageEnglish  Language = "en"
	LanguageGerman   Language = "de"
	LanguageFrench   Language = "fr"
	LanguageSpanish  Language = "es"
	LanguageItalian  Language = "it"
	LanguageJapanese Language = "ja"
)

var languageNames = map[string]Language{
	"ENGLISH":  LanguageEnglish,
	"GERMAN":   LanguageGerman,
	"FRENCH":   LanguageFrench,
	"SPANISH":  LanguageSpanish,
	"ITALIAN":  LanguageItalian,
	"JAPANESE": LanguageJapanese,
}

// ParseLanguage は言語名または言語コードを受け付ける
func ParseLanguage(s string) (Language, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return LanguageEnglish, nil
	}
	if lang, ok := languageNames[strings.ToUpper(s)]; ok {
		return lang, nil
	}
	for _, lang := range languageNames {
		if string(lang) == strings.ToLower(s) {
			return lang, nil
		}
	}
	return "", fmt.Errorf("unsupported language: %s", s)
}

// Code は音声認識コマンドに渡す言語コード
func (l Language) Code() string {
	return string(l)
}

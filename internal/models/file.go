package models

import (
	"path/filepath"
	"strings"
	"time"
)

// File はアップロードされたメディアファイル
type File struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        FileType   `json:"type"`
	Path        string     `json:"-"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// FileType はメディア種別
type FileType string

const (
	FileTypeAudio FileType = "AUDIO"
	FileTypeVideo FileType = "VIDEO"
)

var audioExtensions = []string{"aac", "mid", "mp3", "m4a", "wav", "ogg", "flac", "amr", "aiff", "mpeg", "opus", "webm"}

var videoExtensions = []string{"3gp", "mp4", "m4v", "mkv", "mov", "avi", "wmv", "mpg", "flv"}

// TranscriptExtensions はダウンロード対象の文字起こし成果物の拡張子
var TranscriptExtensions = []string{"txt", "srt", "vtt", "rtf", "json", "csv"}

// FileTypeOf は拡張子からメディア種別を判定する
func FileTypeOf(filename string) (FileType, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return "", false
	}
	if contains(audioExtensions, ext) {
		return FileTypeAudio, true
	}
	if contains(videoExtensions, ext) {
		return FileTypeVideo, true
	}
	return "", false
}

// IsTranscriptFile は文字起こし成果物かどうかを判定する
func IsTranscriptFile(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	return contains(TranscriptExtensions, ext)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

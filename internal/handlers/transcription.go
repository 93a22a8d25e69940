package handlers

import (
	"fmt"
	"net/http"

	"transcriber/internal/models"
	"transcriber/internal/storage"
	"transcriber/internal/transcription"

	"github.com/labstack/echo/v4"
)

// TranscriptionHandler は文字起こしAPIのハンドラー
type TranscriptionHandler struct {
	service *transcription.Service
	repo    *storage.TranscriptionRepository
}

// NewTranscriptionHandler は新しいTranscriptionHandlerを作成
func NewTranscriptionHandler(service *transcription.Service, repo *storage.TranscriptionRepository) *TranscriptionHandler {
	return &TranscriptionHandler{service: service, repo: repo}
}

type transcribeRequest struct {
	FileID   string `json:"file_id"`
	Language string `json:"language"`
	Priority string `json:"priority"`
}

// Create は文字起こしを受け付ける
// POST /api/v1/transcriptions {"file_id", "language", "priority"}
func (h *TranscriptionHandler) Create(c echo.Context) error {
	var req transcribeRequest
	if err := c.Bind(&req); err != nil || req.FileID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Error: Bad Request"})
	}

	res, err := h.service.Transcribe(c.Request().Context(), req.FileID, req.Language, req.Priority)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusAccepted, res)
}

// List は文字起こし一覧を取得
func (h *TranscriptionHandler) List(c echo.Context) error {
	limit, offset, ascending := listParams(c)

	list, err := h.repo.List(c.Request().Context(), limit, offset, ascending)
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []models.Transcription{}
	}

	return c.JSON(http.StatusOK, list)
}

// Download は文字起こし結果をzipで返す
func (h *TranscriptionHandler) Download(c echo.Context) error {
	archive, err := h.service.Download(c.Request().Context(), c.Param("file_id"))
	if err != nil {
		return respondError(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/zip")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", archive.Name))
	res.WriteHeader(http.StatusOK)
	_, err = archive.WriteTo(res)
	return err
}

// Terminate は処理中の文字起こしの停止を受け付ける
func (h *TranscriptionHandler) Terminate(c echo.Context) error {
	res, err := h.service.Terminate(c.Request().Context(), c.Param("file_id"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusAccepted, res)
}

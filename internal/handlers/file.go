package handlers

import (
	"net/http"

	"transcriber/internal/apperr"
	"transcriber/internal/ingestion"
	"transcriber/internal/models"
	"transcriber/internal/storage"

	"github.com/labstack/echo/v4"
)

// FileHandler はファイルAPIのハンドラー
type FileHandler struct {
	ingester *ingestion.FileIngester
	repo     *storage.FileRepository
}

// NewFileHandler は新しいFileHandlerを作成
func NewFileHandler(ingester *ingestion.FileIngester, repo *storage.FileRepository) *FileHandler {
	return &FileHandler{ingester: ingester, repo: repo}
}

// Upload はメディアファイルを受け付け、最適化ジョブを登録する
// POST /api/v1/files (multipart: file, name)
func (h *FileHandler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Error: No file uploaded"})
	}

	f, err := fh.Open()
	if err != nil {
		return respondError(c, apperr.Internal("Error: Internal server error", err))
	}
	defer f.Close()

	res, err := h.ingester.Ingest(c.Request().Context(), ingestion.Upload{
		Filename: fh.Filename,
		Name:     c.FormValue("name"),
		Reader:   f,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusAccepted, res)
}

// List はファイル一覧を取得
func (h *FileHandler) List(c echo.Context) error {
	limit, offset, ascending := listParams(c)

	files, err := h.repo.List(c.Request().Context(), limit, offset, ascending)
	if err != nil {
		return respondError(c, err)
	}
	if files == nil {
		files = []models.File{}
	}

	return c.JSON(http.StatusOK, files)
}

// Get はファイルを取得
func (h *FileHandler) Get(c echo.Context) error {
	file, err := h.repo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if file == nil {
		return respondError(c, apperr.NotFound("File not found"))
	}

	return c.JSON(http.StatusOK, file)
}

// Delete はファイルと文字起こしを削除
func (h *FileHandler) Delete(c echo.Context) error {
	if err := h.ingester.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

package handlers

import (
	"net/http"
	"strconv"

	"transcriber/internal/apperr"
	"transcriber/internal/models"
	"transcriber/internal/storage"

	"github.com/labstack/echo/v4"
)

// JobHandler はワーカーキューを参照するハンドラー
type JobHandler struct {
	repo *storage.JobRepository
}

// NewJobHandler は新しいJobHandlerを作成
func NewJobHandler(repo *storage.JobRepository) *JobHandler {
	return &JobHandler{repo: repo}
}

var jobStatuses = map[string]bool{
	models.JobStatusQueued:    true,
	models.JobStatusRunning:   true,
	models.JobStatusCompleted: true,
	models.JobStatusFailed:    true,
}

var jobTypes = map[string]bool{
	models.JobTypeOptimize:   true,
	models.JobTypeTranscribe: true,
	models.JobTypeTerminate:  true,
}

// List はジョブ一覧を取得
// GET /api/v1/jobs?status=queued&type=transcribe&limit=50
func (h *JobHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	status := c.QueryParam("status")
	jobType := c.QueryParam("type")
	if status != "" && !jobStatuses[status] {
		return respondError(c, apperr.BadRequest("Unsupported job status"))
	}
	if jobType != "" && !jobTypes[jobType] {
		return respondError(c, apperr.BadRequest("Unsupported job type"))
	}

	limit := 50
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 {
		limit = l
	}

	var jobs []models.ProcessingJob
	var err error
	if status != "" {
		jobs, err = h.repo.ListByStatus(ctx, status, limit)
	} else {
		jobs, err = h.repo.ListRecent(ctx, limit)
	}
	if err != nil {
		return respondError(c, err)
	}

	out := make([]models.ProcessingJob, 0, len(jobs))
	for _, job := range jobs {
		if jobType == "" || job.Type == jobType {
			out = append(out, job)
		}
	}
	return c.JSON(http.StatusOK, out)
}

// Get はジョブを取得
func (h *JobHandler) Get(c echo.Context) error {
	job, err := h.find(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// Stats はステータスごとのジョブ数を取得
func (h *JobHandler) Stats(c echo.Context) error {
	counts, err := h.repo.CountByStatus(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	for status := range jobStatuses {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	return c.JSON(http.StatusOK, counts)
}

// ファイルや文字起こしの状態を進めるジョブ。待機中に削除すると対象が処理中のまま残る。
var ownedJobTypes = map[string]bool{
	models.JobTypeOptimize:   true,
	models.JobTypeTranscribe: true,
}

// Delete は終了済みのジョブ（または待機中の停止ジョブ）を削除する。
// 実行中のジョブは文字起こしの停止APIで止める。
func (h *JobHandler) Delete(c echo.Context) error {
	job, err := h.find(c)
	if err != nil {
		return respondError(c, err)
	}
	if job.Status == models.JobStatusRunning {
		return respondError(c, apperr.BadRequest("Job is running"))
	}
	if job.Status == models.JobStatusQueued && ownedJobTypes[job.Type] {
		return respondError(c, apperr.BadRequest("Job is queued"))
	}

	if err := h.repo.Delete(c.Request().Context(), job.ID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *JobHandler) find(c echo.Context) (*models.ProcessingJob, error) {
	job, err := h.repo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperr.NotFound("Job not found")
	}
	return job, nil
}

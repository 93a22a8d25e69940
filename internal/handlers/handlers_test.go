package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"transcriber/internal/container"
	"transcriber/internal/ingestion"
	"transcriber/internal/media"
	"transcriber/internal/models"
	"transcriber/internal/notify"
	"transcriber/internal/storage"
	"transcriber/internal/transcription"

	"github.com/labstack/echo/v4"
)

type nopRuntime struct{}

func (nopRuntime) Start(_ context.Context, _ container.Config, _ string, opts container.StartOptions) (string, error) {
	return opts.Name, nil
}

func (nopRuntime) Stop(context.Context, string) error { return nil }

type nopProcessor struct{}

func (nopProcessor) ConvertToWav(context.Context, string, string) error { return nil }

func (nopProcessor) Split(context.Context, string, string, string, int) ([]string, error) {
	return nil, nil
}

type testServer struct {
	e   *echo.Echo
	db  *storage.DB
	hub *notify.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	lib := media.NewLibrary(filepath.Join(dir, "files"))
	hub := notify.NewHub(8)
	planner := transcription.NewPlanner(lib, transcription.PlannerConfig{
		Bin: "./main", Model: "m.bin", Root: "/home/files", CPUCount: 4,
		Divisors: map[models.Priority]int{models.PriorityLow: 4, models.PriorityMedium: 2, models.PriorityHigh: 2},
	})
	svc := transcription.NewService(db, planner, transcription.NewExecutor(nopRuntime{}, 2), hub, lib, media.NewConverter(16000),
		transcription.Options{ContainerConfig: container.Config{Image: "transcription-service"}})
	ingester := ingestion.NewFileIngester(db, nopProcessor{}, lib, hub, models.ChannelNotifications, 2)

	e := echo.New()
	Register(e.Group("/api/v1"),
		NewFileHandler(ingester, db.Files),
		NewTranscriptionHandler(svc, db.Transcriptions),
		NewJobHandler(db.Jobs),
		NewNotificationHandler(hub, models.ChannelNotifications),
	)
	return &testServer{e: e, db: db, hub: hub}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestUploadListGetFile(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "talk.mp3")
	fw.Write([]byte("ID3"))
	mw.WriteField("name", "Weekly talk")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := s.do(req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body)
	}
	var res ingestion.IngestResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || res.FileID == "" {
		t.Fatalf("upload body = %s", rec.Body)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/files/"+res.FileID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var file models.File
	json.Unmarshal(rec.Body.Bytes(), &file)
	if file.Name != "Weekly talk" || file.Type != models.FileTypeAudio || file.Status != models.StatusQueue {
		t.Errorf("file = %+v", file)
	}
	if strings.Contains(rec.Body.String(), "path") {
		t.Error("file path leaked in response")
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/files?sort=ASC&limit=10", nil))
	var files []models.File
	json.Unmarshal(rec.Body.Bytes(), &files)
	if len(files) != 1 {
		t.Errorf("listed %d files", len(files))
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs/stats", nil))
	var stats map[string]int64
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats[models.JobStatusQueued] != 1 {
		t.Errorf("stats = %v", stats)
	}
}

func TestTranscriptionErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		detail string
	}{
		{"missing file id", http.MethodPost, "/api/v1/transcriptions", `{}`, http.StatusBadRequest, "Error: Bad Request"},
		{"unknown file", http.MethodPost, "/api/v1/transcriptions", `{"file_id":"nope"}`, http.StatusNotFound, "File not found"},
		{"bad priority", http.MethodPost, "/api/v1/transcriptions", `{"file_id":"nope","priority":"URGENT"}`, http.StatusBadRequest, "Unsupported priority"},
		{"terminate unknown", http.MethodPost, "/api/v1/transcriptions/nope/terminate", ``, http.StatusNotFound, "File not found"},
		{"download unknown", http.MethodGet, "/api/v1/transcriptions/nope/download", ``, http.StatusNotFound, "File not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := s.do(req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			if got := decodeError(t, rec); got != tt.detail {
				t.Errorf("error = %q, want %q", got, tt.detail)
			}
		})
	}
}

func TestJobQueries(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nope", nil))
	if rec.Code != http.StatusNotFound || decodeError(t, rec) != "Job not found" {
		t.Errorf("missing job = %d %s", rec.Code, rec.Body)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty list = %d %s", rec.Code, rec.Body)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs?status=paused", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d", rec.Code)
	}
	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs?type=render", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad type filter = %d", rec.Code)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs/stats", nil))
	var stats map[string]int64
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if _, ok := stats[models.JobStatusFailed]; !ok || len(stats) != 4 {
		t.Errorf("stats = %v, want every status present", stats)
	}
}

func TestJobDeleteProtectsPendingWork(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	transcribe := &models.ProcessingJob{Type: models.JobTypeTranscribe, Priority: models.JobPriorityBatch}
	terminate := &models.ProcessingJob{Type: models.JobTypeTerminate, Priority: models.JobPriorityImmediate}
	finished := &models.ProcessingJob{Type: models.JobTypeOptimize, Priority: models.JobPriorityNormal}
	for _, job := range []*models.ProcessingJob{transcribe, terminate, finished} {
		if err := s.db.Jobs.Create(ctx, job); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.db.Jobs.Fail(ctx, finished.ID, "ffmpeg exploded"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		id     string
		status int
	}{
		{"queued transcribe", transcribe.ID, http.StatusBadRequest},
		{"queued terminate", terminate.ID, http.StatusNoContent},
		{"failed optimize", finished.ID, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+tt.id, nil))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
		})
	}

	if job, _ := s.db.Jobs.GetByID(ctx, transcribe.ID); job == nil {
		t.Error("queued transcribe job was deleted")
	}
}

func TestNotificationStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/sse/notifications", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	s.hub.Publish(ctx, models.ChannelNotifications, models.Notification{
		ID:      "f1",
		Status:  models.StatusProcessing,
		Type:    models.NotificationInfo,
		Task:    models.TaskTranscription,
		Message: "transcription in process",
	})

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(line, "data: ") || !strings.Contains(line, `"message":"transcription in process"`) {
		t.Errorf("event = %q", line)
	}
}

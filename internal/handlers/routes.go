package handlers

import "github.com/labstack/echo/v4"

// Register は /api/v1 配下のルートを登録する
func Register(g *echo.Group, files *FileHandler, transcriptions *TranscriptionHandler, jobs *JobHandler, notifications *NotificationHandler) {
	g.POST("/files", files.Upload)
	g.GET("/files", files.List)
	g.GET("/files/:id", files.Get)
	g.DELETE("/files/:id", files.Delete)

	g.POST("/transcriptions", transcriptions.Create)
	g.GET("/transcriptions", transcriptions.List)
	g.GET("/transcriptions/:file_id/download", transcriptions.Download)
	g.POST("/transcriptions/:file_id/terminate", transcriptions.Terminate)

	g.GET("/sse/notifications", notifications.Stream)

	g.GET("/jobs", jobs.List)
	g.GET("/jobs/stats", jobs.Stats)
	g.GET("/jobs/:id", jobs.Get)
	g.DELETE("/jobs/:id", jobs.Delete)
}

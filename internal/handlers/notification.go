package handlers

import (
	"fmt"
	"net/http"
	"time"

	"transcriber/internal/apperr"
	"transcriber/internal/notify"

	"github.com/labstack/echo/v4"
)

// NotificationHandler は通知をServer-Sent Eventsで配信する
type NotificationHandler struct {
	subscriber notify.Subscriber
	channel    string
	heartbeat  time.Duration
}

// NewNotificationHandler は新しいNotificationHandlerを作成
func NewNotificationHandler(subscriber notify.Subscriber, channel string) *NotificationHandler {
	return &NotificationHandler{subscriber: subscriber, channel: channel, heartbeat: 15 * time.Second}
}

// Stream は接続が切れるまで通知を送り続ける
// GET /api/v1/sse/notifications
func (h *NotificationHandler) Stream(c echo.Context) error {
	ctx := c.Request().Context()

	messages, err := h.subscriber.Subscribe(ctx, h.channel)
	if err != nil {
		return respondError(c, apperr.Unavailable("Error: Notifications unavailable", err))
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(res, "data: %s\n\n", msg); err != nil {
				return nil
			}
			res.Flush()
		case <-ticker.C:
			// コメント行で接続を維持する
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

package api

import (
	"io"
	"net/http"
	"time"

	"tiger-life/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const streamKeepAlive = 25 * time.Second

func (h *Handler) listNotifications(c *gin.Context) {
	notifications, err := h.svc.Notifications.List(c.Request.Context(), currentSession(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, notifications)
}

func (h *Handler) unreadCount(c *gin.Context) {
	inbox := service.NewInbox(h.svc.Notifications, currentSession(c))
	if err := inbox.Refetch(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": inbox.UnreadCount()})
}

type markReadRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

func (h *Handler) markNotificationsRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	updated, err := h.svc.Notifications.MarkRead(c.Request.Context(), currentSession(c), req.IDs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// streamNotifications pushes inbox updates as server-sent events: a "toast"
// frame per new notification followed by the refreshed "notifications" frame
func (h *Handler) streamNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	inbox := service.NewInbox(h.svc.Notifications, currentSession(c))

	updates, err := inbox.Start(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case update, ok := <-updates:
			if !ok {
				return false
			}
			if update.Toast != "" {
				c.SSEvent("toast", update.Toast)
			}
			c.SSEvent("notifications", update)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-ctx.Done():
			return false
		case <-h.closing:
			return false
		}
	})
}

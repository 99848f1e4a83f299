package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type sendMessageRequest struct {
	ReceiverID uuid.UUID `json:"receiver_id" binding:"required"`
	Content    string    `json:"content"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	msg, err := h.svc.Messages.Send(c.Request.Context(), currentSession(c), req.ReceiverID, req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) conversation(c *gin.Context) {
	other, ok := pathID(c, "userId")
	if !ok {
		return
	}

	messages, err := h.svc.Messages.Conversation(c.Request.Context(), currentSession(c), other)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) listPartners(c *gin.Context) {
	users, err := h.svc.Messages.Partners(c.Request.Context(), currentSession(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// streamConversation pushes each new message between the caller and
// :userId as a "message" server-sent event
func (h *Handler) streamConversation(c *gin.Context) {
	other, ok := pathID(c, "userId")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	messages, err := h.svc.Messages.Subscribe(ctx, currentSession(c), other)
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
		case msg, ok := <-messages:
			if !ok {
				return false
			}
			c.SSEvent("message", msg)
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

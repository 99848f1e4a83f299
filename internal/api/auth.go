package api

import (
	"net/http"

	"tiger-life/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sessionCookie = "tiger_session"
	sessionKey    = "session"
	userIDValue   = "user_id"
)

// loadSession resolves the cookie to a service.Session. The admin flag is
// re-read from the users table on every request, so revocation takes effect
// immediately.
func (h *Handler) loadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(sessionKey, service.Anonymous)

		cookie, err := h.cookies.Get(c.Request, sessionCookie)
		if err != nil {
			c.Next()
			return
		}
		raw, ok := cookie.Values[userIDValue].(string)
		if !ok {
			c.Next()
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			c.Next()
			return
		}

		sess, err := h.svc.Users.SessionFor(c.Request.Context(), userID)
		if err != nil {
			h.logger.Warn("Dropping stale session", zap.String("user_id", raw), zap.Error(err))
			c.Next()
			return
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) service.Session {
	if v, ok := c.Get(sessionKey); ok {
		if sess, ok := v.(service.Session); ok {
			return sess
		}
	}
	return service.Anonymous
}

func (h *Handler) startSession(c *gin.Context, userID uuid.UUID) error {
	cookie, _ := h.cookies.Get(c.Request, sessionCookie)
	cookie.Values[userIDValue] = userID.String()
	return cookie.Save(c.Request, c.Writer)
}

func (h *Handler) signUp(c *gin.Context) {
	var req service.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	user, err := h.svc.Users.SignUp(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.startSession(c, user.ID); err != nil {
		h.logger.Error("Failed to save session", zap.Error(err))
	}

	c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email and password are required")
		return
	}

	user, err := h.svc.Users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.startSession(c, user.ID); err != nil {
		h.logger.Error("Failed to save session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign in"})
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *Handler) logout(c *gin.Context) {
	cookie, _ := h.cookies.Get(c.Request, sessionCookie)
	cookie.Options.MaxAge = -1
	if err := cookie.Save(c.Request, c.Writer); err != nil {
		h.logger.Warn("Failed to clear session", zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	sess := currentSession(c)
	if !sess.Authenticated() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Please sign in first"})
		return
	}

	user, err := h.svc.Users.Get(c.Request.Context(), sess.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req service.ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	user, err := h.svc.Users.UpdateProfile(c.Request.Context(), currentSession(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

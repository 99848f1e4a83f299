package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"tiger-life/internal/service"
	"tiger-life/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services are the operations the HTTP layer exposes
type Services struct {
	Users         *service.UserService
	Orders        *service.OrderService
	Events        *service.EventService
	Notifications *service.NotificationService
	Listings      *service.ListingService
	Messages      *service.MessageService
}

// Pinger is a dependency checked by the readiness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	svc     Services
	cookies sessions.Store
	deps    map[string]Pinger
	logger  *zap.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

// NewHandler creates a new HTTP handler. deps are pinged by /ready.
func NewHandler(svc Services, cookies sessions.Store, deps map[string]Pinger) *Handler {
	return &Handler{
		svc:     svc,
		cookies: cookies,
		deps:    deps,
		logger:  util.ComponentLogger("http"),
		closing: make(chan struct{}),
	}
}

// Shutdown ends open streams so the server can drain
func (h *Handler) Shutdown() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(h.loadSession())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/checkout-success", h.checkoutSuccess)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/signup", h.signUp)
		v1.POST("/auth/login", h.login)
		v1.POST("/auth/logout", h.logout)
		v1.GET("/auth/me", h.me)
		v1.PUT("/auth/me", h.updateProfile)

		v1.POST("/checkout", h.initiateCheckout)
		v1.GET("/orders", h.listOrders)

		v1.GET("/events", h.listEvents)
		v1.GET("/events/:id", h.getEvent)
		v1.POST("/events", h.submitEvent)
		v1.PUT("/events/:id", h.updateEvent)
		v1.DELETE("/events/:id", h.deleteEvent)
		v1.PUT("/events/:id/approval", h.setEventApproval)

		v1.GET("/notifications", h.listNotifications)
		v1.GET("/notifications/unread-count", h.unreadCount)
		v1.POST("/notifications/read", h.markNotificationsRead)
		v1.GET("/notifications/stream", h.streamNotifications)

		v1.GET("/messages", h.listPartners)
		v1.GET("/messages/:userId", h.conversation)
		v1.GET("/messages/:userId/stream", h.streamConversation)
		v1.POST("/messages", h.sendMessage)

		for _, kind := range []string{"products", "services"} {
			listings := v1.Group("/" + kind)
			listings.GET("", h.listListings)
			listings.GET("/mine", h.listMyListings)
			listings.GET("/:id", h.getListing)
			listings.POST("", h.createListing)
			listings.PUT("/:id", h.updateListing)
			listings.DELETE("/:id", h.deleteListing)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// respondError writes err as {"error": message} with a status matching its kind
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch service.KindOf(err) {
	case service.KindValidation:
		status = http.StatusBadRequest
	case service.KindPermission:
		status = http.StatusForbidden
		if !currentSession(c).Authenticated() {
			status = http.StatusUnauthorized
		}
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindNetwork:
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": service.Message(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

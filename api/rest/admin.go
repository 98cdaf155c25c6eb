package rest

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/weblab-class/pomo-dungeon/presence"
	"github.com/weblab-class/pomo-dungeon/scheduler"
	"go.uber.org/zap"
)

// AdminAuth gates the admin endpoints behind a static key carried in
// the X-Admin-Key header. With no key configured the endpoints stay
// closed rather than open.
func AdminAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin access disabled"})
			return
		}
		got := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// AdminHandler serves operator-facing introspection endpoints.
type AdminHandler struct {
	tracker   *presence.Tracker
	scheduler *scheduler.Scheduler
	logger    *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(tracker *presence.Tracker, sched *scheduler.Scheduler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{tracker: tracker, scheduler: sched, logger: logger}
}

// Metrics handles GET /api/admin/metrics.
func (h *AdminHandler) Metrics(c *gin.Context) {
	snap := h.tracker.Metrics().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"relay":       snap,
		"connections": h.tracker.ConnCount(),
		"tasks":       h.scheduler.ListTickers(),
	})
}

// Online handles GET /api/admin/online.
func (h *AdminHandler) Online(c *gin.Context) {
	users := h.tracker.OnlineUsers()
	c.JSON(http.StatusOK, gin.H{
		"count": len(users),
		"users": users,
	})
}

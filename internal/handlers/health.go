package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"medvision-server/internal/utils"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service liveness and database reachability.
type HealthHandler struct {
	db Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health answers 200 with the database up, 503 otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		utils.RequestLogger(c).WithError(err).Warn("health check failed")
		c.JSON(http.StatusServiceUnavailable, utils.ResponseData{OK: false, Message: "database unavailable", Data: gin.H{"status": "DOWN"}})
		return
	}
	utils.Success(c, "healthy", gin.H{"status": "UP"})
}

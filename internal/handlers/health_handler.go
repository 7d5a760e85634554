package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"pixtools/internal/database"
	"pixtools/internal/objectstore"
)

// HealthHandler implements GET /api/health (spec §6).
type HealthHandler struct {
	db      *database.DB
	rdb     *redis.Client
	objects objectstore.Gateway
}

// NewHealthHandler wires the Health Endpoint's dependencies.
func NewHealthHandler(db *database.DB, rdb *redis.Client, objects objectstore.Gateway) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb, objects: objects}
}

func (h *HealthHandler) Handle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	deps := gin.H{
		"database":    depStatus(h.db.Health(ctx)),
		"redis":       depStatus(h.rdb.Ping(ctx).Err()),
		"objectstore": depStatus(h.objects.Health(ctx)),
	}
	// The broker (asynq) has no independent ping; its availability is the
	// same Redis instance's, so it mirrors the "redis" result.
	deps["broker"] = deps["redis"]

	healthy := true
	for _, v := range deps {
		if v != "ok" {
			healthy = false
			break
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}

func depStatus(err error) string {
	if err != nil {
		return "down"
	}
	return "ok"
}

package handlers

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"pixtools/internal/config"
	"pixtools/internal/middleware"
)

// Router groups the three HTTP surface components (spec §6).
type Router struct {
	Submit *SubmitHandler
	Status *StatusHandler
	Health *HealthHandler
}

// Setup builds the Gin engine, following the teacher's base-router shape:
// otelgin tracing, request/access-log middleware, security headers, rate
// limiting, CORS, then the shared-key gate in front of the API group.
func (r *Router) Setup(cfg *config.Config) *gin.Engine {
	router := gin.New()

	router.Use(otelgin.Middleware("pixtools"))
	router.Use(middleware.Observability())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RateLimit())
	router.SetTrustedProxies(nil)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.GetAllowedOrigins()
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-API-Key", "Idempotency-Key"}
	corsConfig.AllowMethods = []string{"GET", "POST"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", r.Health.Handle)

	api := router.Group("/api")
	api.Use(middleware.SharedKey(cfg.SharedAPIKey))
	{
		api.POST("/process", r.Submit.Handle)
		api.GET("/jobs/:id", r.Status.Handle)
		api.GET("/health", r.Health.Handle)
	}

	return router
}

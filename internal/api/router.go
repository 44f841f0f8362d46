package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the API under basePath. /health and /metrics stay at the
// root.
func NewRouter(h *Handler, basePath string, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(h.logger))

	api := r.Group(basePath)
	{
		// Auth
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)

		authed := api.Group("")
		authed.Use(AuthMiddleware(h.auth))

		// Emissions
		authed.POST("/emissions", h.CreateEmission)
		authed.GET("/emissions/recent", h.GetRecentEmissions)

		// Dashboard
		authed.GET("/dashboard/stats", h.GetDashboardStats)
		authed.GET("/credits/monthly", h.GetMonthlyCredits)

		// Alerts
		authed.GET("/alerts", h.GetAlerts)
		authed.PATCH("/alerts/:id/read", h.MarkAlertRead)

		// Sensors
		authed.GET("/sensors", h.GetSensors)
		authed.POST("/sensors", RequireAdmin(), h.CreateSensor)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

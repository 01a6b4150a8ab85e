package router

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/route"

	"SiteSign/config"
	"SiteSign/internal/handler"
	"SiteSign/internal/middleware"
)

// Register mounts the geofence API on r. extra middlewares (tracing) run
// after recover and before everything else.
func Register(r *route.Engine, h *handler.GeofenceHandler, extra ...app.HandlerFunc) {
	r.Use(middleware.RecoverMiddleware())
	r.Use(extra...)
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.CORSMiddleware())

	r.GET("/health", handler.Health)

	api := r.Group("/api")
	{
		api.POST("/geofence-action", h.GeofenceAction)

		notify := []app.HandlerFunc{h.PushNotify}
		if config.Cfg.RateLimitEnabled {
			notify = append([]app.HandlerFunc{middleware.VisitRateLimitMiddleware(middleware.NotifyRateLimitConfig())}, notify...)
		}
		api.POST("/push-notify", notify...)

		api.POST("/push-subscription", h.SavePushSubscription)
		api.GET("/push/public-key", h.PushPublicKey)
		api.GET("/visits/:visitId/geofence", h.TrackerConfig)
	}
}

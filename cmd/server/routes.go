package main

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"verifyflow.backend/internal/config"
	"verifyflow.backend/internal/interfaces/http/handlers"
	"verifyflow.backend/internal/interfaces/http/middleware"
	"verifyflow.backend/pkg/jwt"
)

type routeDeps struct {
	verificationHandler *handlers.VerificationHandler
	adminHandler        *handlers.AdminHandler
	webhookHandler      *handlers.WebhookHandler
	authMiddleware      gin.HandlerFunc
	idempotency         gin.HandlerFunc
}

func newRouter(cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	if cfg.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = cfg.MaxUploadBytes
	}
	return r
}

func registerHealthRoutes(r *gin.Engine, h *handlers.HealthHandler) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
}

func registerMetricsRoute(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/api/v1")
	{
		// Customer verification routes (protected)
		verifications := v1.Group("/verifications")
		verifications.Use(d.authMiddleware, middleware.RequireRole(jwt.RoleCustomer))
		{
			verifications.POST("", d.idempotency, d.verificationHandler.CreateVerification)
			verifications.GET("/current", d.verificationHandler.GetCurrentVerification)
			verifications.GET("/:id", d.verificationHandler.GetVerification)
			verifications.POST("/:id/documents", d.idempotency, d.verificationHandler.UploadDocument)
		}

		// Provider callbacks, authenticated by signature
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/provider", d.webhookHandler.HandleProviderWebhook)
		}

		// Admin routes (protected)
		admin := v1.Group("/admin")
		admin.Use(d.authMiddleware, middleware.RequireRole(jwt.RoleAdmin))
		{
			admin.GET("/verifications", d.adminHandler.ListVerifications)
			admin.GET("/verifications/:id", d.adminHandler.GetVerification)
			admin.POST("/verifications/:id/approve", d.adminHandler.ApproveVerification)
			admin.POST("/verifications/:id/reject", d.adminHandler.RejectVerification)

			admin.POST("/documents/:id/resolve", d.adminHandler.ResolveDocument)
			admin.POST("/documents/:id/reverify", d.adminHandler.ReverifyDocument)
			admin.GET("/documents/:id/download-url", d.adminHandler.GetDownloadURL)

			admin.GET("/provider-logs", d.adminHandler.ListProviderLogs)
			admin.GET("/queue/stats", d.adminHandler.GetQueueStats)
		}
	}
}

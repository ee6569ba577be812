// internal/router/router.go
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/vistahub/license-gate/internal/config"
	"github.com/vistahub/license-gate/internal/handlers"
	"github.com/vistahub/license-gate/internal/middleware"
	"github.com/vistahub/license-gate/internal/services"
	"github.com/vistahub/license-gate/internal/store"
	"github.com/vistahub/license-gate/internal/utils"
)

// Router owns the gin engine and the background workers its handlers need.
type Router struct {
	Engine *gin.Engine

	recorder      *services.AccessRecorder
	verifyLimiter *middleware.RateLimiter
	authLimiter   *middleware.RateLimiter
}

// Initialize wires stores, services and handlers. nonces may be nil to
// disable replay detection.
func Initialize(db *gorm.DB, cfg *config.Config, nonces services.NonceStore) (*Router, error) {
	// Initialize stores
	licenseStore := store.NewLicenseStore(db)
	projectStore := store.NewProjectStore(db)
	accessLogStore := store.NewAccessLogStore(db)

	// Initialize services
	payloadService, err := services.NewPayloadService(cfg.AWS, cfg.Delivery.PayloadURLTTL)
	if err != nil {
		return nil, err
	}
	encoder := services.NewDeliveryEncoder()
	recorder := services.NewAccessRecorder(accessLogStore, cfg.Delivery.RecorderBuffer, cfg.Delivery.StoreTimeout)
	signatureService := services.NewSignatureService(cfg.Signature, nonces, cfg.Delivery.StoreTimeout)
	verificationService := services.NewVerificationService(
		signatureService, licenseStore, recorder, payloadService, encoder, cfg.Delivery.StoreTimeout,
	)
	adminService := services.NewAdminService(
		licenseStore, projectStore, accessLogStore, encoder,
		cfg.Delivery.LicenseKeyPrefix, cfg.Server.PublicBaseURL, cfg.Delivery.StoreTimeout,
	)
	tokens := utils.NewTokenManager(cfg.JWT.SecretKey, cfg.JWT.Issuer, time.Duration(cfg.JWT.AccessTokenTTL)*time.Hour)
	authService := services.NewAuthService(cfg.Admin, tokens)

	// Initialize handlers
	verificationHandler := handlers.NewVerificationHandler(verificationService)
	authHandler := handlers.NewAuthHandler(authService)
	adminHandler := handlers.NewAdminHandler(adminService)
	licenseHandler := handlers.NewLicenseHandler(adminService)

	rt := &Router{
		recorder:      recorder,
		verifyLimiter: middleware.PerMinute(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
		authLimiter:   middleware.PerMinute(5, 5),
	}

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.I18nMiddleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Client facing delivery protocol
	r.GET("/api/verify", rt.verifyLimiter.PlainMiddleware(), verificationHandler.Deliver)
	r.POST("/verify", rt.verifyLimiter.Middleware(), verificationHandler.Verify)

	// API v1 routes
	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.Use(rt.authLimiter.Middleware())
		{
			auth.POST("/login", authHandler.Login)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AdminRequired(tokens))
		{
			admin.POST("/projects", adminHandler.CreateProject)
			admin.GET("/projects", adminHandler.GetProjects)

			admin.POST("/licenses", licenseHandler.IssueLicense)
			admin.GET("/licenses", licenseHandler.GetLicenses)
			admin.GET("/licenses/:key", licenseHandler.GetLicense)
			admin.PUT("/licenses/:key/ban", licenseHandler.BanLicense)
			admin.PUT("/licenses/:key/unban", licenseHandler.UnbanLicense)
			admin.PUT("/licenses/:key/reset-binding", licenseHandler.ResetBinding)
			admin.PUT("/licenses/:key/owner", licenseHandler.AssignOwner)
			admin.DELETE("/licenses/:key", licenseHandler.DeleteLicense)
			admin.GET("/licenses/:key/access-logs", licenseHandler.GetAccessLogs)

			admin.POST("/owners/:owner/reset-binding", adminHandler.ResetOwnerBindings)
			admin.GET("/owners/:owner/loader", adminHandler.GetOwnerLoader)
		}
	}

	rt.Engine = r
	return rt, nil
}

// Start runs the rate limiter housekeeping until ctx is done.
func (rt *Router) Start(ctx context.Context) {
	go rt.verifyLimiter.Run(ctx)
	go rt.authLimiter.Run(ctx)
}

// Close flushes pending access records. Call it after the HTTP server has
// stopped accepting requests.
func (rt *Router) Close() {
	rt.recorder.Close()
}

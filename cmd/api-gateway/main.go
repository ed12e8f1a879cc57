package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/qms-manual-api/api/swagger"
	"github.com/noah-isme/qms-manual-api/internal/handler"
	"github.com/noah-isme/qms-manual-api/internal/middleware"
	"github.com/noah-isme/qms-manual-api/internal/models"
	"github.com/noah-isme/qms-manual-api/internal/repository"
	"github.com/noah-isme/qms-manual-api/internal/service"
	"github.com/noah-isme/qms-manual-api/pkg/cache"
	"github.com/noah-isme/qms-manual-api/pkg/config"
	"github.com/noah-isme/qms-manual-api/pkg/database"
	"github.com/noah-isme/qms-manual-api/pkg/jobs"
	"github.com/noah-isme/qms-manual-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/qms-manual-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/qms-manual-api/pkg/middleware/requestid"
	"github.com/noah-isme/qms-manual-api/pkg/storage"
)

// @title QMS Manual API
// @version 1.0.0
// @description Lifecycle, diff and export service for regulated quality manuals
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, diff cache disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	manualRepo := repository.NewManualRepository(db)
	revisionRepo := repository.NewRevisionRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	metricsSvc := service.NewMetricsService()
	tokenSvc := service.NewTokenService(cfg.JWT)
	authSvc := service.NewAuthService(userRepo, tokenSvc, auditRepo, validate, logr)
	manualSvc := service.NewManualService(manualRepo, validate, logr)
	revisionSvc := service.NewRevisionService(manualRepo, revisionRepo, auditRepo, logr)

	diffRedis := redisClient
	if !cfg.Diff.CacheEnabled {
		diffRedis = nil
	}
	diffSvc := service.NewDiffService(revisionRepo, repository.NewCacheRepository(diffRedis, logr), cfg.Diff.CacheTTL, logr)
	diffSvc.SetMetrics(metricsSvc)

	renderSvc := service.NewExportRenderService(manualRepo, revisionRepo)
	exportSvc := service.NewExportJobService(exportJobRepo, manualRepo, renderSvc, files, signer, auditRepo, service.ExportJobConfig{
		MaxAttempts: cfg.Exports.WorkerRetries,
		StaleAfter:  cfg.Exports.StaleAfter,
		URLTTL:      cfg.Exports.SignedURLTTL,
	}, logr)
	exportSvc.SetMetrics(metricsSvc)

	queue := jobs.NewQueue("exports", exportSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	})
	exportSvc.SetDispatcher(queue)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	defer queue.Stop()

	if err := exportSvc.RecoverJobs(ctx); err != nil {
		logr.Sugar().Warnw("export job recovery failed", "error", err)
	}
	exportSvc.StartArtifactCleanup(ctx, cfg.Exports.CleanupInterval, cfg.Exports.ArtifactTTL)

	authHandler := handler.NewAuthHandler(authSvc)
	manualHandler := handler.NewManualHandler(manualSvc)
	revisionHandler := handler.NewRevisionHandler(revisionSvc, diffSvc)
	exportHandler := handler.NewExportHandler(exportSvc, renderSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.GET("/me", middleware.JWT(tokenSvc), authHandler.Me)

	editors := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleEditor)
	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)

	manuals := api.Group("/manuals", middleware.JWT(tokenSvc))
	manuals.GET("", manualHandler.List)
	manuals.POST("", editors, middleware.Audit(auditRepo, models.AuditActionManualCreate, "manual"), manualHandler.Create)
	manuals.GET("/:id", manualHandler.Get)
	manuals.PUT("/:id", editors, manualHandler.Update)
	manuals.DELETE("/:id", admins, manualHandler.Archive)
	manuals.PUT("/:id/sections", editors, manualHandler.ReplaceSections)

	manuals.GET("/:id/revisions", revisionHandler.List)
	manuals.GET("/:id/revisions/export", exportHandler.History)
	manuals.GET("/:id/revisions/:revisionId", revisionHandler.Get)
	manuals.POST("/:id/submit", editors, revisionHandler.Submit)
	manuals.POST("/:id/approve", admins, revisionHandler.Approve)
	manuals.POST("/:id/reject", admins, revisionHandler.Reject)
	manuals.POST("/:id/draft", editors, revisionHandler.CreateDraft)
	manuals.POST("/:id/restore", editors, revisionHandler.Restore)
	manuals.GET("/:id/diff", revisionHandler.Diff)

	manuals.POST("/:id/exports", exportHandler.Create)

	exportsGroup := api.Group("/exports")
	exportsGroup.GET("/:jobId", middleware.JWT(tokenSvc), exportHandler.Status)
	exportsGroup.GET("/download/:token", exportHandler.Download)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

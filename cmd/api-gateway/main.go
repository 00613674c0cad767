package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/himastat/siorma-api/api/swagger"
	"github.com/himastat/siorma-api/internal/handler"
	"github.com/himastat/siorma-api/internal/middleware"
	"github.com/himastat/siorma-api/internal/models"
	"github.com/himastat/siorma-api/internal/repository"
	"github.com/himastat/siorma-api/internal/service"
	"github.com/himastat/siorma-api/pkg/cache"
	"github.com/himastat/siorma-api/pkg/config"
	"github.com/himastat/siorma-api/pkg/database"
	"github.com/himastat/siorma-api/pkg/jobs"
	"github.com/himastat/siorma-api/pkg/logger"
	corsmiddleware "github.com/himastat/siorma-api/pkg/middleware/cors"
	reqidmiddleware "github.com/himastat/siorma-api/pkg/middleware/requestid"
	"github.com/himastat/siorma-api/pkg/storage"
)

// @title SIORMA API
// @version 1.0.0
// @description Back-office for the statistics outreach organization: document submission, approval workflow, and decision recaps
// @BasePath /api/v1
// @schemes http

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
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Submissions.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, feed caching disabled", "error", err)
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Submissions.CacheTTL, logr, true)
		}
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	programRepo := repository.NewProgramRepository(db)
	reportRepo := repository.NewReportRepository(db)
	lpjRepo := repository.NewLPJRepository(db)
	recapRepo := repository.NewRecapRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "siorma-api",
	})
	programSvc := service.NewProgramService(programRepo, userRepo, validate, logr)
	submissionSvc := service.NewSubmissionService(reportRepo, lpjRepo, programRepo, userRepo, cacheSvc, logr)
	approvalSvc := service.NewApprovalService(reportRepo, lpjRepo, userRepo, submissionSvc, metricsSvc, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	programHandler := handler.NewProgramHandler(programSvc)
	submissionHandler := handler.NewSubmissionHandler(submissionSvc, approvalSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var recapHandler *handler.RecapHandler
	var recapQueue *jobs.Queue
	if cfg.Recaps.Enabled {
		store, err := storage.NewLocalStorage(cfg.Recaps.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init recap storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Recaps.SignedURLSecret, cfg.Recaps.SignedURLTTL)
		exporter := service.NewRecapExportService(recapRepo, store, signer, service.RecapExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Recaps.SignedURLTTL,
		}, logr, nil, nil)
		worker := service.NewRecapWorker(recapRepo, exporter, cfg.Recaps.WorkerRetries, logr)
		recapQueue = jobs.NewQueue("recaps", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Recaps.WorkerConcurrency,
			MaxRetries: cfg.Recaps.WorkerRetries,
			Logger:     logr,
		})
		recapQueue.Start(ctx)
		defer recapQueue.Stop()

		recapSvc := service.NewRecapService(recapRepo, recapQueue, exporter, logr, service.RecapServiceConfig{
			ResultTTL:       cfg.Recaps.SignedURLTTL,
			CleanupInterval: cfg.Recaps.CleanupInterval,
			MaxRetries:      cfg.Recaps.WorkerRetries,
		})
		recapSvc.RecoverPendingJobs(ctx)
		recapSvc.StartCleanup(ctx)
		recapHandler = handler.NewRecapHandler(recapSvc)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		start := time.Now()
		err := db.PingContext(c.Request.Context())
		metricsSvc.ObserveDBQuery("ping", time.Since(start))
		if err != nil {
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
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	programs := api.Group("/programs", middleware.JWT(authSvc))
	{
		programs.GET("", programHandler.List)
		programs.GET("/:id", programHandler.Get)
		programs.POST("", middleware.RequireRoles(models.RoleKetua, models.RoleKoordinator), programHandler.Create)
		programs.PUT("/:id", middleware.RequireRoles(models.RoleKetua, models.RoleKoordinator), programHandler.Update)
		programs.DELETE("/:id", middleware.RequireRoles(models.RoleKetua), programHandler.Delete)
	}

	submissions := api.Group("/submissions", middleware.JWT(authSvc))
	{
		submissions.POST("", submissionHandler.Create)
		submissions.GET("/mine", submissionHandler.Mine)
		submissions.GET("/queue", middleware.RequireRoles(models.RoleKetua), submissionHandler.Queue)
		submissions.POST("/:id/decision", middleware.RequireRoles(models.RoleKetua), submissionHandler.Decide)
	}

	if recapHandler != nil {
		recaps := api.Group("/recaps")
		{
			recaps.GET("/download/:token", recapHandler.Download)
			recaps.POST("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleKetua),
				middleware.Audit(userRepo, models.AuditActionRecapRequest, "recap"), recapHandler.Generate)
			recaps.GET("/:id", middleware.JWT(authSvc), recapHandler.Status)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

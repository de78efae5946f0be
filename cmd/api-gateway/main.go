package main

import (
	"context"
	"errors"
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

	_ "github.com/learnhub/lms-portal-api/api/swagger"
	"github.com/learnhub/lms-portal-api/internal/handler"
	"github.com/learnhub/lms-portal-api/internal/middleware"
	"github.com/learnhub/lms-portal-api/internal/models"
	"github.com/learnhub/lms-portal-api/internal/repository"
	"github.com/learnhub/lms-portal-api/internal/scheduler"
	"github.com/learnhub/lms-portal-api/internal/service"
	"github.com/learnhub/lms-portal-api/pkg/cache"
	"github.com/learnhub/lms-portal-api/pkg/config"
	"github.com/learnhub/lms-portal-api/pkg/database"
	"github.com/learnhub/lms-portal-api/pkg/logger"
	corsmiddleware "github.com/learnhub/lms-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/learnhub/lms-portal-api/pkg/middleware/requestid"
	"github.com/learnhub/lms-portal-api/pkg/storage"
)

// @title LMS Portal API
// @version 1.0.0
// @description Batch and enrollment cycle controller for the learner portal
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	cacheRepo := repository.NewCacheRepository(nil, logr)
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	defer cacheRepo.Close() //nolint:errcheck

	validate := validator.New()
	location := cfg.Cycle.Location()

	eventRepo := repository.NewEventRepository(db)
	cycleRepo := repository.NewCycleRepository(db)
	settingsRepo := repository.NewSemesterSettingsRepository(db)
	userRepo := repository.NewUserRepository(db)

	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
	cycleService := service.NewCycleService(cycleRepo, eventRepo, cacheService, metricsService, validate, logr, location)
	windowService := service.NewWindowService(eventRepo, cycleService, cacheService, logr)

	exportOpts := service.ExportOptions{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.ResultTTL}
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStore(cfg.Exports.Dir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		exportOpts.Store = store
		exportOpts.Signer = storage.NewSigner(cfg.JWT.Secret, cfg.Exports.ResultTTL)
	}
	eventService := service.NewEventService(eventRepo, cacheService, exportOpts, validate, logr)
	settingsService := service.NewSemesterSettingsService(settingsRepo, cycleService, logr)
	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	authHandler := handler.NewAuthHandler(authService)
	cycleHandler := handler.NewCycleHandler(cycleService, settingsService)
	eventHandler := handler.NewEventHandler(eventService, windowService, location, cfg.Exports.Enabled)
	settingsHandler := handler.NewSemesterSettingsHandler(settingsService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/enrollment/window", eventHandler.Window)
		api.POST("/auth/login", authHandler.Login)
		api.GET("/auth/me", middleware.JWT(authService), authHandler.Me)

		admin := api.Group("", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin))
		{
			admin.GET("/cycle", cycleHandler.Status)
			admin.POST("/cycle/check-events", cycleHandler.CheckEvents)
			admin.POST("/cycle/semesters/complete", cycleHandler.CompleteSemester)
			admin.POST("/cycle/progress", cycleHandler.Progress)
			admin.GET("/cycle/trainers", cycleHandler.Trainers)
			admin.POST("/cycle/end-batch", cycleHandler.EndBatch)

			admin.GET("/events", eventHandler.List)
			admin.GET("/events/export", eventHandler.Export)
			admin.GET("/events/export/download/:token", eventHandler.Download)
			admin.GET("/events/:id", eventHandler.Get)
			admin.POST("/events", eventHandler.Create)
			admin.PUT("/events/:id", eventHandler.Update)
			admin.DELETE("/events/:id", eventHandler.Delete)
		}

		trainer := api.Group("/trainer", middleware.JWT(authService), middleware.RequireRoles(models.RoleTrainer, models.RoleAdmin))
		{
			trainer.GET("/semester", settingsHandler.Get)
			trainer.POST("/semester/complete", settingsHandler.Complete)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var poller *scheduler.Scheduler
	if cfg.Cycle.SchedulerEnabled {
		if cfg.Exports.Enabled {
			poller = scheduler.New(cycleService, eventService, cfg.Cycle.CheckInterval, logr)
		} else {
			poller = scheduler.New(cycleService, nil, cfg.Cycle.CheckInterval, logr)
		}
		poller.Start(ctx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	if poller != nil {
		poller.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/opencourse/lms-api/api/swagger"
	"github.com/opencourse/lms-api/internal/handler"
	"github.com/opencourse/lms-api/internal/middleware"
	"github.com/opencourse/lms-api/internal/models"
	"github.com/opencourse/lms-api/internal/repository"
	"github.com/opencourse/lms-api/internal/service"
	"github.com/opencourse/lms-api/pkg/cache"
	"github.com/opencourse/lms-api/pkg/config"
	"github.com/opencourse/lms-api/pkg/database"
	"github.com/opencourse/lms-api/pkg/logger"
	corsmiddleware "github.com/opencourse/lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/opencourse/lms-api/pkg/middleware/requestid"
	"github.com/opencourse/lms-api/pkg/storage"
)

// @title OpenCourse LMS API
// @version 1.0.0
// @description Course progress, completion and certificate service
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

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(nil, logr)
	cacheEnabled := false
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			cacheEnabled = true
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.DefaultTTL, logr, cacheEnabled)

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	completionRepo := repository.NewCompletionRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)
	reviewRepo := repository.NewReviewRepository(db)

	notificationSvc := service.NewNotificationService(cfg.Notifications, logr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshExpiration, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	lessonSvc := service.NewLessonService(lessonRepo, courseRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, notificationSvc, validate, logr)
	completionSvc := service.NewCompletionService(progressRepo, completionRepo, cacheSvc, metricsSvc, cfg.Progress.CompletionThreshold, logr)
	certificateSvc := service.NewCertificateService(certificateRepo, enrollmentRepo, courseRepo, completionSvc, notificationSvc, metricsSvc,
		cfg.Certificates.EligibilityThreshold, cfg.Certificates.MaxGenerateAttempts, logr)
	progressSvc := service.NewProgressService(progressRepo, lessonRepo, courseRepo, enrollmentRepo, completionSvc, certificateSvc, notificationSvc, validate, logr)
	reviewSvc := service.NewReviewService(reviewRepo, courseSvc, lessonSvc, validate, logr)

	var transcriptSvc *service.TranscriptService
	if cfg.Transcripts.Enabled {
		store, err := storage.NewLocalStorage(cfg.Transcripts.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init transcript storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Transcripts.SignedURLSecret, cfg.Transcripts.SignedURLTTL)
		transcriptSvc = service.NewTranscriptService(progressSvc, courseRepo, store, signer, true, logr)
		go transcriptCleanupLoop(ctx, transcriptSvc, cfg.Transcripts.SignedURLTTL)
	} else {
		transcriptSvc = service.NewTranscriptService(progressSvc, courseRepo, nil, nil, false, logr)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, lessonSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	progressHandler := handler.NewProgressHandler(progressSvc, completionSvc)
	certificateHandler := handler.NewCertificateHandler(certificateSvc)
	reviewHandler := handler.NewReviewHandler(reviewSvc)
	transcriptHandler := handler.NewTranscriptHandler(transcriptSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Scrape)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.GET("/certificates/verify/:hash", certificateHandler.Verify)
	api.GET("/transcripts/download", transcriptHandler.Download)

	catalog := api.Group("")
	catalog.Use(middleware.OptionalJWT(authSvc))
	catalog.GET("/courses", courseHandler.List)
	catalog.GET("/courses/:id", courseHandler.Get)
	catalog.GET("/courses/:id/lessons", courseHandler.ListLessons)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.GET("/auth/me", authHandler.Me)

	instructors := authed.Group("")
	instructors.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor))
	instructors.POST("/courses", courseHandler.Create)
	instructors.PUT("/courses/:id", courseHandler.Update)
	instructors.POST("/courses/:id/lessons", courseHandler.CreateLesson)
	instructors.PUT("/lessons/:id", courseHandler.UpdateLesson)
	instructors.POST("/reviews", reviewHandler.Submit)
	instructors.GET("/reviews", reviewHandler.Get)

	authed.GET("/enrollments", enrollmentHandler.List)
	authed.POST("/enrollments/free", enrollmentHandler.EnrollFree)
	authed.POST("/enrollments/paid", enrollmentHandler.EnrollPaid)
	authed.PUT("/enrollments/:id/cancel", enrollmentHandler.Cancel)
	authed.POST("/enrollments/:id/certificate", certificateHandler.Request)
	authed.GET("/enrollments/:id/certificate", certificateHandler.Get)

	authed.PUT("/progress", progressHandler.Record)
	authed.GET("/progress/lessons/:id", progressHandler.GetLesson)
	authed.GET("/progress/courses/:id", progressHandler.GetCourse)
	authed.POST("/courses/:id/transcript", transcriptHandler.Export)

	admins := authed.Group("")
	admins.Use(middleware.RequireRoles(models.RoleAdmin))
	admins.PUT("/enrollments/:id/refund", enrollmentHandler.Refund)
	admins.PUT("/certificates/:id/approve", certificateHandler.Approve)
	admins.PUT("/certificates/:id/revoke", certificateHandler.Revoke)
	admins.PUT("/reviews/approve", reviewHandler.Approve)
	admins.PUT("/reviews/reject", reviewHandler.Reject)
	admins.PUT("/courses/:id/unpublish", courseHandler.Unpublish)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func transcriptCleanupLoop(ctx context.Context, transcripts *service.TranscriptService, ttl time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			transcripts.Cleanup(ttl)
		}
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lms-core-api/api/swagger"
	"github.com/noah-isme/lms-core-api/internal/handler"
	"github.com/noah-isme/lms-core-api/internal/middleware"
	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/repository"
	"github.com/noah-isme/lms-core-api/internal/service"
	"github.com/noah-isme/lms-core-api/pkg/cache"
	"github.com/noah-isme/lms-core-api/pkg/config"
	"github.com/noah-isme/lms-core-api/pkg/database"
	"github.com/noah-isme/lms-core-api/pkg/export"
	"github.com/noah-isme/lms-core-api/pkg/jobs"
	"github.com/noah-isme/lms-core-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lms-core-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lms-core-api/pkg/middleware/requestid"
	"github.com/noah-isme/lms-core-api/pkg/storage"
)

// @title LMS Core API
// @version 1.0.0
// @description Curriculum progression and gating engine
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsService := service.NewMetricsService()

	redisClient, err := cache.NewRedis(cfg.Redis)
	var cacheService *service.CacheService
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	} else {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Leaderboard.CacheTTL, logr, true)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	unitRepo := repository.NewUnitRepository(db)
	curriculumRepo := repository.NewCurriculumRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	leaderboardRepo := repository.NewLeaderboardRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "lms-core-api",
	})

	gatingService := service.NewGatingService(userRepo, unitRepo, curriculumRepo, enrollmentRepo, logr)

	var certificateService *service.CertificateService
	if cfg.Certificates.Enabled {
		store, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init certificate storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)
		certificateService = service.NewCertificateService(certificateRepo, userRepo, unitRepo, export.NewPDFExporter(), store, signer, logr)
	}

	leaderboardService := service.NewLeaderboardService(leaderboardRepo, cacheService, cfg.Leaderboard.CacheTTL, cfg.Leaderboard.PageSize, logr)

	var refreshQueue *jobs.Queue
	if cfg.Leaderboard.Enabled {
		refreshQueue = jobs.NewQueue("leaderboard-refresh", func(ctx context.Context, job jobs.Job) error {
			learnerID, ok := job.Payload.(string)
			if !ok {
				return fmt.Errorf("unexpected payload type %T", job.Payload)
			}
			learner, err := userRepo.FindByID(ctx, learnerID)
			if err != nil {
				return err
			}
			return leaderboardService.Refresh(ctx, learner.Division)
		}, jobs.QueueConfig{
			Workers:    cfg.Leaderboard.RefreshWorker,
			BufferSize: cfg.Leaderboard.RefreshQueue,
			Logger:     logr,
		})
		refreshQueue.Start(context.Background())
		defer refreshQueue.Stop()
	}

	var certIssuer interface {
		Issue(ctx context.Context, learnerID, unitID string) error
	}
	if certificateService != nil {
		certIssuer = certificateService
	}
	var refreshEnqueuer interface{ Enqueue(jobs.Job) error }
	if refreshQueue != nil {
		refreshEnqueuer = refreshQueue
	}

	progressService := service.NewProgressService(progressRepo, lessonRepo, enrollmentRepo, userRepo, gatingService, leaderboardRepo, certIssuer, refreshEnqueuer, validate, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, gatingService, validate, logr)
	unitService := service.NewUnitService(unitRepo, lessonRepo, gatingService, validate, logr)
	curriculumService := service.NewCurriculumService(curriculumRepo, validate, logr)
	structureService := service.NewStructureService(curriculumRepo, unitRepo, userRepo, gatingService, validate, logr)
	userService := service.NewUserService(userRepo, curriculumRepo, enrollmentRepo, progressRepo, validate, logr)

	authHandler := handler.NewAuthHandler(authService)
	unitHandler := handler.NewUnitHandler(unitService)
	curriculumHandler := handler.NewCurriculumHandler(curriculumService, structureService)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService)
	progressHandler := handler.NewProgressHandler(progressService)
	leaderboardHandler := handler.NewLeaderboardHandler(leaderboardService)
	userHandler := handler.NewUserHandler(userService)
	certificateHandler := handler.NewCertificateHandler(certificateService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
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
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authService))
	{
		protected.GET("/units", unitHandler.Catalog)
		protected.GET("/units/:id", unitHandler.Get)
		protected.GET("/units/:id/progress", progressHandler.UnitProgress)
		protected.POST("/lessons/:id/complete", progressHandler.CompleteLesson)

		protected.GET("/enrollments", enrollmentHandler.List)
		protected.POST("/enrollments", enrollmentHandler.Enroll)
		protected.DELETE("/enrollments/:unitId", enrollmentHandler.Cancel)

		protected.GET("/leaderboard", leaderboardHandler.Page)

		protected.GET("/me", userHandler.Profile)
		protected.GET("/me/curricula", userHandler.AvailableCurricula)
		protected.PUT("/me/curriculum", userHandler.SelectCurriculum)
		protected.GET("/me/transcript", userHandler.Transcript)
		if certificateService != nil {
			protected.GET("/me/certificates", certificateHandler.List)
		}

		protected.GET("/curricula", curriculumHandler.List)
		protected.GET("/curricula/:id", curriculumHandler.Get)
		protected.GET("/curricula/:id/structure", curriculumHandler.Structure)
	}

	staff := api.Group("/admin")
	staff.Use(middleware.JWT(authService), middleware.RequireRank(models.RoleAdmin))
	{
		staff.GET("/units", unitHandler.List)
		staff.POST("/units", unitHandler.Create)
		staff.PUT("/units/:id", unitHandler.Update)
		staff.PATCH("/units/:id/state", unitHandler.SetState)

		staff.POST("/curricula", curriculumHandler.Create)
		staff.PUT("/curricula/:id", curriculumHandler.Update)
		staff.POST("/curricula/:id/units", curriculumHandler.AddMembership)
		staff.PATCH("/curricula/:id/order", curriculumHandler.Reorder)
		staff.DELETE("/curricula/:id/units/:unitId", curriculumHandler.RemoveMembership)
		staff.PUT("/curricula/:id/structure", curriculumHandler.ReplaceStructure)

		staff.GET("/status", metricsHandler.Status)
	}

	if certificateService != nil {
		api.GET("/certificates/download", certificateHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

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
	"go.uber.org/zap"

	_ "github.com/noah-isme/presencepro-api/api/swagger"
	"github.com/noah-isme/presencepro-api/internal/handler"
	internalmiddleware "github.com/noah-isme/presencepro-api/internal/middleware"
	"github.com/noah-isme/presencepro-api/internal/repository"
	"github.com/noah-isme/presencepro-api/internal/service"
	"github.com/noah-isme/presencepro-api/pkg/cache"
	"github.com/noah-isme/presencepro-api/pkg/config"
	"github.com/noah-isme/presencepro-api/pkg/database"
	"github.com/noah-isme/presencepro-api/pkg/jobs"
	"github.com/noah-isme/presencepro-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/presencepro-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/presencepro-api/pkg/middleware/requestid"
	"github.com/noah-isme/presencepro-api/pkg/qrcode"
	"github.com/noah-isme/presencepro-api/pkg/storage"
)

// @title PresencePro API
// @version 1.0.0
// @description QR-code based attendance tracking for courses and lecture sessions.
// @BasePath /api/v1
// @schemes http https
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logr.Sugar().Fatalw("failed to migrate database", "error", err)
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, running without cache", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	reportRepo := repository.NewReportRepository(db)
	settingRepo := repository.NewSettingRepository(db)
	systemLogRepo := repository.NewSystemLogRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	systemLogSvc := service.NewSystemLogService(systemLogRepo, logr, cfg.SystemLogs.Retention)
	settingSvc := service.NewSettingService(settingRepo, systemLogSvc, validate, logr, service.SettingServiceConfig{CacheTTL: time.Minute})
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, cacheRepo.Enabled())

	authSvc := service.NewAuthService(userRepo, tokenRepo, service.AuthDeps{
		Students: studentRepo,
		Courses:  courseRepo,
		Settings: settingSvc,
		Activity: systemLogSvc,
		Metrics:  metricsSvc,
	}, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, systemLogSvc, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, userRepo, systemLogSvc, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, userRepo, studentRepo, enrollmentRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, studentRepo, cacheSvc, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, courseRepo, courseSvc, validate, logr)
	qrSvc := service.NewQRService(sessionRepo, qrcode.NewEncoder(cfg.QR.PublicBaseURL, cfg.QR.ImageSize), settingSvc, systemLogSvc, metricsSvc, logr, service.QRServiceConfig{
		DefaultDuration: cfg.QR.DefaultDuration,
		MaxDuration:     cfg.QR.MaxDuration,
	})
	attendanceSvc := service.NewAttendanceService(service.AttendanceDeps{
		Attendance:  attendanceRepo,
		Sessions:    sessionRepo,
		Courses:     courseRepo,
		Students:    studentRepo,
		Enrollments: enrollmentRepo,
		Counts:      analyticsRepo,
		Access:      studentSvc,
		Cache:       cacheSvc,
		Activity:    systemLogSvc,
		Metrics:     metricsSvc,
	}, validate, logr)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, courseRepo, cacheSvc, logr, service.AnalyticsConfig{CacheTTL: cfg.Dashboard.CacheTTL})
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Users:    userRepo,
		Courses:  courseRepo,
		Sessions: sessionRepo,
		Rates:    analyticsRepo,
		Cache:    cacheSvc,
		Metrics:  metricsSvc,
		Logger:   logr,
		Config:   service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
	})

	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare report storage", "error", err)
	}
	signingSecret := cfg.Reports.SignedURLSecret
	if signingSecret == "" {
		signingSecret = cfg.JWT.Secret
	}
	exportSvc := service.NewExportService(service.ExportServiceDeps{
		Analytics: analyticsRepo,
		Students:  studentRepo,
		Courses:   courseRepo,
		Storage:   reportStore,
		Signer:    storage.NewDownloadSigner(signingSecret, cfg.Reports.SignedURLTTL),
	}, service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Reports.SignedURLTTL}, logr)

	var reportSvc *service.ReportService
	worker := service.NewReportWorker(reportRepo, exportSvc, metricsSvc, logr)
	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
		OnGiveUp: func(job jobs.Job, err error) {
			reportSvc.GiveUp(job, err)
		},
	})
	reportSvc = service.NewReportService(reportRepo, courseRepo, queue, exportSvc, systemLogSvc, metricsSvc, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
	})

	queue.Start(ctx)
	defer queue.Stop()
	reportSvc.RecoverPendingJobs(ctx)
	reportSvc.StartCleanup(ctx)
	authSvc.StartDenylistSweep(ctx, cfg.SystemLogs.SweepInterval)
	systemLogSvc.StartRetentionSweep(ctx, cfg.SystemLogs.SweepInterval)

	if cfg.Seed.AdminPassword != "" {
		created, err := userSvc.EnsureAdmin(ctx, cfg.Seed.AdminUsername, cfg.Seed.AdminEmail, cfg.Seed.AdminPassword)
		if err != nil {
			logr.Sugar().Fatalw("failed to seed administrator", "error", err)
		}
		if created {
			logr.Info("seeded administrator account", zap.String("username", cfg.Seed.AdminUsername))
		}
	}

	metricsHandler := handler.NewMetricsHandler(metricsSvc,
		handler.ReadinessCheck{Name: "postgres", Check: db.PingContext},
		handler.ReadinessCheck{Name: "redis", Check: cacheRepo.Ping},
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	handler.Register(r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		Users:      handler.NewUserHandler(userSvc),
		Students:   handler.NewStudentHandler(studentSvc, exportSvc),
		Courses:    handler.NewCourseHandler(courseSvc, enrollmentSvc, attendanceSvc),
		Sessions:   handler.NewSessionHandler(sessionSvc, qrSvc),
		Attendance: handler.NewAttendanceHandler(attendanceSvc),
		Analytics:  handler.NewAnalyticsHandler(analyticsSvc),
		Reports:    handler.NewReportHandler(reportSvc),
		Admin:      handler.NewAdminHandler(dashboardSvc, settingSvc, systemLogSvc),
	}, authSvc, systemLogSvc)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

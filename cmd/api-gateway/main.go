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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/school-lms-api/api/swagger"
	"github.com/noah-isme/school-lms-api/internal/handler"
	"github.com/noah-isme/school-lms-api/internal/repository"
	"github.com/noah-isme/school-lms-api/internal/service"
	"github.com/noah-isme/school-lms-api/pkg/cache"
	"github.com/noah-isme/school-lms-api/pkg/config"
	"github.com/noah-isme/school-lms-api/pkg/database"
	"github.com/noah-isme/school-lms-api/pkg/events"
	"github.com/noah-isme/school-lms-api/pkg/jobs"
	"github.com/noah-isme/school-lms-api/pkg/logger"
	"github.com/noah-isme/school-lms-api/pkg/mail"
	"github.com/noah-isme/school-lms-api/pkg/storage"
	"github.com/noah-isme/school-lms-api/pkg/validation"
)

// @title School LMS API
// @version 1.0.0
// @description Courses, assignments, grading, attendance, accounting and reporting for a tutoring school.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		logr.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis, logr)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		logr.Info("redis not configured, caching disabled")
	case err != nil:
		// Analytics and summaries fall back to the database when Redis is down.
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	default:
		defer redisClient.Close()
	}

	application, err := buildApp(ctx, cfg, logr, db, redisClient)
	if err != nil {
		logr.Fatal("bootstrap failed", zap.Error(err))
	}
	defer application.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, logr, application),
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

type app struct {
	metrics *service.MetricsService
	users   *repository.UserRepository
	auth    *service.AuthService

	authHandler         *handler.AuthHandler
	userHandler         *handler.UserHandler
	courseHandler       *handler.CourseHandler
	assignmentHandler   *handler.AssignmentHandler
	submissionHandler   *handler.SubmissionHandler
	gradeHandler        *handler.GradeHandler
	accountingHandler   *handler.AccountingHandler
	attendanceHandler   *handler.AttendanceHandler
	calendarHandler     *handler.CalendarHandler
	analyticsHandler    *handler.AnalyticsHandler
	reportHandler       *handler.ReportHandler
	notificationHandler *handler.NotificationHandler
	materialHandler     *handler.MaterialHandler
	metricsHandler      *handler.MetricsHandler

	publisher events.Publisher
	queue     *jobs.Queue
}

func (a *app) close() {
	if a.queue != nil {
		a.queue.Stop()
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client) (*app, error) {
	validate := validation.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	calendarRepo := repository.NewCalendarRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	reportRepo := repository.NewReportRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	materialRepo := repository.NewMaterialRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Analytics.CacheTTL, logr, cfg.Analytics.Enabled && redisClient != nil)

	publisher, err := newPublisher(cfg, logr)
	if err != nil {
		return nil, err
	}
	notificationSvc := service.NewNotificationService(notificationRepo, groupRepo, validate, logr)
	publisher = events.WithHandlers(events.Observe(publisher, metrics.ObserveEvent), notificationSvc.HandleEvent)
	mailer := newMailer(cfg, logr)

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	authSvc := service.NewAuthService(userRepo, mailer, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		Audience:           cfg.JWT.Audience,
		ResetTokenExpiry:   cfg.JWT.ResetExpiration,
		ResetURL:           cfg.AppBaseURL + "/reset-password",
		SingleSession:      cfg.JWT.SingleSession,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, groupRepo, userRepo, validate, logr, cfg.Accounting.DefaultCurrency)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, courseRepo, groupRepo, submissionRepo, publisher, validate, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, assignmentRepo, groupRepo, publisher, validate, logr)
	gradeSvc := service.NewGradeService(submissionRepo, assignmentRepo, courseRepo, userRepo, publisher, mailer, validate, logr)
	accountingSvc := service.NewAccountingService(transactionRepo, paymentRepo, attendanceRepo, groupRepo, courseRepo, cacheSvc, publisher, validate, logr, service.AccountingConfig{
		DefaultCurrency: cfg.Accounting.DefaultCurrency,
		SummaryCacheTTL: cfg.Accounting.SummaryCacheTTL,
	})
	attendanceSvc := service.NewAttendanceService(attendanceRepo, courseRepo, groupRepo, validate, logr)
	if cfg.Accounting.SessionIncome {
		attendanceSvc.WithSessionIncome(transactionRepo, cfg.Accounting.DefaultCurrency)
	}
	calendarSvc := service.NewCalendarService(calendarRepo, assignmentRepo, groupRepo, validate, logr)
	materialSvc := service.NewMaterialService(materialRepo, courseRepo, groupRepo, validate, logr)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, courseRepo, courseRepo, groupRepo, cacheSvc, metrics, logr, cfg.Analytics.CacheTTL)

	exporter := service.NewExportService(submissionRepo, transactionRepo, attendanceRepo, store, signer, nil, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logr)
	worker := service.NewReportWorker(reportRepo, exporter, metrics, logr)
	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:       cfg.Reports.WorkerConcurrency,
		BufferSize:    64,
		MaxRetries:    cfg.Reports.WorkerRetries,
		RetryDelay:    5 * time.Second,
		MaxRetryDelay: time.Minute,
		Logger:        logr,
		Observer:      metrics.ObserveJob,
	})
	reportSvc := service.NewReportService(reportRepo, courseRepo, queue, exporter, validate, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
	})
	if cfg.Reports.Enabled {
		queue.Start(ctx)
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)
	}

	checks := map[string]handler.HealthCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	return &app{
		metrics: metrics,
		users:   userRepo,
		auth:    authSvc,

		authHandler: handler.NewAuthHandler(authSvc, handler.CookieConfig{
			Name:   cfg.JWT.CookieName,
			Secure: cfg.JWT.CookieSecure,
		}),
		userHandler:         handler.NewUserHandler(userSvc),
		courseHandler:       handler.NewCourseHandler(courseSvc),
		assignmentHandler:   handler.NewAssignmentHandler(assignmentSvc),
		submissionHandler:   handler.NewSubmissionHandler(submissionSvc),
		gradeHandler:        handler.NewGradeHandler(gradeSvc),
		accountingHandler:   handler.NewAccountingHandler(accountingSvc),
		attendanceHandler:   handler.NewAttendanceHandler(attendanceSvc),
		calendarHandler:     handler.NewCalendarHandler(calendarSvc),
		analyticsHandler:    handler.NewAnalyticsHandler(analyticsSvc),
		reportHandler:       handler.NewReportHandler(reportSvc),
		notificationHandler: handler.NewNotificationHandler(notificationSvc),
		materialHandler:     handler.NewMaterialHandler(materialSvc),
		metricsHandler:      handler.NewMetricsHandler(metrics, checks),

		publisher: publisher,
		queue:     queue,
	}, nil
}

func newPublisher(cfg *config.Config, logr *zap.Logger) (events.Publisher, error) {
	if cfg.NATS.URL == "" {
		logr.Info("NATS_URL not set, domain events are dropped")
		return events.NopPublisher{}, nil
	}
	return events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, cfg.NATS.ConnectTimeout, logr)
}

func newMailer(cfg *config.Config, logr *zap.Logger) mail.Mailer {
	if cfg.Mail.SendgridAPIKey == "" {
		return mail.NewLogMailer(logr)
	}
	return mail.NewSendgridMailer(cfg.Mail.SendgridAPIKey, cfg.Mail.FromName, cfg.Mail.FromAddress, cfg.Mail.SubjectPrefix)
}

func newStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverS3:
		return storage.NewS3Storage(storage.S3Config{
			Bucket:   cfg.Storage.S3Bucket,
			Region:   cfg.Storage.S3Region,
			Prefix:   cfg.Storage.S3Prefix,
			Endpoint: cfg.Storage.S3Endpoint,
		})
	case config.StorageDriverLocal, "":
		return storage.NewDiskStore(cfg.Storage.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

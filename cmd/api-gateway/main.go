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

	"github.com/noah-isme/sma-li-api/internal/handler"
	"github.com/noah-isme/sma-li-api/internal/middleware"
	"github.com/noah-isme/sma-li-api/internal/models"
	"github.com/noah-isme/sma-li-api/internal/repository"
	"github.com/noah-isme/sma-li-api/internal/service"
	"github.com/noah-isme/sma-li-api/pkg/cache"
	"github.com/noah-isme/sma-li-api/pkg/config"
	"github.com/noah-isme/sma-li-api/pkg/database"
	"github.com/noah-isme/sma-li-api/pkg/jobs"
	"github.com/noah-isme/sma-li-api/pkg/logger"
	"github.com/noah-isme/sma-li-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/sma-li-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-li-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-li-api/pkg/pdf"
	"github.com/noah-isme/sma-li-api/pkg/storage"
)

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, unlock caching disabled", "error", err)
		redisClient = nil
	}

	signer := storage.NewURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
	blob, err := storage.NewLocalStorage(cfg.Storage.BaseDir, cfg.BaseURL, signer)
	if err != nil {
		logr.Sugar().Fatalw("failed to init storage", "error", err)
	}

	var mail mailer.Mailer
	if cfg.Mail.Provider == "sendgrid" && cfg.Mail.SendgridKey != "" {
		mail = mailer.NewSendgridMailer(cfg.Mail.SendgridKey, cfg.Mail.FromName, cfg.Mail.FromAddress)
	} else {
		mail = mailer.NewConsoleMailer(logr)
	}

	userRepo := repository.NewUserRepository(db)
	appRepo := repository.NewApplicationRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	formRepo := repository.NewFormResponseRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	tokenRepo := repository.NewSupervisorTokenRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	validate := validator.New()

	notifSvc := service.NewNotificationService(notifRepo, userRepo, mail, logr)
	docSvc := service.NewDocumentService(docRepo, blob, logr)
	unlockSvc := service.NewUnlockService(appRepo, docRepo, formRepo, cacheRepo, notifSvc, cfg.Workflow.UnlockCacheTTL, logr)
	pdfSvc := service.NewPDFService(pdf.NewRegistry(), appRepo, sessionRepo, userRepo, formRepo, blob, docSvc, logr)

	outbox := jobs.NewQueue("workflow-followups", func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(service.FollowUpPayload)
		if !ok {
			return fmt.Errorf("unexpected payload for job %s", job.ID)
		}
		switch job.Type {
		case service.JobTypeRegeneratePDF:
			_, err := pdfSvc.RegenerateDocument(ctx, payload.ApplicationID, payload.DocumentType)
			return err
		case service.JobTypeMaterializeUnlocks:
			_, err := unlockSvc.MaterializeUnlocked(ctx, payload.ApplicationID)
			return err
		default:
			return fmt.Errorf("unknown job type %q", job.Type)
		}
	}, jobs.QueueConfig{Workers: 2, Logger: logr})
	outbox.Start(ctx)
	defer outbox.Stop()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	appSvc := service.NewApplicationService(appRepo, docSvc, formRepo, reviewRepo, sessionRepo, userRepo, notifSvc, outbox, logr)
	reviewSvc := service.NewReviewService(docRepo, appRepo, sessionRepo, reviewRepo, formRepo, notifSvc, outbox, logr)
	sigSvc := service.NewSignatureService(tokenRepo, appRepo, formRepo, docRepo, sessionRepo, userRepo, notifSvc, cfg.Workflow.SupervisorTokenTTL, cfg.BaseURL, logr)

	scheduler := service.NewSchedulerService(appRepo, notifSvc, notifSvc, cfg.Workflow, logr)
	scheduler.Start(ctx)

	authHandler := handler.NewAuthHandler(authSvc)
	appHandler := handler.NewApplicationHandler(appSvc, unlockSvc, validate)
	docHandler := handler.NewDocumentHandler(docSvc, appSvc, pdfSvc)
	reviewHandler := handler.NewReviewHandler(reviewSvc, validate)
	sigHandler := handler.NewSignatureHandler(sigSvc, validate)
	notifHandler := handler.NewNotificationHandler(notifSvc)
	fileHandler := handler.NewFileHandler(signer, blob)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

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

	api := r.Group(cfg.APIPrefix)

	// Public surface: login, supervisor signing links, signed file downloads.
	api.POST("/auth/login", authHandler.Login)
	api.GET("/sign/:token", sigHandler.Verify)
	api.POST("/sign/:token", sigHandler.Sign)
	api.GET("/files/:token", fileHandler.Serve)

	authed := api.Group("", middleware.JWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)
	authed.GET("/notifications", notifHandler.List)

	students := middleware.RequireRoles(models.RoleStudent)
	reviewers := middleware.RequireRoles(models.RoleCoordinator, models.RoleAdmin)

	apps := authed.Group("/applications")
	apps.POST("", students, appHandler.Create)
	apps.GET("", students, appHandler.ListMine)
	apps.GET("/:id", appHandler.Get)
	apps.POST("/:id/submit", students, appHandler.Submit)
	apps.GET("/:id/unlocks", appHandler.Unlocks)
	apps.GET("/:id/documents", docHandler.List)
	apps.POST("/:id/documents/:type", students, docHandler.Upload)
	apps.POST("/:id/forms/bli-03", students, appHandler.SubmitBLI03)
	apps.POST("/:id/forms/bli-04", students, appHandler.SubmitBLI04)
	apps.POST("/:id/forms/bli-03/review", reviewers, reviewHandler.ReviewBLI03)
	apps.POST("/:id/forms/bli-04/verify", reviewers, appHandler.VerifyBLI04)
	apps.GET("/:id/reviews", reviewHandler.List)
	apps.POST("/:id/signing-links", students, sigHandler.Issue)

	docs := authed.Group("/documents")
	docs.GET("/:id/download", docHandler.Download)
	docs.POST("/:id/review", reviewers, reviewHandler.ReviewDocument)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown error", "error", err)
	}
}

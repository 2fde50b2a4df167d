// Package main runs the reception HTTP server with WebSocket screens and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/placepass/backend/config"
	"github.com/placepass/backend/internal/admission"
	"github.com/placepass/backend/internal/approval"
	"github.com/placepass/backend/internal/auth"
	"github.com/placepass/backend/internal/authority"
	"github.com/placepass/backend/internal/invitations"
	"github.com/placepass/backend/internal/middleware"
	"github.com/placepass/backend/internal/models"
	"github.com/placepass/backend/internal/participants"
	"github.com/placepass/backend/internal/places"
	"github.com/placepass/backend/internal/realtime"
	"github.com/placepass/backend/internal/worker"
	"github.com/placepass/backend/pkg/database"
	"github.com/placepass/backend/pkg/queue"
	"github.com/placepass/backend/pkg/redis"
	"github.com/placepass/backend/pkg/response"
	"github.com/placepass/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.PassesBucket != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Endpoint:             cfg.AWS.Endpoint,
			PassesBucket:         cfg.AWS.PassesBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	defer hub.Close()

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Places and bookings
	placeRepo := places.NewRepository(pool)
	invitationRepo := invitations.NewRepository(pool)
	placeService := places.NewService(placeRepo, invitationRepo, logger)
	placeHandler := places.NewHandler(placeService)
	invitationHandler := invitations.NewHandler(invitations.NewService(invitationRepo, placeService, logger))

	// Admission sessions
	participantRepo := participants.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	authorityClient := authority.NewClient(authority.Config{
		BaseURL:       cfg.Authority.BaseURL,
		APIKey:        cfg.Authority.APIKey,
		Timeout:       cfg.Authority.Timeout,
		RatePerSecond: cfg.Authority.RatePerSecond,
		Burst:         cfg.Authority.Burst,
	}, nil, logger)
	pollCfg := approval.Config{Interval: cfg.Admission.PollInterval, MaxTicks: cfg.Admission.PollMaxTicks}
	manager := admission.NewManager(admission.Deps{
		Invitations:  invitationRepo,
		Participants: participantRepo,
		Events:       hub,
		Passes:       worker.NewIssuer(jobQueue),
		Logger:       logger,
	}, func() admission.Poller {
		return approval.NewPoller(authorityClient, pollCfg, logger)
	})
	var receipts admission.ReceiptSigner
	if s3Client != nil {
		receipts = s3Client
	}
	sessionHandler := admission.NewHandler(manager, placeRepo, receipts, logger)

	validateToken := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.OperatorID, nil
	}
	snapshot := func(id uuid.UUID) (any, bool) {
		w, err := manager.Get(id)
		if err != nil {
			return nil, false
		}
		return w.Snapshot(), true
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		if err := rdb.Healthy(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok", "sessions": manager.Len()})
	})

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/me", middleware.JWT(jwtService), authHandler.Me)
	}

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/operators", middleware.RequireRole(models.RoleAdmin), authHandler.CreateOperator)

		desk := middleware.RequireRole(models.RoleAdmin, models.RoleReception)
		placeGroup := api.Group("/places", desk)
		placeHandler.Register(placeGroup)
		invitationHandler.Register(placeGroup)

		sessionHandler.Register(api.Group("/sessions", desk))
	}

	// WebSocket (token in query; browsers cannot set Authorization on upgrade)
	router.GET("/ws", realtime.ServeWs(hub, validateToken, snapshot, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// In-process pass worker when receipt storage is configured; otherwise run cmd/worker.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil {
		processor := worker.NewPassProcessor(participantRepo, s3Client, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("pass worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	manager.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

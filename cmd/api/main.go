package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"shop-api/internal/config"
	"shop-api/internal/db"
	"shop-api/internal/domain"
	"shop-api/internal/email"
	apihttp "shop-api/internal/http"
	"shop-api/internal/repository"
	"shop-api/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	clock := service.SystemClock()

	var (
		accountRepo repository.AccountRepository
		auditRepo   repository.AuditRepository
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		accountRepo = repository.NewPgAccountRepository(pool).WithClock(clock.Now)
		auditRepo = repository.NewPgAuditRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory account store")
		accountRepo = repository.NewMemoryAccountRepository().WithClock(clock.Now)
		auditRepo = repository.NewMemoryAuditRepository()
	}

	if cfg.AuditMongoURI != "" {
		mongoClient, err := db.ConnectMongo(ctx, cfg)
		if err != nil {
			logger.Warn("mongo connect failed, keeping default audit sink", zap.Error(err))
		} else {
			defer func() {
				_ = mongoClient.Disconnect(context.Background())
			}()
			auditRepo = repository.NewMongoAuditRepository(mongoClient.Database(cfg.AuditMongoDatabase))
		}
	}

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS, cfg.SMTPTimeout)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	var (
		limiter     service.RequestLimiter
		revocations service.SessionRevocationStore
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			limiter = service.NewRedisRequestLimiter(redisClient, "auth:requests:", cfg.ResetRequestWindow, cfg.ResetRequestLimit)
			revocations = service.NewRedisSessionRevocationStore(redisClient)
		}
		cancel()
	}
	if limiter == nil {
		limiter = service.NewMemoryRequestLimiter(clock, cfg.ResetRequestWindow, cfg.ResetRequestLimit)
	}
	if revocations == nil {
		revocations = service.NewMemorySessionRevocationStore(clock)
	}

	hasher := service.NewBcryptHasher(cfg.BcryptCost)
	tokenSvc := service.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTL, cfg.CapabilityTokenTTL, clock, revocations)
	policy := service.NewPasswordPolicy(hasher, accountRepo)
	store := service.NewCredentialStore(accountRepo, tokenSvc, policy, clock, cfg.PasswordHistorySize)
	lockout := service.NewLockoutGuard(store, domain.LockoutPolicy{
		Threshold: cfg.LockoutThreshold,
		Duration:  cfg.LockoutDuration,
	}, clock)
	audit := service.NewAuditRecorder(logger, auditRepo, clock, service.AuditConfig{
		BufferSize: cfg.AuditBufferSize,
		Workers:    cfg.AuditWorkers,
		DropIfFull: cfg.AuditDropIfFull,
	})
	defer audit.Close()

	authSvc := service.NewAuthService(logger, service.AuthDependencies{
		Store:          store,
		Policy:         policy,
		Hasher:         hasher,
		Tokens:         tokenSvc,
		Lockout:        lockout,
		Audit:          audit,
		Sender:         emailSender,
		Composer:       email.NewComposer(cfg.AppBaseURL),
		Limiter:        limiter,
		Clock:          clock,
		PasswordMaxAge: cfg.PasswordMaxAge,
	})
	userHandler := apihttp.NewUserHandler(logger, authSvc)
	router := apihttp.NewRouter(logger, userHandler, authSvc)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

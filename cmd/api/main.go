package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harvestly/harvestly/internal/auth"
	"github.com/harvestly/harvestly/internal/background"
	"github.com/harvestly/harvestly/internal/config"
	"github.com/harvestly/harvestly/internal/database"
	"github.com/harvestly/harvestly/internal/handlers"
	"github.com/harvestly/harvestly/internal/repositories"
	"github.com/harvestly/harvestly/internal/routes"
	"github.com/harvestly/harvestly/internal/services"
	pkghttp "github.com/harvestly/harvestly/pkg/http"
	pkglogger "github.com/harvestly/harvestly/pkg/logger"
)

// userStore is the selected persistence backend
type userStore struct {
	repo   services.UserRepository
	health routes.HealthChecker
	close  func(ctx context.Context)
}

func main() {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store", cfg.Database.Driver),
		slog.Bool("demo_mode", cfg.Server.DemoMode),
	)
	if cfg.Server.DemoMode {
		logger.Warn("demo mode enabled: accounts are auto-verified and reset tokens are returned in responses")
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	store, err := openStore(startCtx, cfg, logger)
	if err != nil {
		logger.Error("failed to open user store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store.close(ctx)
	}()

	// Reset throttle is optional; without Redis the cooldown is not enforced
	var throttle services.ResetThrottle
	if cfg.Redis.URL != "" {
		redisClient, err := database.ConnectRedis(startCtx, cfg.Redis.URL, logger)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisClient.Close()
		throttle = repositories.NewRedisResetThrottle(redisClient)
	} else {
		logger.Warn("REDIS_URL not set, password reset cooldown disabled")
	}

	var emailService services.EmailService
	switch cfg.Email.Provider {
	case "ses":
		emailService, err = services.NewAWSSESEmailService(startCtx, cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Email.AppURL, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
	default:
		emailService = services.NewLogEmailService(cfg.Email.AppURL, logger)
	}

	var uploader services.ImageUploader
	if cfg.Cloudinary.Enabled() {
		uploader, err = services.NewCloudinaryService(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		if err != nil {
			logger.Error("failed to initialize cloudinary", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Warn("cloudinary not configured, profile picture uploads disabled")
	}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	failureDelay := auth.NewFailureDelay(cfg.Auth.LoginFailureDelay, cfg.Auth.LoginFailureDelay/2)
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Initialize services
	verificationService := services.NewEmailVerificationService(store.repo, emailService, logger, auditLogger)
	authService := services.NewAuthService(store.repo, tokenManager, verificationService, failureDelay, logger, auditLogger, cfg.Server.DemoMode)
	resetService := services.NewPasswordResetService(store.repo, tokenManager, emailService, throttle,
		cfg.Auth.ResetRequestCooldown, cfg.Auth.ResetTokenExpiry, logger, auditLogger)
	userService := services.NewUserService(store.repo, tokenManager, uploader, logger, auditLogger)

	// Initialize handlers
	ips := pkghttp.NewClientIPResolver(cfg.Server.TrustedProxies)
	authHandler := handlers.NewAuthHandler(authService, resetService, verificationService, ips, cfg.Server.DemoMode)
	userHandler := handlers.NewUserHandler(userService)

	// Bootstrap first admin user if configured
	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		if err := authService.EnsureAdmin(startCtx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			logger.Error("failed to ensure admin user", slog.Any("error", err))
		}
	}
	startCancel()

	router := routes.NewRouter(routes.RouterConfig{
		Env:            cfg.Server.Env,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		AuthRateLimit:  cfg.Auth.AuthRateLimit,
		IPs:            ips,
		Logger:         logger,
	}, userHandler, authHandler, tokenManager, store.repo, store.health)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(resetService, logger, cfg.Auth.CleanupInterval)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	// Let queued reset emails finish before the process exits
	resetService.Wait()

	logger.Info("server stopped gracefully")
}

// openStore connects the backend named by STORE_DRIVER and prepares its schema
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*userStore, error) {
	switch cfg.Database.Driver {
	case config.DriverMongo:
		db, err := database.ConnectMongo(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		return &userStore{
			repo:   repositories.NewMongoUserRepository(db),
			health: db,
			close: func(ctx context.Context) {
				if err := db.Close(ctx); err != nil {
					logger.Error("failed to close mongo", slog.Any("error", err))
				}
			},
		}, nil

	case config.DriverPostgres:
		if err := database.Migrate(ctx, cfg.Database.PostgresURL); err != nil {
			return nil, err
		}
		db, err := database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		return &userStore{
			repo:   repositories.NewPostgresUserRepository(db),
			health: db,
			close:  func(context.Context) { db.Close() },
		}, nil

	case config.DriverMemory:
		logger.Warn("using in-memory user store, data is lost on restart")
		repo := repositories.NewMemoryUserRepository()
		return &userStore{repo: repo, health: repo, close: func(context.Context) {}}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Database.Driver)
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/lorrc/event-attendance-backend/internal/adapters/primary/http"
	mw "github.com/lorrc/event-attendance-backend/internal/adapters/primary/http/middleware"
	"github.com/lorrc/event-attendance-backend/internal/adapters/primary/websocket"
	"github.com/lorrc/event-attendance-backend/internal/adapters/secondary/postgres"
	"github.com/lorrc/event-attendance-backend/internal/auth"
	"github.com/lorrc/event-attendance-backend/internal/config"
	"github.com/lorrc/event-attendance-backend/internal/core/services"
	"github.com/lorrc/event-attendance-backend/internal/infrastructure/i18n"
	"github.com/lorrc/event-attendance-backend/internal/infrastructure/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("service exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})
	slog.SetDefault(logger)

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Database Pool
	if cfg.Database.MigrateOnStart {
		if err := postgres.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath, logger); err != nil {
			return err
		}
	}

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("database connection established")

	// 4. Initialize Security & Real-time Components
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	hub := websocket.NewHub(websocket.Config{
		BroadcastBuffer: cfg.WebSocket.BroadcastBuffer,
		SendBuffer:      cfg.WebSocket.SendBuffer,
		WriteWait:       cfg.WebSocket.WriteWait,
		PongWait:        cfg.WebSocket.PongWait,
		PingPeriod:      cfg.WebSocket.PingInterval,
		MaxMessageSize:  cfg.WebSocket.MaxMessageSize,
	}, logger)

	translator := i18n.NewTranslator(cfg.I18n.DefaultLocale, logger)
	errorHandler := httpAdapter.NewErrorHandler(logger, translator)

	// 5. Initialize Rate Limiters
	var generalLimiter, authLimiter, writeLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		generalLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		}, errorHandler.Handle)
		defer generalLimiter.Stop()

		authLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.AuthRPS,
			BurstSize:         cfg.RateLimit.AuthBurst,
			CleanupInterval:   time.Minute,
			TTL:               5 * time.Minute,
		}, errorHandler.Handle)
		defer authLimiter.Stop()

		writeLimiter = mw.NewKeyedRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.WriteRPS,
			BurstSize:         cfg.RateLimit.WriteBurst,
			CleanupInterval:   time.Minute,
			TTL:               5 * time.Minute,
		}, mw.UserOrIPKey, errorHandler.Handle)
		defer writeLimiter.Stop()
	}

	// 6. Dependency Injection (Wiring the Hexagon)
	userRepo := postgres.NewUserRepository(pool)
	eventRepo := postgres.NewEventRepository(pool)

	authService := services.NewAuthService(userRepo)
	attendanceService := services.NewAttendanceService(eventRepo, hub, logger, cfg.Attendance.OperationTimeout)

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		Logger:       logger,
		ErrorHandler: errorHandler,
		TokenManager: tokenManager,
		Users:        authService,
		Events:       httpAdapter.NewEventHandler(attendanceService, errorHandler, logger),
		Auth:         httpAdapter.NewAuthHandler(authService, tokenManager, errorHandler, logger),
		WebSocket: httpAdapter.NewWebSocketHandler(hub, httpAdapter.WebSocketConfig{
			AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
			IsDevelopment:   cfg.IsDevelopment(),
		}, logger),
		Health:            httpAdapter.NewHealthHandler(pool, hub, cfg.App.Version),
		UserLookupTimeout: cfg.Attendance.OperationTimeout,
		CORSOrigins:       cfg.CORS.AllowedOrigins,
		TrustProxy:        cfg.RateLimit.TrustProxy,
		GeneralLimiter:    generalLimiter,
		AuthLimiter:       authLimiter,
		WriteLimiter:      writeLimiter,
	})

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by Shutdown; the
		// hub closes them when gctx ends.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

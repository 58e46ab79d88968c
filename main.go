package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"juntify/internal/api"
	"juntify/internal/config"
	"juntify/internal/database"
	"juntify/internal/group"
	"juntify/internal/meeting"
	"juntify/internal/middleware"
	"juntify/internal/ratelimit"
	"juntify/internal/storage"
	"juntify/internal/telemetry"
	"juntify/internal/user"
	"juntify/internal/validator"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage/postgres/v3"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	cfg := config.NewConfig()
	logger := newLogger(cfg.Server.Environment)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(environment string) *slog.Logger {
	var handler slog.Handler
	if environment == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shut down telemetry", "error", err)
		}
	}()

	db := database.NewDatabase()
	if err := db.Connect(ctx, cfg.Database.DSN()); err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable, rate limits will fail open to errors", "error", err)
	}

	sessionStorage := postgres.New(postgres.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Name,
		Username: cfg.Database.User,
		Password: cfg.Database.Password,
		Table:    "tbl_session",
		Reset:    false,
	})
	store := session.New(session.Config{
		Storage:        sessionStorage,
		KeyLookup:      "cookie:" + cfg.Session.CookieName,
		CookiePath:     "/",
		CookieSecure:   cfg.Server.Environment == "production",
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		Expiration:     cfg.Session.Expiration,
	})

	files, err := storage.New(ctx, storage.Config{
		Type:      storage.Type(cfg.Storage.Type),
		LocalPath: cfg.Storage.LocalPath,
		S3Bucket:  cfg.Storage.S3Bucket,
		S3Region:  cfg.Storage.S3Region,
	})
	if err != nil {
		return err
	}

	users := user.NewManager(logger, &db)
	groups := group.NewManager(logger, &db)
	meetings := meeting.NewManager(logger, &db, files)
	limiter := ratelimit.New(redisClient)
	validate := validator.New()

	app := fiber.New(fiber.Config{
		AppName:      "Juntify Escolar",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BodyLimit:    100 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(telemetry.FiberMiddleware(cfg.Telemetry.ServiceName))

	app.Static("/", "./static")

	auth := middleware.NewAuth(logger, store, &users)
	handler := api.NewHandler(logger, store, validate, &db, &users, &groups, &meetings, limiter, version)
	handler.RegisterRoutes(app, &auth)

	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		logger.Info("Server listening", "addr", addr, "environment", cfg.Server.Environment)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/tasksched/tasksched/internal/config"
	"github.com/tasksched/tasksched/internal/handler"
	"github.com/tasksched/tasksched/internal/repository"
	"github.com/tasksched/tasksched/internal/service"
	"github.com/tasksched/tasksched/internal/token"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadIdentity()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("database connected")

	users := repository.NewUserRepository(db)
	codec := token.New(cfg.JWTSecret, cfg.TokenTTL)
	authSvc := service.NewAuthService(users, codec)
	fedSvc := service.NewFederationService(users, codec, service.FederationConfig{
		GoogleClientID:     cfg.GoogleClientID,
		GoogleClientSecret: cfg.GoogleClientSecret,
		GitHubClientID:     cfg.GitHubClientID,
		GitHubClientSecret: cfg.GitHubClientSecret,
		CallbackBaseURL:    cfg.CallbackBaseURL,
	})
	authHandler := handler.NewAuthHandler(authSvc, fedSvc, cfg.JWTSecret, cfg.FrontendURL)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler
	e.Validator = handler.NewAppValidator()
	e.Use(middleware.RequestID())
	e.Use(handler.RequestLogger())
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	auth := e.Group("/api/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/register", authHandler.Register)
	auth.POST("/validate", authHandler.ValidateToken)
	auth.POST("/principal-info", authHandler.PrincipalInfo)
	auth.GET("/oauth2/authorize/:provider", authHandler.OAuthAuthorize)
	auth.GET("/oauth2/callback/:provider", authHandler.OAuthCallback)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("identity service starting", "port", cfg.Port)
		errCh <- e.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("identity service stopped gracefully")
	return nil
}

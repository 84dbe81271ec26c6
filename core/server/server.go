package server

import (
	"context"
	"fmt"
	"net/http"

	"chronos-server/core/cache"
	"chronos-server/core/config"
	"chronos-server/core/constants"
	"chronos-server/core/database"
	"chronos-server/core/logger"
	"chronos-server/core/tasks"
	"chronos-server/modules/auth"
	"chronos-server/modules/calendar"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

// Run wires the whole application: config, database, cache, background
// worker, modules, HTTP server. Blocks until the HTTP server exits.
func Run() error {
	cfg, err := config.Init()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.InitDB(database.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return err
	}

	if err := database.RunMigrations(context.Background(), db); err != nil {
		return err
	}

	appCache, err := cache.NewCache(cache.CacheConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("failed to init cache: %w", err)
	}

	taskClient := tasks.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer taskClient.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowCredentials: true,
	}))

	mux := asynq.NewServeMux()

	// Module wiring
	auth.Init(e, db)
	calendar.Init(e, db, appCache, taskClient, mux)

	worker := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB},
		asynq.Config{
			Concurrency:     4,
			ShutdownTimeout: constants.ShutdownTimeout,
		},
	)

	go func() {
		if err := worker.Run(mux); err != nil {
			logger.Error("Server:Worker:Error", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Server starting", "addr", addr)
	return e.Start(addr)
}

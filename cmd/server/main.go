package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/Skufu/medassist/internal/api"
	"github.com/Skufu/medassist/internal/config"
	"github.com/Skufu/medassist/internal/dashboard"
	"github.com/Skufu/medassist/internal/diagnosis"
	"github.com/Skufu/medassist/internal/imaging"
	"github.com/Skufu/medassist/internal/logging"
)

const serviceName = "medassist"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logging.Init(serviceName, cfg.Development())
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()
	var db api.HealthChecker
	if cfg.EnableDB {
		pool, err := connectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		defer pool.Close()
		db = pool
	}

	ctrl, err := buildController(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer ctrl.Close()

	staticRoot := cfg.StaticRoot
	if staticRoot == "" {
		staticRoot = detectStaticRoot()
	}
	router := api.NewRouter(api.Options{
		Controller:     ctrl,
		DB:             db,
		StaticRoot:     staticRoot,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	log.Info().Str("port", cfg.Port).Dur("analysis_delay", cfg.AnalysisDelay).Msg("server listening")
	waitForShutdown(server)
}

func buildController(cfg *config.Config) (*dashboard.Controller, error) {
	catalog, err := diagnosis.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load condition catalog: %w", err)
	}
	pipeline := imaging.NewPipeline(
		imaging.WithDelay(cfg.AnalysisDelay),
		imaging.WithLogger(log.With().Str("component", "imaging").Logger()),
	)
	return dashboard.NewController(catalog, pipeline), nil
}

func connectDB(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

func waitForShutdown(server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func detectStaticRoot() string {
	startDir, err := os.Getwd()
	if err != nil {
		return "."
	}

	candidates := []string{
		startDir,
		filepath.Join(startDir, "web"),
		filepath.Dir(startDir),
		filepath.Dir(filepath.Dir(startDir)),
	}

	for _, dir := range candidates {
		if fileExists(filepath.Join(dir, "index.html")) {
			return dir
		}
	}

	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

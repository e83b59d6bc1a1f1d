package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-authoring/internal/config"
	"github.com/stemsi/exstem-authoring/internal/database"
	"github.com/stemsi/exstem-authoring/internal/handler"
	"github.com/stemsi/exstem-authoring/internal/logger"
	"github.com/stemsi/exstem-authoring/internal/repository"
	"github.com/stemsi/exstem-authoring/internal/router"
	"github.com/stemsi/exstem-authoring/internal/service"
	"github.com/stemsi/exstem-authoring/internal/validator"
	"github.com/stemsi/exstem-authoring/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting exam authoring API")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.OpenPostgres(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.OpenRedis(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	adminRepo := repository.NewAdminRepository(pool)
	roleRepo := repository.NewRoleRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	partRepo := repository.NewPartRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	events := service.NewExamEvents(rdb, log)
	authService := service.NewAuthService(cfg, rdb)
	adminService := service.NewAdminService(adminRepo, roleRepo)
	mediaService := service.NewMediaService(questionRepo, events, rdb, cfg, log)
	examService := service.NewExamService(examRepo, mediaService, events, rdb, cfg, log)
	partService := service.NewPartService(examRepo, partRepo, mediaService, events, log)
	questionService := service.NewQuestionService(partRepo, questionRepo, mediaService, events, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:     handler.NewAuthHandler(authService, adminService),
		Exam:     handler.NewExamHandler(examService),
		Part:     handler.NewPartHandler(partService),
		Question: handler.NewQuestionHandler(questionService),
		Media:    handler.NewMediaHandler(mediaService),
		WS:       handler.NewWSHandler(examService, events, log, cfg.AllowedOrigins),
		Health:   handler.NewHealthHandler(database.NewHealth(pool, rdb)),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	cleanupWorker := worker.NewMediaCleanupWorker(worker.NewRedisOrphanQueue(rdb), questionRepo, mediaService, cfg.MediaOrphanGrace, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		cleanupWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for the orphan queue to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

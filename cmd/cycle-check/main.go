package main

import (
	"context"
	"log"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/learnhub/lms-portal-api/internal/repository"
	"github.com/learnhub/lms-portal-api/internal/service"
	"github.com/learnhub/lms-portal-api/pkg/config"
	"github.com/learnhub/lms-portal-api/pkg/database"
	"github.com/learnhub/lms-portal-api/pkg/logger"
)

// One-shot variant of the in-process scheduler, intended for cron. Runs a
// single check-and-activate pass and exits.
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	eventRepo := repository.NewEventRepository(db)
	cycleRepo := repository.NewCycleRepository(db)
	cycleService := service.NewCycleService(cycleRepo, eventRepo, nil, nil, validator.New(), logr, cfg.Cycle.Location())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := cycleService.CheckEnrollmentEvents(ctx)
	if err != nil {
		logr.Sugar().Fatalw("cycle check failed", "error", err)
	}

	logr.Sugar().Infow("cycle check completed",
		"activated", result.Activated,
		"batch", result.Cycle.CurrentBatch,
		"state", result.Cycle.CycleState)
}

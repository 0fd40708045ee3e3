// Package main is the entry point for the folio allocation service.
// It wires the price extraction, forecasting, risk estimation, and
// optimization modules behind an HTTP API, with optional scheduled
// runs and database snapshot backups.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/folio/internal/clients/yahoo"
	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/modules/accuracy"
	"github.com/aristath/folio/internal/modules/extraction"
	"github.com/aristath/folio/internal/modules/forecast"
	"github.com/aristath/folio/internal/modules/market"
	"github.com/aristath/folio/internal/modules/optimization"
	"github.com/aristath/folio/internal/modules/results"
	"github.com/aristath/folio/internal/modules/riskmodel"
	"github.com/aristath/folio/internal/pipeline"
	"github.com/aristath/folio/internal/reliability"
	"github.com/aristath/folio/internal/scheduler"
	"github.com/aristath/folio/internal/server"
	"github.com/aristath/folio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting folio")

	db, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "results.db"),
		Name: "results",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open results database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate results database")
	}

	// Module wiring.
	yahooClient := yahoo.NewClient(log)
	extractor := extraction.NewService(yahooClient, log)
	forecaster := forecast.NewTrendForecaster(log)

	estimator := riskmodel.NewEstimator(log)
	estimator.SetCache(riskmodel.NewCache(db, log))

	optimizer := optimization.NewMVOptimizer(log)
	repo := results.NewRepository(db, log)

	pipelineSvc := pipeline.NewService(extractor, forecaster, estimator, optimizer, repo, log)
	accuracySvc := accuracy.NewService(repo, yahooClient, log)
	marketSvc := market.NewService(log)

	// Backups stay disabled unless a bucket is configured.
	var backupSvc *reliability.BackupService
	if cfg.Backup != nil && cfg.Backup.Bucket != "" {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize backup client, backups disabled")
		} else {
			backupSvc = reliability.NewBackupService(db, s3Client, cfg.Backup.Keep, log)
			log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Snapshot backups enabled")
		}
	}

	serverCfg := server.Config{
		Log:      log,
		Cfg:      cfg,
		DB:       db,
		Pipeline: pipelineSvc,
		Results:  repo,
		Accuracy: accuracySvc,
		Market:   marketSvc,
		Port:     cfg.Port,
		DevMode:  cfg.DevMode,
	}
	if backupSvc != nil {
		serverCfg.Backup = backupSvc
	}
	srv := server.New(serverCfg)

	sched := scheduler.New(log)
	if cfg.RunSchedule != "" {
		job := scheduler.NewAllocationRunJob(pipelineSvc, cfg, log)
		if err := sched.AddJob(cfg.RunSchedule, job); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.RunSchedule).Msg("Invalid run schedule")
		}
	}
	if backupSvc != nil && cfg.Backup.Schedule != "" {
		job := scheduler.NewBackupJob(backupSvc, cfg.Backup.Timeout, log)
		if err := sched.AddJob(cfg.Backup.Schedule, job); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Backup.Schedule).Msg("Invalid backup schedule")
		}
	}
	sched.Start()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}

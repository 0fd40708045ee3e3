package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/modules/optimization"
	"github.com/aristath/folio/internal/pipeline"
)

// Runner executes allocation runs.
type Runner interface {
	Run(ctx context.Context, req pipeline.RunRequest) (*pipeline.RunResult, error)
}

// BackupTrigger uploads a database snapshot.
type BackupTrigger interface {
	Backup(ctx context.Context) (string, error)
}

// AllocationRunJob executes a full allocation run with the configured
// defaults. Overlapping executions are skipped, not queued.
type AllocationRunJob struct {
	runner  Runner
	cfg     *config.Config
	timeout time.Duration
	mu      sync.Mutex
	log     zerolog.Logger
}

// NewAllocationRunJob creates a scheduled allocation run job.
func NewAllocationRunJob(runner Runner, cfg *config.Config, log zerolog.Logger) *AllocationRunJob {
	return &AllocationRunJob{
		runner:  runner,
		cfg:     cfg,
		timeout: 10 * time.Minute,
		log:     log.With().Str("job", "allocation_run").Logger(),
	}
}

// Name returns the job name
func (j *AllocationRunJob) Name() string {
	return "allocation_run"
}

// Run executes the allocation pipeline
func (j *AllocationRunJob) Run() error {
	if !j.mu.TryLock() {
		j.log.Warn().Msg("Allocation run already in progress, skipping")
		return nil
	}
	defer j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	// The end date tracks today so scheduled runs always use fresh data.
	end := time.Now().UTC().Format("2006-01-02")

	result, err := j.runner.Run(ctx, pipeline.RunRequest{
		Tickers:      j.cfg.Tickers,
		StartDate:    j.cfg.StartDate,
		EndDate:      end,
		LookbackDays: j.cfg.LookbackDays,
		Constraints: optimization.Constraints{
			MinAllocation: j.cfg.MinAllocation,
			MaxAllocation: j.cfg.MaxAllocation,
			RiskAversion:  j.cfg.RiskAversion,
		},
	})
	if err != nil {
		return fmt.Errorf("scheduled allocation run failed: %w", err)
	}

	j.log.Info().
		Str("run_id", result.RunID).
		Int("allocated", len(result.Weights)).
		Int("skipped", len(result.Skipped)).
		Msg("Scheduled allocation run completed")

	return nil
}

// BackupJob uploads a database snapshot on schedule.
type BackupJob struct {
	backup  BackupTrigger
	timeout time.Duration
	log     zerolog.Logger
}

// NewBackupJob creates a scheduled backup job.
func NewBackupJob(backup BackupTrigger, timeout time.Duration, log zerolog.Logger) *BackupJob {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &BackupJob{
		backup:  backup,
		timeout: timeout,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run creates and uploads a snapshot
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	key, err := j.backup.Backup(ctx)
	if err != nil {
		return fmt.Errorf("scheduled backup failed: %w", err)
	}

	j.log.Info().Str("key", key).Msg("Scheduled backup completed")
	return nil
}

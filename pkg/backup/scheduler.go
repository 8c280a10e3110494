package backup

import (
	"context"
	"time"

	"github.com/pkg/errors"
	logger "github.com/rs/zerolog/log"
)

var log = logger.With().Str("component", "backup").Logger()

// Scheduler takes backups at a regular interval.
type Scheduler struct {
	interval time.Duration
	backuper *Backuper

	// onBackup is called after every attempt.
	onBackup func(Result, error)
}

// NewScheduler creates a new backup scheduler.
func NewScheduler(interval time.Duration, backuper *Backuper) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.Errorf("interval must be positive, got %s", interval)
	}
	return &Scheduler{
		interval: interval,
		backuper: backuper,
		onBackup: func(Result, error) {},
	}, nil
}

// Run takes backups until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("starting backup scheduler")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("closing backup scheduler")
			return
		case <-ticker.C:
		}

		result, err := s.backuper.Backup(ctx)
		s.onBackup(result, err)
		if err != nil {
			log.Error().Err(err).Msg("backup failed")
			continue
		}
		log.Info().
			Str("path", result.Path).
			Int64("elapsed_time", result.ElapsedTime.Milliseconds()).
			Int64("elapsed_time_vacuum", result.VacuumElapsedTime.Milliseconds()).
			Int64("elapsed_time_compression", result.CompressionElapsedTime.Milliseconds()).
			Int64("size", result.Size).
			Int64("size_vacuum", result.SizeAfterVacuum).
			Int64("size_compression", result.SizeAfterCompression).
			Msg("backup succeeded")
	}
}

// Package jobs contains implementations of scheduled jobs for the attendance
// ledger.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD AGGREGATES JOB
// ══════════════════════════════════════════════════════════════════════════════

// RebuildAggregatesJob rescans every subject's record set and repairs
// aggregate counters that drifted from it. Drift happens when a fire-and-forget
// write was lost or when concurrent mutations raced before subject locking was
// introduced; this job is the safety net that restores the counters to the
// recorded truth.
type RebuildAggregatesJob struct {
	subjectRepo    attendance.SubjectRepository
	summaryCache   attendance.SummaryCache
	eventPublisher shared.EventPublisher
	logger         *slog.Logger

	config RebuildAggregatesConfig

	lastRunStats atomic.Value // *RebuildStats
}

// RebuildAggregatesConfig contains configuration for the rebuild job.
type RebuildAggregatesConfig struct {
	// Timeout is the maximum duration for the rebuild operation.
	Timeout time.Duration

	// DryRun reports drift without repairing it.
	DryRun bool
}

// DefaultRebuildAggregatesConfig returns sensible defaults.
func DefaultRebuildAggregatesConfig() RebuildAggregatesConfig {
	return RebuildAggregatesConfig{
		Timeout: 2 * time.Minute,
		DryRun:  false,
	}
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt        time.Time
	CompletedAt      time.Time
	Duration         time.Duration
	SubjectsScanned  int
	SubjectsDrifted  int
	SubjectsRepaired int
	Errors           []error
}

// NewRebuildAggregatesJob creates a new rebuild aggregates job.
func NewRebuildAggregatesJob(
	subjectRepo attendance.SubjectRepository,
	summaryCache attendance.SummaryCache,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
	config RebuildAggregatesConfig,
) *RebuildAggregatesJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &RebuildAggregatesJob{
		subjectRepo:    subjectRepo,
		summaryCache:   summaryCache,
		eventPublisher: eventPublisher,
		logger:         logger,
		config:         config,
	}
}

// Name returns the job name.
func (j *RebuildAggregatesJob) Name() string {
	return "rebuild_aggregates"
}

// Description returns a human-readable description.
func (j *RebuildAggregatesJob) Description() string {
	return "Rescans attendance records and repairs drifted aggregate counters"
}

// Run executes the rebuild job.
func (j *RebuildAggregatesJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &RebuildStats{
		StartedAt: startedAt,
		Errors:    make([]error, 0),
	}

	j.logger.Info("starting rebuild_aggregates job")

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	subjects, err := j.subjectRepo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load subjects: %w", err)
	}
	stats.SubjectsScanned = len(subjects)

	for _, subject := range subjects {
		if ctx.Err() != nil {
			stats.Errors = append(stats.Errors, ctx.Err())
			break
		}

		if err := subject.CheckInvariants(); err == nil {
			continue
		}

		stats.SubjectsDrifted++
		oldAttended := subject.Aggregate.AttendedClasses
		oldTotal := subject.Aggregate.TotalClasses

		j.logger.Warn("aggregate drift detected",
			"subject_id", subject.ID,
			"subject", subject.Name,
			"attended", oldAttended,
			"total", oldTotal,
		)

		if j.config.DryRun {
			continue
		}

		if !subject.Reconcile() {
			// CheckInvariants failed on I1 only; a rescan already agrees
			// with the counters, nothing to write.
			continue
		}

		if err := j.subjectRepo.Save(ctx, subject); err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("subject %s: %w", subject.ID, err))
			j.logger.Error("failed to save repaired subject",
				"subject_id", subject.ID,
				"error", err,
			)
			continue
		}
		stats.SubjectsRepaired++

		if j.summaryCache != nil {
			if err := j.summaryCache.Invalidate(ctx, subject.ID); err != nil {
				j.logger.Warn("failed to invalidate summary cache",
					"subject_id", subject.ID,
					"error", err,
				)
			}
		}

		if j.eventPublisher != nil {
			event := shared.NewAggregateRebuiltEvent(
				subject.ID,
				oldAttended, oldTotal,
				subject.Aggregate.AttendedClasses, subject.Aggregate.TotalClasses,
			)
			if err := j.eventPublisher.Publish(event); err != nil {
				j.logger.Warn("failed to publish rebuild event",
					"subject_id", subject.ID,
					"error", err,
				)
			}
		}
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("rebuild_aggregates job completed",
		"duration", stats.Duration.String(),
		"scanned", stats.SubjectsScanned,
		"drifted", stats.SubjectsDrifted,
		"repaired", stats.SubjectsRepaired,
	)

	if len(stats.Errors) > 0 {
		return fmt.Errorf("rebuild completed with %d errors", len(stats.Errors))
	}

	return nil
}

// LastRunStats returns statistics from the most recent run.
func (j *RebuildAggregatesJob) LastRunStats() *RebuildStats {
	if stats, ok := j.lastRunStats.Load().(*RebuildStats); ok {
		return stats
	}
	return nil
}

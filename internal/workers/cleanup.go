// Package workers runs background maintenance jobs.
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dtorcivia/trainercal/internal/config"
	"github.com/dtorcivia/trainercal/internal/database"
	"github.com/dtorcivia/trainercal/internal/util"
)

// Task is an extra job run at the end of every cleanup pass.
type Task struct {
	Name string
	Run  func(ctx context.Context)
}

// CleanupResult counts the rows removed by one pass.
type CleanupResult struct {
	SyncRuns    int64
	OAuthStates int64
}

// CleanupWorker prunes the sync run log and expired OAuth states on a cron
// schedule, then vacuums the database.
type CleanupWorker struct {
	db     *database.DB
	config *config.RetentionConfig
	tasks  []Task
	now    func() time.Time
}

// NewCleanupWorker creates a new cleanup worker.
func NewCleanupWorker(db *database.DB, cfg *config.RetentionConfig) *CleanupWorker {
	return &CleanupWorker{db: db, config: cfg, now: time.Now}
}

// AddTask appends a job to every pass.
func (w *CleanupWorker) AddTask(t Task) {
	w.tasks = append(w.tasks, t)
}

// Start runs one pass immediately, then follows the schedule until ctx is
// done. It returns once the last running pass has finished.
func (w *CleanupWorker) Start(ctx context.Context) error {
	if !w.config.Enabled {
		util.Info("Cleanup worker disabled")
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(w.config.Schedule, func() { w.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", w.config.Schedule, err)
	}

	util.Info("Starting cleanup worker",
		"schedule", w.config.Schedule,
		"sync_runs_days", w.config.SyncRunsDays,
	)

	w.RunOnce(ctx)
	c.Start()

	<-ctx.Done()
	util.Info("Cleanup worker stopping")
	<-c.Stop().Done()
	return nil
}

// RunOnce performs a single cleanup pass.
func (w *CleanupWorker) RunOnce(ctx context.Context) CleanupResult {
	util.Debug("Running cleanup tasks")

	var res CleanupResult
	res.SyncRuns = w.cleanupSyncRuns(ctx)
	res.OAuthStates = w.cleanupOAuthStates(ctx)

	if err := w.db.Vacuum(ctx); err != nil {
		util.Error("Failed to VACUUM database", "error", err)
	}

	for _, t := range w.tasks {
		if ctx.Err() != nil {
			break
		}
		util.Debug("Running cleanup task", "task", t.Name)
		t.Run(ctx)
	}
	return res
}

// cleanupSyncRuns removes sync run rows older than the retention period.
func (w *CleanupWorker) cleanupSyncRuns(ctx context.Context) int64 {
	cutoff := w.now().AddDate(0, 0, -w.config.SyncRunsDays)
	result, err := w.db.ExecContext(ctx, `
		DELETE FROM sync_runs WHERE finished_at < ?
	`, util.SQLiteTimestamp(cutoff))
	if err != nil {
		util.Error("Failed to cleanup sync runs", "error", err)
		return 0
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		util.Info("Cleaned up old sync runs", "count", rows)
	}
	return rows
}

// cleanupOAuthStates removes authorization states that were never used.
func (w *CleanupWorker) cleanupOAuthStates(ctx context.Context) int64 {
	result, err := w.db.ExecContext(ctx, `
		DELETE FROM oauth_states WHERE expires_at < ?
	`, util.SQLiteTimestamp(w.now()))
	if err != nil {
		util.Error("Failed to cleanup oauth states", "error", err)
		return 0
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		util.Info("Cleaned up expired oauth states", "count", rows)
	}
	return rows
}

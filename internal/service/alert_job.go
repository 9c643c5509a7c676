package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/price-alerts/internal/logging"
	"github.com/price-alerts/internal/models"
	"github.com/price-alerts/internal/storage"
)

// RunReport summarises one invocation of the job.
type RunReport struct {
	RunID     string        `json:"runId"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	LockHeld  bool          `json:"lockHeld,omitempty"`
	DryRun    bool          `json:"dryRun,omitempty"`
	Expired   int64         `json:"expired"`
	Cleaned   int64         `json:"cleaned"`
	Pending   int           `json:"pending"`
	Unpriced  int           `json:"unpriced"`
	Matched   int           `json:"matched"`
	Notified  int           `json:"notified"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Error     string        `json:"error,omitempty"`
}

// Locker guards a run against concurrent instances.
type Locker interface {
	Acquire(ctx context.Context) error
	// Extend renews the lease; storage.ErrLockHeld means it was lost.
	Extend(ctx context.Context) error
	Release(ctx context.Context) (bool, error)
}

// Reporter publishes a finished run's report.
type Reporter interface {
	Report(ctx context.Context, report *RunReport) error
}

// AlertJob runs sweep, match and notify in sequence
type AlertJob struct {
	expiry   *ExpiryService
	matcher  *MatchService
	notifier *NotifyService
	locker   Locker
	reporter Reporter
	dryRun   bool

	lockRefresh time.Duration
}

// NewAlertJob creates a new alert job. locker and reporter may be nil.
func NewAlertJob(expiry *ExpiryService, matcher *MatchService, notifier *NotifyService, locker Locker, reporter Reporter, dryRun bool) *AlertJob {
	return &AlertJob{
		expiry:   expiry,
		matcher:  matcher,
		notifier: notifier,
		locker:   locker,
		reporter: reporter,
		dryRun:   dryRun,
	}
}

// WithLockRefresh renews the run lock at the given interval while a run is in
// progress. Zero disables renewal.
func (j *AlertJob) WithLockRefresh(every time.Duration) *AlertJob {
	j.lockRefresh = every
	return j
}

// Run processes the whole alert backlog once. now is the sweep reference time.
func (j *AlertJob) Run(ctx context.Context, runID string, now time.Time) (*RunReport, error) {
	logger := logging.FromContext(ctx)
	started := time.Now()
	report := &RunReport{RunID: runID, StartedAt: now.UTC(), DryRun: j.dryRun}

	if j.locker != nil {
		if err := j.locker.Acquire(ctx); err != nil {
			if errors.Is(err, storage.ErrLockHeld) {
				logger.Warn("Another price alert run holds the lock, exiting")
				report.LockHeld = true
				return report, nil
			}
			return nil, fmt.Errorf("failed to acquire run lock: %w", err)
		}
		defer func() {
			// release even when ctx was cancelled mid-run
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if _, err := j.locker.Release(releaseCtx); err != nil {
				logger.WithError(err).Warn("Failed to release run lock")
			}
		}()
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if j.locker != nil && j.lockRefresh > 0 {
		stop := j.refreshLock(runCtx, cancel)
		defer stop()
	}

	err := j.run(runCtx, now, report)
	if err != nil && ctx.Err() == nil {
		if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
			err = cause
		}
	}
	report.Duration = time.Since(started)
	if err != nil {
		report.Error = err.Error()
	}

	logger.WithFields(map[string]interface{}{
		"expired":  report.Expired,
		"cleaned":  report.Cleaned,
		"pending":  report.Pending,
		"unpriced": report.Unpriced,
		"matched":  report.Matched,
		"notified": report.Notified,
		"skipped":  report.Skipped,
		"failed":   report.Failed,
		"duration": report.Duration.String(),
	}).Info("Price alert run complete")

	if j.reporter != nil {
		// interrupted runs are reported too
		reportCtx, cancelReport := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancelReport()
		if rerr := j.reporter.Report(reportCtx, report); rerr != nil {
			logger.WithError(rerr).Warn("Failed to publish run report")
		}
	}

	return report, err
}

// refreshLock extends the lease every lockRefresh until the returned stop func
// is called. Losing the lease cancels the run.
func (j *AlertJob) refreshLock(ctx context.Context, cancel context.CancelCauseFunc) (stop func()) {
	logger := logging.FromContext(ctx)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(j.lockRefresh)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := j.locker.Extend(ctx)
				if err == nil {
					continue
				}
				if errors.Is(err, storage.ErrLockHeld) {
					logger.Error("Run lock lost to another instance, stopping run")
					cancel(fmt.Errorf("run lock lost: %w", err))
					return
				}
				logger.WithError(err).Warn("Failed to extend run lock")
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (j *AlertJob) run(ctx context.Context, now time.Time, report *RunReport) error {
	if !j.dryRun {
		swept, err := j.expiry.Sweep(ctx, now)
		if err != nil {
			return err
		}
		report.Expired = swept.Expired
		report.Cleaned = swept.Cleaned
	}

	matched, err := j.matcher.FindMatches(ctx)
	if err != nil {
		return err
	}
	report.Pending = matched.Pending
	report.Unpriced = matched.Unpriced

	matches := matched.Matches
	if j.dryRun {
		// nothing was swept, so leave out what the sweep would have removed
		matches = unexpired(matches, now)
	}
	report.Matched = len(matches)

	notified, err := j.notifier.NotifyAll(ctx, matches)
	if notified != nil {
		report.Notified = notified.Notified + notified.DryRun
		report.Skipped = notified.Skipped
		report.Failed = notified.Failed
	}
	return err
}

func unexpired(matches []models.Match, now time.Time) []models.Match {
	kept := matches[:0:0]
	for _, m := range matches {
		if !m.Alert.Expired(now) {
			kept = append(kept, m)
		}
	}
	return kept
}

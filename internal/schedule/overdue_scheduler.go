package schedule

// Compensation for auto sign-outs that never ran: the device may have died
// before its fallback timer fired, or the delayed message was lost.

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"SiteSign/config"
	"SiteSign/internal/cache"
	"SiteSign/internal/model"
	"SiteSign/internal/queue"
	"SiteSign/internal/repository"
	"SiteSign/pkg/logger"
)

const sweepLockKey = "schedule:overdue_signout"

type OverdueLister interface {
	ListOverdueNotified(ctx context.Context, cutoff time.Time, limit int) ([]model.Visit, error)
}

// Enqueuer matches queue.PublishAutoSignOut.
type Enqueuer func(ctx context.Context, msg model.AutoSignOutMessage) error

var (
	overdueSchedulerOnce sync.Once
	overdueSchedulerInst *OverdueScheduler
)

// OverdueScheduler enqueues immediate auto sign-outs for visits whose
// reminder went out longer ago than the fallback window.
type OverdueScheduler struct {
	logger  *zap.Logger
	visits  OverdueLister
	enqueue Enqueuer

	tryLock func(ctx context.Context, key string, ttl time.Duration) (bool, error)
	unlock  func(ctx context.Context, key string) error

	fallback  time.Duration
	grace     time.Duration
	batchSize int
	now       func() time.Time

	mu      sync.Mutex
	running bool
}

func GetOverdueScheduler() *OverdueScheduler {
	overdueSchedulerOnce.Do(func() {
		overdueSchedulerInst = NewOverdueScheduler(
			repository.Visits(),
			queue.PublishAutoSignOut,
			config.Cfg.FallbackDelay(),
			time.Duration(config.Cfg.SweepGraceMinutes)*time.Minute,
			config.Cfg.SweepBatchSize,
		)
	})
	return overdueSchedulerInst
}

func NewOverdueScheduler(visits OverdueLister, enqueue Enqueuer, fallback, grace time.Duration, batchSize int) *OverdueScheduler {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &OverdueScheduler{
		logger:    logger.Named("overdue_scheduler"),
		visits:    visits,
		enqueue:   enqueue,
		tryLock:   cache.TryLock,
		unlock:    cache.Unlock,
		fallback:  fallback,
		grace:     grace,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// sweepMessageID is stable per notification, so overlapping sweeps of the
// same overdue visit collapse in the consumer's idempotency check.
func sweepMessageID(v model.Visit) string {
	return fmt.Sprintf("sweep_%s_%d", v.ID, v.GeofenceNotifiedAt.Unix())
}

// Sweep enqueues one batch and returns how many messages went out. Runs that
// overlap in this process or, through a redis lock, across replicas are
// skipped.
func (s *OverdueScheduler) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("Overdue sweep already running, skipping")
		return 0, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	locked, err := s.tryLock(ctx, sweepLockKey, 2*time.Minute)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	if !locked {
		s.logger.Info("Overdue sweep held by another replica, skipping")
		return 0, nil
	}
	defer func() {
		if err := s.unlock(context.WithoutCancel(ctx), sweepLockKey); err != nil {
			s.logger.Warn("Failed to release sweep lock", zap.Error(err))
		}
	}()

	cutoff := s.now().Add(-s.fallback - s.grace)
	visits, err := s.visits.ListOverdueNotified(ctx, cutoff, s.batchSize)
	if err != nil {
		s.logger.Error("Failed to query overdue visits", zap.Error(err))
		return 0, err
	}

	if len(visits) == 0 {
		s.logger.Debug("No overdue visits", zap.Time("cutoff", cutoff))
		return 0, nil
	}

	s.logger.Info("Found overdue visits",
		zap.Int("visit_count", len(visits)),
		zap.Time("cutoff", cutoff),
	)

	var errs []error
	sent := 0
	for _, v := range visits {
		if v.GeofenceNotifiedAt == nil {
			continue
		}
		err := s.enqueue(ctx, model.AutoSignOutMessage{
			MessageID:   sweepMessageID(v),
			VisitID:     v.ID,
			Source:      model.AutoSignOutFromSweep,
			ScheduledAt: s.now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("visit %s: %w", v.ID, err))
			continue
		}
		sent++
	}

	if len(errs) > 0 {
		s.logger.Error("Some overdue sign-outs could not be enqueued",
			zap.Int("failed", len(errs)),
			zap.Int("sent", sent),
		)
		return sent, stderrors.Join(errs...)
	}

	s.logger.Info("Overdue sweep completed", zap.Int("sent", sent))
	return sent, nil
}

// Run sweeps every interval until ctx is done.
func (s *OverdueScheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			if _, err := s.Sweep(runCtx); err != nil {
				s.logger.Error("Overdue sweep run failed", zap.Error(err))
			}
			cancel()
		}
	}
}

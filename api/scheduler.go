/*
scheduler.go - Automated overdue and expiry sweeps

PURPOSE:
  Periodically marks past-due payments overdue and cancels reservations
  whose expiry date has passed. Both sweeps are idempotent, so a missed
  or repeated tick is harmless.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each run takes a distributed lock so only one replica sweeps at a time
  - Without Redis the lock is skipped (single-instance deployments)
  - Every run gets a uuid that appears on all of its log lines

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)
  - LockTTL: How long a run may hold the lock (default: 5 minutes)

USAGE:
  scheduler := NewSweepScheduler(reservations, locker, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: SweepOverdue/SweepExpiry endpoints (manual sweeps)
  - sales/ledger.go, sales/expiry.go: The sweeps themselves
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/warp/reservation-engine/sales"
)

// SweepLockKey is the Redis key guarding scheduled sweeps.
const SweepLockKey = "reservation-engine:sweep"

// ErrLockHeld is returned when another instance holds the sweep lock.
var ErrLockHeld = errors.New("sweep lock held by another instance")

// =============================================================================
// DISTRIBUTED LOCK
// =============================================================================

// Locker obtains a named lock for ttl and returns its release func.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// RedisLocker implements Locker with redislock.
type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

// =============================================================================
// SCHEDULER
// =============================================================================

// SweepRun is the outcome of one scheduled or manual run.
type SweepRun struct {
	ID            string             `json:"id"`
	AsOf          time.Time          `json:"as_of"`
	OverdueMarked int64              `json:"overdue_marked"`
	Expiry        sales.ExpiryResult `json:"expiry"`
}

// SweepScheduler runs the overdue and expiry sweeps on an interval.
type SweepScheduler struct {
	Reservations  *sales.ReservationService
	Ledger        *sales.PaymentLedger
	Locker        Locker
	Log           logrus.FieldLogger
	Now           func() time.Time
	CheckInterval time.Duration
	LockTTL       time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweepScheduler creates a new scheduler. locker may be nil.
func NewSweepScheduler(reservations *sales.ReservationService, locker Locker, log logrus.FieldLogger) *SweepScheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SweepScheduler{
		Reservations:  reservations,
		Ledger:        reservations.Ledger(),
		Locker:        locker,
		Log:           log.WithField("component", "scheduler"),
		Now:           time.Now,
		CheckInterval: time.Hour,
		LockTTL:       5 * time.Minute,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info("[Scheduler] Disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.Log.Infof("[Scheduler] Started with check interval: %v", s.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight run.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Log.Info("[Scheduler] Stopped")
	}
}

func (s *SweepScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.tick()

	for {
		select {
		case <-s.ticker.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

func (s *SweepScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.LockTTL)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrLockHeld) {
		s.Log.WithError(err).Error("[Scheduler] Sweep failed")
	}
}

// RunOnce performs both sweeps as of now. It returns ErrLockHeld without
// sweeping when another instance is running.
func (s *SweepScheduler) RunOnce(ctx context.Context) (*SweepRun, error) {
	run := &SweepRun{ID: uuid.NewString(), AsOf: sales.DateOf(s.Now())}
	log := s.Log.WithField("run_id", run.ID)

	if s.Locker != nil {
		release, err := s.Locker.Obtain(ctx, SweepLockKey, s.LockTTL)
		if errors.Is(err, ErrLockHeld) {
			log.Debug("[Scheduler] Lock held elsewhere, skipping")
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				log.WithError(err).Warn("[Scheduler] Failed to release lock")
			}
		}()
	}

	marked, err := s.Ledger.SweepOverdue(ctx, run.AsOf)
	if err != nil {
		return nil, err
	}
	run.OverdueMarked = marked

	result, err := s.Reservations.ExpireReservations(ctx, run.AsOf, sales.SystemActor)
	if err != nil {
		return nil, err
	}
	run.Expiry = result

	if marked > 0 || result.Expired > 0 || result.Skipped > 0 || result.Failed > 0 {
		log.WithFields(logrus.Fields{
			"overdue_marked": marked,
			"expired":        result.Expired,
			"skipped":        result.Skipped,
			"failed":         result.Failed,
		}).Info("[Scheduler] Completed")
	}
	return run, nil
}

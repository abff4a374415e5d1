package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ignatzorin/bounty-backend/internal/cache"
	"github.com/ignatzorin/bounty-backend/internal/goroutine"
	"github.com/ignatzorin/bounty-backend/internal/logger"
	"github.com/ignatzorin/bounty-backend/internal/metrics"
	"github.com/ignatzorin/bounty-backend/internal/repository"
)

// Expirer переводит просроченное задание в expired.
type Expirer interface {
	Expire(ctx context.Context, bountyID uuid.UUID) (*repository.ExpireResult, error)
}

// BoostResetter обнуляет истёкшие бусты.
type BoostResetter interface {
	ResetExpired(ctx context.Context) (int64, error)
}

// OverdueLister находит просроченные активные задания.
type OverdueLister interface {
	ListOverdueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// SweeperConfig — параметры свипера.
type SweeperConfig struct {
	Concurrency int
	BatchSize   int
	LockTTL     time.Duration
	// TriggerGap — минимальный интервал между запусками по чтению ленты.
	TriggerGap time.Duration
	RunTimeout time.Duration
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Concurrency: 4,
		BatchSize:   500,
		LockTTL:     2 * time.Minute,
		TriggerGap:  5 * time.Second,
		RunTimeout:  time.Minute,
	}
}

// SweepReport — итог одного прохода.
type SweepReport struct {
	Scanned     int   `json:"scanned"`
	Expired     int   `json:"expired"`
	Failed      int   `json:"failed"`
	BoostsReset int64 `json:"boosts_reset"`
	Skipped     bool  `json:"skipped"`
}

// Sweeper находит задания с истёкшим сроком и проводит их через Expire.
// Повторные и параллельные проходы безопасны: Expire меняет только активные задания.
type Sweeper struct {
	overdue OverdueLister
	expirer Expirer
	boosts  BoostResetter
	lock    cache.Store
	cfg     SweeperConfig
	now     func() time.Time
	log     *logrus.Entry

	running atomic.Bool
	mu      sync.Mutex
	lastRun time.Time
}

func NewSweeper(overdue OverdueLister, expirer Expirer, boosts BoostResetter, lock cache.Store, cfg SweeperConfig) *Sweeper {
	def := DefaultSweeperConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = def.RunTimeout
	}
	if lock == nil {
		lock = cache.NewMemoryStore()
	}
	return &Sweeper{
		overdue: overdue,
		expirer: expirer,
		boosts:  boosts,
		lock:    lock,
		cfg:     cfg,
		now:     time.Now,
		log:     logger.WithComponent("sweeper"),
	}
}

// Sweep выполняет один проход. В процессе одновременно идёт не больше одного прохода,
// между экземплярами — не больше одного под блокировкой в кэше.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.SweepRuns.WithLabelValues("skipped").Inc()
		return &SweepReport{Skipped: true}, nil
	}
	defer s.running.Store(false)

	s.mu.Lock()
	s.lastRun = s.now()
	s.mu.Unlock()

	token := uuid.NewString()
	locked, err := s.lock.Claim(ctx, cache.SweepLockKey, token, s.cfg.LockTTL)
	if err != nil {
		// Без блокировки проход всё равно корректен.
		s.log.WithError(err).Warn("sweep lock unavailable, sweeping without it")
	} else if !locked {
		metrics.SweepRuns.WithLabelValues("skipped").Inc()
		return &SweepReport{Skipped: true}, nil
	} else {
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), cache.SweepLockKey, token); err != nil {
				s.log.WithError(err).Warn("failed to release sweep lock")
			}
		}()
	}

	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	ids, err := s.overdue.ListOverdueIDs(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		return nil, translateError(err)
	}

	report := &SweepReport{Scanned: len(ids)}
	var expired, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			res, err := s.expirer.Expire(gctx, id)
			if err != nil {
				failed.Add(1)
				s.log.WithError(err).WithField("bounty_id", id).Warn("failed to expire bounty")
				return nil
			}
			if res.Expired {
				expired.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Expired = int(expired.Load())
	report.Failed = int(failed.Load())
	metrics.SweepExpired.Add(float64(report.Expired))

	if s.boosts != nil {
		n, err := s.boosts.ResetExpired(ctx)
		if err != nil {
			s.log.WithError(err).Warn("failed to reset expired boosts")
		}
		report.BoostsReset = n
	}

	result := "ok"
	if report.Failed > 0 {
		result = "partial"
	}
	metrics.SweepRuns.WithLabelValues(result).Inc()

	if report.Scanned > 0 || report.BoostsReset > 0 {
		s.log.WithFields(logrus.Fields{
			"scanned":      report.Scanned,
			"expired":      report.Expired,
			"failed":       report.Failed,
			"boosts_reset": report.BoostsReset,
		}).Info("sweep finished")
	}
	return report, nil
}

// Trigger запускает проход в фоне, если он не идёт и с прошлого запуска прошло TriggerGap.
func (s *Sweeper) Trigger() {
	if s.running.Load() {
		return
	}
	s.mu.Lock()
	recent := !s.lastRun.IsZero() && s.now().Sub(s.lastRun) < s.cfg.TriggerGap
	s.mu.Unlock()
	if recent {
		return
	}

	goroutine.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.log.WithError(err).Warn("triggered sweep failed")
		}
	})
}

// Run выполняет проходы по таймеру до отмены контекста.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.WithField("interval", interval.String()).Info("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
			if _, err := s.Sweep(runCtx); err != nil {
				s.log.WithError(err).Warn("scheduled sweep failed")
			}
			cancel()
		}
	}
}

package hints

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Runner is anything that can run one sweep. The scheduler only needs this.
type Runner interface {
	RunSweepOnce(ctx context.Context) (SweepReport, error)
}

// Lease lets one instance among many take a sweep tick. It only saves work:
// correctness never depends on it.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
}

// RunEvery calls r.RunSweepOnce every interval until ctx is cancelled. When
// lease is set, ticks whose lease is held elsewhere are skipped; lease errors
// fail open and the sweep runs anyway.
func RunEvery(ctx context.Context, interval time.Duration, r Runner, lease Lease, logger *zap.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("hint sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			logger.Info("hint sweeper stopped")
			return
		case <-ticker.C:
		}
		if lease != nil {
			ok, err := lease.Acquire(ctx)
			if err != nil {
				logger.Warn("sweep lease unavailable, sweeping anyway", zap.Error(err))
			} else if !ok {
				logger.Debug("sweep lease held elsewhere")
				continue
			}
		}
		if _, err := r.RunSweepOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Error("hint sweep failed", zap.Error(err))
		}
	}
}

const DefaultLeaseKey = "lock:hints:sweep"

// RedisLease is a SET NX PX lease. Its ttl should be shorter than the sweep
// interval so the lease lapses before the next tick.
type RedisLease struct {
	rc    *redis.Client
	key   string
	ttl   time.Duration
	owner string
}

// NewRedisLease builds a lease. A nil client always grants the lease.
func NewRedisLease(rc *redis.Client, key string, ttl time.Duration) *RedisLease {
	if key == "" {
		key = DefaultLeaseKey
	}
	return &RedisLease{rc: rc, key: key, ttl: ttl, owner: uuid.NewString()}
}

// Acquire reports whether this instance holds the lease for the current tick.
func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	if l == nil || l.rc == nil {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return l.rc.SetNX(ctx, l.key, l.owner, l.ttl).Result()
}

// Package scheduler runs periodic checkpoints and metric refreshes on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/observability"
	"lockup-ledger/internal/storage"
)

// Checkpointer persists the ledger state.
type Checkpointer interface {
	Save(ctx context.Context) (storage.SnapshotInfo, error)
}

// PoolLister lists the current pools.
type PoolLister interface {
	Pools(ctx context.Context) ([]domain.TokenPool, error)
}

// Config holds the cron specs (six fields, seconds first, or descriptors such
// as "@every 5m"). An empty spec disables the job.
type Config struct {
	CheckpointCron  string
	PoolMetricsCron string
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	cron        *cron.Cron
	ctx         context.Context
	checkpoints Checkpointer
	pools       PoolLister
	metrics     *observability.Metrics
	logger      *zap.Logger

	// checkpointMu serializes scheduled and manual checkpoints.
	checkpointMu sync.Mutex
}

// New creates a Scheduler. pools and metrics may be nil when the pool metrics job is not used.
func New(ctx context.Context, checkpoints Checkpointer, pools PoolLister, metrics *observability.Metrics, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	clog := cronLogger{logger.Sugar()}

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		ctx:         ctx,
		checkpoints: checkpoints,
		pools:       pools,
		metrics:     metrics,
		logger:      logger,
	}
}

// Register adds the configured jobs.
func (s *Scheduler) Register(cfg Config) error {
	if cfg.CheckpointCron != "" {
		if s.checkpoints == nil {
			return fmt.Errorf("checkpoint job needs a checkpointer")
		}
		if _, err := s.cron.AddFunc(cfg.CheckpointCron, s.checkpointTask); err != nil {
			return fmt.Errorf("register checkpoint task: %w", err)
		}
	}
	if cfg.PoolMetricsCron != "" {
		if s.pools == nil || s.metrics == nil {
			return fmt.Errorf("pool metrics job needs a pool lister and metrics")
		}
		if _, err := s.cron.AddFunc(cfg.PoolMetricsCron, s.poolMetricsTask); err != nil {
			return fmt.Errorf("register pool metrics task: %w", err)
		}
	}
	return nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", s.Jobs()))
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunCheckpointNow saves a checkpoint immediately.
func (s *Scheduler) RunCheckpointNow() (storage.SnapshotInfo, error) {
	s.checkpointMu.Lock()
	defer s.checkpointMu.Unlock()
	return s.checkpoints.Save(s.ctx)
}

func (s *Scheduler) checkpointTask() {
	started := time.Now()
	info, err := s.RunCheckpointNow()
	if err != nil {
		s.logger.Error("scheduled checkpoint failed", zap.Error(err))
		return
	}
	s.logger.Debug("scheduled checkpoint",
		zap.Int64("id", info.ID),
		zap.Uint64("last_event_seq", info.LastEventSeq),
		zap.Duration("took", time.Since(started)),
	)
}

func (s *Scheduler) poolMetricsTask() {
	pools, err := s.pools.Pools(s.ctx)
	if err != nil {
		s.logger.Error("pool metrics refresh failed", zap.Error(err))
		return
	}
	s.metrics.ObservePools(pools)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}

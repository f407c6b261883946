package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SlotJobs is the work the scheduler triggers.
type SlotJobs interface {
	GenerateUpcoming(ctx context.Context) (int, error)
	PurgeExpiredUnbooked(ctx context.Context, now time.Time) (int, error)
}

type SchedulerConfig struct {
	GenerateSpec string
	PurgeSpec    string
	JobTimeout   time.Duration
	Location     *time.Location
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	jobs   SlotJobs
	cron   *cron.Cron
	cfg    SchedulerConfig
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler создаёт новый планировщик; расписания проверяются сразу
func NewScheduler(jobs SlotJobs, cfg SchedulerConfig, logger *zap.Logger) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}

	cl := cronLogger{log: logger.Sugar()}
	s := &Scheduler{
		jobs:   jobs,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}

	if _, err := s.cron.AddFunc(cfg.GenerateSpec, s.runGenerate); err != nil {
		return nil, fmt.Errorf("schedule slot generation %q: %w", cfg.GenerateSpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.PurgeSpec, s.runPurge); err != nil {
		return nil, fmt.Errorf("schedule slot purge %q: %w", cfg.PurgeSpec, err)
	}

	return s, nil
}

// Start запускает фоновые задачи. Первая генерация выполняется сразу.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("Starting background scheduler",
		zap.String("generate", s.cfg.GenerateSpec),
		zap.String("purge", s.cfg.PurgeSpec),
		zap.String("location", s.cfg.Location.String()),
	)

	// Первый запуск сразу при старте
	s.runGenerate()
	s.cron.Start()
}

// Stop останавливает фоновые задачи и ждёт завершения текущих
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info("Stopping background scheduler")
	<-s.cron.Stop().Done()
	s.cancel()
	s.logger.Info("Background scheduler stopped")
}

func (s *Scheduler) runGenerate() {
	s.run("generate_slots", func(ctx context.Context) (int, error) {
		return s.jobs.GenerateUpcoming(ctx)
	})
}

func (s *Scheduler) runPurge() {
	s.run("purge_expired_slots", func(ctx context.Context) (int, error) {
		return s.jobs.PurgeExpiredUnbooked(ctx, s.now())
	})
}

func (s *Scheduler) run(job string, fn func(ctx context.Context) (int, error)) {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	logger := s.logger.With(zap.String("job", job), zap.String("run_id", uuid.NewString()))
	started := time.Now()

	n, err := fn(ctx)
	if err != nil {
		logger.Error("Job failed", zap.Error(err), zap.Int("affected", n), zap.Duration("took", time.Since(started)))
		return
	}

	logger.Info("Job completed", zap.Int("affected", n), zap.Duration("took", time.Since(started)))
}

// Package scheduler drives the pipeline phases on a fixed interval. There is
// no in-memory queue: every tick re-reads eligible records from the store, so
// a restart resumes exactly where the persisted state says.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/answerlab/qaeval/internal/configstore"
	"github.com/answerlab/qaeval/internal/model"
	"github.com/answerlab/qaeval/internal/pipeline"
	"github.com/answerlab/qaeval/internal/resilience"
)

// Tunables store keys. Values staged through the delayed-effect store win
// over the static defaults below.
const (
	KeyInterval         = "scheduler.interval"
	KeyMinBacklog       = "scheduler.min_backlog"
	KeyBatchSize        = "pipeline.batch_size"
	KeyConcurrency      = "pipeline.concurrency"
	KeyBadcaseThreshold = "pipeline.badcase_threshold"
)

// Runner is the part of the pipeline the scheduler drives.
type Runner interface {
	RunPhase(ctx context.Context, phase model.Phase) (*model.PhaseReport, error)
	UpdateConfig(cfg pipeline.Config)
}

// Backlog reports how many records wait in each status.
type Backlog interface {
	CountByStatus(ctx context.Context) (map[model.ProcessingStatus]int, error)
}

// Config holds the static defaults; the configstore can override each value
// at runtime.
type Config struct {
	Interval   time.Duration `yaml:"interval" mapstructure:"interval"`
	MinBacklog int           `yaml:"min_backlog" mapstructure:"min_backlog"`
}

// Scheduler ticks the pipeline phases.
type Scheduler struct {
	runner   Runner
	backlog  Backlog
	tunables *configstore.Store
	cfg      Config

	// one lock per phase keeps ticks non-reentrant without blocking: a phase
	// still running from the previous tick is simply skipped.
	locks map[model.Phase]*sync.Mutex
}

// New creates a Scheduler. tunables may be nil, in which case the static
// defaults apply for the whole run.
func New(runner Runner, backlog Backlog, tunables *configstore.Store, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MinBacklog <= 0 {
		cfg.MinBacklog = 1
	}
	locks := make(map[model.Phase]*sync.Mutex, len(model.Phases))
	for _, ph := range model.Phases {
		locks[ph] = &sync.Mutex{}
	}
	return &Scheduler{
		runner:   runner,
		backlog:  backlog,
		tunables: tunables,
		cfg:      cfg,
		locks:    locks,
	}
}

// Run starts the tick loop. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "scheduler"))
	interval := s.interval(ctx)
	log.Info("starting phase scheduler",
		zap.Duration("interval", interval),
		zap.Int("min_backlog", s.cfg.MinBacklog),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("phase scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx, log)

			// Interval changes staged in the configstore take effect on the
			// next tick.
			if next := s.interval(ctx); next != interval {
				interval = next
				ticker.Reset(interval)
				log.Info("scheduler interval changed", zap.Duration("interval", interval))
			}
		}
	}
}

// Tick runs one scheduling pass: refresh tunables, check backlogs and run
// whichever phases have work.
func (s *Scheduler) Tick(ctx context.Context, log *zap.Logger) {
	minBacklog := s.cfg.MinBacklog
	if s.tunables != nil {
		minBacklog = s.tunables.GetInt(ctx, KeyMinBacklog, s.cfg.MinBacklog)
		s.runner.UpdateConfig(s.pipelineConfig(ctx))
	}

	counts, err := s.backlog.CountByStatus(ctx)
	if err != nil {
		log.Error("scheduler: backlog count failed", zap.Error(err))
		return
	}

	// The threshold gates the tick as a whole, not individual phases: the
	// tick idles only while every backlog sits below the minimum. Once any
	// phase crosses it, all phases with pending records run, so a small
	// backlog can never be starved behind a large one.
	idle := true
	for _, ph := range model.Phases {
		if counts[ph.InputStatus()] >= minBacklog {
			idle = false
			break
		}
	}
	if idle {
		log.Debug("scheduler: idle tick, backlogs below threshold")
		return
	}

	var due []model.Phase
	for _, ph := range model.Phases {
		if counts[ph.InputStatus()] > 0 {
			due = append(due, ph)
		}
	}

	g := &errgroup.Group{}
	for _, ph := range due {
		g.Go(func() error {
			s.runPhase(ctx, ph, log)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) runPhase(ctx context.Context, ph model.Phase, log *zap.Logger) {
	lock := s.locks[ph]
	if !lock.TryLock() {
		log.Warn("scheduler: phase still running, skipping", zap.String("phase", string(ph)))
		return
	}
	defer lock.Unlock()

	report, err := s.runner.RunPhase(ctx, ph)
	if err != nil {
		log.Error("scheduler: phase run failed", zap.String("phase", string(ph)), zap.Error(err))
		return
	}
	if !report.Healthy() {
		log.Warn("scheduler: phase made no progress",
			zap.String("phase", string(ph)),
			zap.Int("processed", report.Processed),
			zap.Int("failed", report.Failed),
		)
	}
}

func (s *Scheduler) interval(ctx context.Context) time.Duration {
	if s.tunables == nil {
		return s.cfg.Interval
	}
	return s.tunables.GetDuration(ctx, KeyInterval, s.cfg.Interval)
}

func (s *Scheduler) pipelineConfig(ctx context.Context) pipeline.Config {
	def := pipeline.DefaultConfig()
	return pipeline.Config{
		BatchSize:        s.tunables.GetInt(ctx, KeyBatchSize, def.BatchSize),
		Concurrency:      s.tunables.GetInt(ctx, KeyConcurrency, def.Concurrency),
		BadcaseThreshold: s.tunables.GetInt(ctx, KeyBadcaseThreshold, def.BadcaseThreshold),
		Retry:            resilience.DefaultRetryConfig(),
	}
}

// Package pipeline runs the enrichment phases over synchronized questions.
// Each phase picks up the records in its input state, calls the remote
// service per record and commits the outcome record by record, so one bad
// record never blocks the rest of a batch.
package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/answerlab/qaeval/internal/model"
	"github.com/answerlab/qaeval/internal/resilience"
	"github.com/answerlab/qaeval/internal/store"
	"github.com/answerlab/qaeval/pkg/assistant"
	"github.com/answerlab/qaeval/pkg/classifier"
	"github.com/answerlab/qaeval/pkg/scoring"
)

// Config tunes phase execution. The scheduler refreshes it every tick from
// the runtime tunables store.
type Config struct {
	BatchSize        int
	Concurrency      int
	BadcaseThreshold int
	Retry            resilience.RetryConfig
}

// DefaultConfig returns the baseline tuning used when no runtime override is
// set.
func DefaultConfig() Config {
	return Config{
		BatchSize:        50,
		Concurrency:      4,
		BadcaseThreshold: 3,
		Retry:            resilience.DefaultRetryConfig(),
	}
}

// Pipeline executes the classify, generate and score phases.
type Pipeline struct {
	store      store.Store
	classifier classifier.Client
	generators assistant.Generators
	scorer     scoring.Client

	mu  sync.RWMutex
	cfg Config
}

// New creates a Pipeline with all dependencies.
func New(st store.Store, cl classifier.Client, gens assistant.Generators, sc scoring.Client, cfg Config) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BadcaseThreshold <= 0 {
		cfg.BadcaseThreshold = 3
	}
	return &Pipeline{
		store:      st,
		classifier: cl,
		generators: gens,
		scorer:     sc,
		cfg:        cfg,
	}
}

// UpdateConfig swaps in fresh tuning for subsequent phase runs.
func (p *Pipeline) UpdateConfig(cfg Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *Pipeline) config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// RunPhase executes one named phase over a single batch.
func (p *Pipeline) RunPhase(ctx context.Context, phase model.Phase) (*model.PhaseReport, error) {
	switch phase {
	case model.PhaseClassify:
		return p.Classify(ctx)
	case model.PhaseGenerate:
		return p.Generate(ctx)
	case model.PhaseScore:
		return p.Score(ctx)
	default:
		return nil, eris.Errorf("pipeline: unknown phase %q", phase)
	}
}

// runBatch selects the phase's eligible records and processes them with
// bounded concurrency. A record whose handler fails is marked failed with the
// reason and the batch carries on; the report aggregates both outcomes.
func (p *Pipeline) runBatch(ctx context.Context, phase model.Phase, handle func(ctx context.Context, q model.Question) error) (*model.PhaseReport, error) {
	cfg := p.config()
	log := zap.L().With(zap.String("phase", string(phase)))

	batch, err := p.store.ListByStatus(ctx, phase.InputStatus(), cfg.BatchSize)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: select %s batch", phase)
	}

	report := &model.PhaseReport{Phase: phase, Processed: len(batch)}
	if len(batch) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	g := &errgroup.Group{}
	g.SetLimit(cfg.Concurrency)

	for _, q := range batch {
		g.Go(func() error {
			if err := handle(ctx, q); err != nil {
				// Authentication and validation failures usually mean
				// misconfiguration, not load; make them stand out.
				logFn := log.Warn
				if _, ok := resilience.ErrorKind(err); ok && !resilience.IsRetryable(err) {
					logFn = log.Error
				}
				logFn("record failed",
					zap.String("fingerprint", q.Fingerprint),
					zap.Error(err),
				)
				if markErr := p.store.MarkFailed(ctx, q.Fingerprint, failReason(err)); markErr != nil {
					log.Error("mark failed did not stick",
						zap.String("fingerprint", q.Fingerprint),
						zap.Error(markErr),
					)
				}
				mu.Lock()
				report.Failed++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			report.Succeeded++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	log.Info("phase batch complete",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// failReason renders a compact reason for the fail_reason column, leading
// with the taxonomy kind when the error is classified.
func failReason(err error) string {
	const maxLen = 500
	reason := err.Error()
	if kind, ok := resilience.ErrorKind(err); ok {
		reason = string(kind) + ": " + reason
	}
	if len(reason) > maxLen {
		reason = reason[:maxLen]
	}
	return reason
}

package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/answerlab/qaeval/internal/configstore"
	"github.com/answerlab/qaeval/internal/pipeline"
	"github.com/answerlab/qaeval/internal/registry"
	"github.com/answerlab/qaeval/internal/scheduler"
	"github.com/answerlab/qaeval/internal/store"
	"github.com/answerlab/qaeval/internal/syncer"
	"github.com/answerlab/qaeval/pkg/classifier"
	"github.com/answerlab/qaeval/pkg/scoring"
)

// env bundles the wired application components for one command invocation.
type env struct {
	Store    store.Store
	Tunables *configstore.Store
	Pipeline *pipeline.Pipeline

	sourcePool *pgxpool.Pool
}

func (e *env) Close() {
	if e.sourcePool != nil {
		e.sourcePool.Close()
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("store close", zap.Error(err))
		}
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "qaeval.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv wires the store, clients and pipeline. withSource additionally
// connects to the read-only production log for sync.
func initEnv(ctx context.Context, withSource bool) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	e := &env{Store: st}

	// The runtime tunables live in the enrichment database; the sqlite driver
	// runs on static config only.
	if pg, ok := st.(*store.PostgresStore); ok {
		e.Tunables = configstore.New(pg.Pool())
	}

	reg, err := registry.Load(cfg.Assistants.RegistryPath)
	if err != nil {
		e.Close()
		return nil, err
	}
	for i := range reg.Assistants {
		if reg.Assistants[i].Kind == registry.KindAnthropic && reg.Assistants[i].APIKey == "" {
			reg.Assistants[i].APIKey = cfg.Anthropic.Key
		}
	}
	gens, err := reg.Generators()
	if err != nil {
		e.Close()
		return nil, err
	}

	cl := classifier.NewClient(
		classifier.WithBaseURL(cfg.Classifier.BaseURL),
		classifier.WithRateLimit(cfg.Classifier.RPS),
		classifier.WithTimeout(cfg.Classifier.Timeout()),
	)
	sc := scoring.NewClient(
		scoring.WithBaseURL(cfg.Scoring.BaseURL),
		scoring.WithRateLimit(cfg.Scoring.RPS),
		scoring.WithTimeout(cfg.Scoring.Timeout()),
	)

	pcfg := pipeline.DefaultConfig()
	pcfg.BatchSize = cfg.Pipeline.BatchSize
	pcfg.Concurrency = cfg.Pipeline.Concurrency
	pcfg.BadcaseThreshold = cfg.Pipeline.BadcaseThreshold
	e.Pipeline = pipeline.New(st, cl, gens, sc, pcfg)

	if withSource {
		pool, err := pgxpool.New(ctx, cfg.Source.DatabaseURL)
		if err != nil {
			e.Close()
			return nil, eris.Wrap(err, "connect source log")
		}
		e.sourcePool = pool
	}

	return e, nil
}

// newSyncer builds the incremental synchronizer over the source pool.
func (e *env) newSyncer() *syncer.Syncer {
	src := syncer.NewPostgresSource(e.sourcePool, cfg.Source.Table)
	return syncer.New(src, e.Store, syncer.Config{BatchLimit: cfg.Sync.BatchLimit})
}

// newScheduler builds the tick loop over the wired pipeline.
func (e *env) newScheduler() *scheduler.Scheduler {
	return scheduler.New(e.Pipeline, e.Store, e.Tunables, scheduler.Config{
		Interval:   cfg.Scheduler.Interval(),
		MinBacklog: cfg.Scheduler.MinBacklog,
	})
}

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/answerlab/qaeval/internal/model"
	"github.com/answerlab/qaeval/internal/pipeline"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []model.Phase
	block   chan struct{} // when set, RunPhase waits on it
	started chan struct{} // signalled once RunPhase begins

	configUpdates int32
}

func (f *fakeRunner) RunPhase(ctx context.Context, phase model.Phase) (*model.PhaseReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, phase)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return &model.PhaseReport{Phase: phase, Processed: 1, Succeeded: 1}, nil
}

func (f *fakeRunner) UpdateConfig(cfg pipeline.Config) {
	atomic.AddInt32(&f.configUpdates, 1)
}

func (f *fakeRunner) phases() []model.Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Phase(nil), f.calls...)
}

type fakeBacklog struct {
	counts map[model.ProcessingStatus]int
	err    error
}

func (f *fakeBacklog) CountByStatus(ctx context.Context) (map[model.ProcessingStatus]int, error) {
	return f.counts, f.err
}

func TestTick_IdleWhenBacklogBelowThreshold(t *testing.T) {
	runner := &fakeRunner{}
	backlog := &fakeBacklog{counts: map[model.ProcessingStatus]int{
		model.StatusPending:    2,
		model.StatusClassified: 1,
	}}
	s := New(runner, backlog, nil, Config{Interval: time.Minute, MinBacklog: 5})

	s.Tick(context.Background(), zap.NewNop())

	assert.Empty(t, runner.phases())
}

// One backlog over the threshold wakes the whole tick; phases with fewer
// pending records than the minimum still run rather than waiting forever.
func TestTick_SmallBacklogRunsWhenAnotherCrossesThreshold(t *testing.T) {
	runner := &fakeRunner{}
	backlog := &fakeBacklog{counts: map[model.ProcessingStatus]int{
		model.StatusPending:   2,
		model.StatusGenerated: 7,
	}}
	s := New(runner, backlog, nil, Config{Interval: time.Minute, MinBacklog: 5})

	s.Tick(context.Background(), zap.NewNop())

	assert.ElementsMatch(t, []model.Phase{model.PhaseClassify, model.PhaseScore}, runner.phases())
}

func TestTick_RunsOnlyPhasesWithWork(t *testing.T) {
	runner := &fakeRunner{}
	backlog := &fakeBacklog{counts: map[model.ProcessingStatus]int{
		model.StatusPending:   3,
		model.StatusGenerated: 7,
	}}
	s := New(runner, backlog, nil, Config{Interval: time.Minute, MinBacklog: 1})

	s.Tick(context.Background(), zap.NewNop())

	phases := runner.phases()
	require.Len(t, phases, 2)
	assert.ElementsMatch(t, []model.Phase{model.PhaseClassify, model.PhaseScore}, phases)
}

func TestTick_SkipsPhaseStillRunning(t *testing.T) {
	runner := &fakeRunner{
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	backlog := &fakeBacklog{counts: map[model.ProcessingStatus]int{
		model.StatusPending: 10,
	}}
	s := New(runner, backlog, nil, Config{Interval: time.Minute, MinBacklog: 1})

	done := make(chan struct{})
	go func() {
		s.Tick(context.Background(), zap.NewNop())
		close(done)
	}()

	// Wait until the first run holds the phase lock, then tick again: the
	// second tick must skip classify instead of queueing a second run.
	<-runner.started
	s.Tick(context.Background(), zap.NewNop())
	assert.Len(t, runner.phases(), 1)

	close(runner.block)
	<-done
}

func TestTick_BacklogErrorSkipsAllPhases(t *testing.T) {
	runner := &fakeRunner{}
	backlog := &fakeBacklog{err: assert.AnError}
	s := New(runner, backlog, nil, Config{Interval: time.Minute, MinBacklog: 1})

	s.Tick(context.Background(), zap.NewNop())

	assert.Empty(t, runner.phases())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	runner := &fakeRunner{}
	backlog := &fakeBacklog{counts: map[model.ProcessingStatus]int{}}
	s := New(runner, backlog, nil, Config{Interval: 5 * time.Millisecond, MinBacklog: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(&fakeRunner{}, &fakeBacklog{}, nil, Config{})
	assert.Equal(t, time.Minute, s.cfg.Interval)
	assert.Equal(t, 1, s.cfg.MinBacklog)
}

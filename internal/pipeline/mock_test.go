package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/answerlab/qaeval/internal/model"
	"github.com/answerlab/qaeval/internal/store"
	"github.com/answerlab/qaeval/pkg/scoring"
)

// --- Store mock ---

type mockStore struct {
	mock.Mock
}

var _ store.Store = (*mockStore)(nil)

func (m *mockStore) InsertSyncBatch(ctx context.Context, questions []model.Question, answers []model.Answer, watermark time.Time) (int, error) {
	args := m.Called(ctx, questions, answers, watermark)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) ExistingFingerprints(ctx context.Context, fingerprints []string) (map[string]bool, error) {
	args := m.Called(ctx, fingerprints)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *mockStore) Watermark(ctx context.Context) (*time.Time, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

func (m *mockStore) GetQuestion(ctx context.Context, fingerprint string) (*model.Question, error) {
	args := m.Called(ctx, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Question), args.Error(1)
}

func (m *mockStore) ListByStatus(ctx context.Context, status model.ProcessingStatus, limit int) ([]model.Question, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Question), args.Error(1)
}

func (m *mockStore) CountByStatus(ctx context.Context) (map[model.ProcessingStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.ProcessingStatus]int), args.Error(1)
}

func (m *mockStore) SetClassification(ctx context.Context, fingerprint, label string) error {
	args := m.Called(ctx, fingerprint, label)
	return args.Error(0)
}

func (m *mockStore) MarkGenerated(ctx context.Context, fingerprint string) error {
	args := m.Called(ctx, fingerprint)
	return args.Error(0)
}

func (m *mockStore) MarkFailed(ctx context.Context, fingerprint, reason string) error {
	args := m.Called(ctx, fingerprint, reason)
	return args.Error(0)
}

func (m *mockStore) Requeue(ctx context.Context, fingerprint string) error {
	args := m.Called(ctx, fingerprint)
	return args.Error(0)
}

func (m *mockStore) SoftDelete(ctx context.Context, fingerprint string) error {
	args := m.Called(ctx, fingerprint)
	return args.Error(0)
}

func (m *mockStore) Reclassify(ctx context.Context, rec model.Reclassification) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockStore) InsertAnswer(ctx context.Context, answer *model.Answer) error {
	args := m.Called(ctx, answer)
	return args.Error(0)
}

func (m *mockStore) AnswersFor(ctx context.Context, fingerprint string) ([]model.Answer, error) {
	args := m.Called(ctx, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Answer), args.Error(1)
}

func (m *mockStore) SaveScores(ctx context.Context, fingerprint string, scores []model.Score) error {
	args := m.Called(ctx, fingerprint, scores)
	return args.Error(0)
}

func (m *mockStore) FlagBadcase(ctx context.Context, fingerprint string, lows []model.LowDimension) error {
	args := m.Called(ctx, fingerprint, lows)
	return args.Error(0)
}

func (m *mockStore) SetBadcaseReview(ctx context.Context, fingerprint string, review model.ReviewStatus) error {
	args := m.Called(ctx, fingerprint, review)
	return args.Error(0)
}

func (m *mockStore) ListBadcases(ctx context.Context, filter store.BadcaseFilter) ([]model.Question, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Question), args.Error(1)
}

func (m *mockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Classifier mock ---

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, query, priorAnswer string) (string, error) {
	args := m.Called(ctx, query, priorAnswer)
	return args.String(0), args.Error(1)
}

// --- Generator mock ---

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, query string) (string, error) {
	args := m.Called(ctx, query)
	return args.String(0), args.Error(1)
}

// --- Scorer mock ---

type mockScorer struct {
	mock.Mock
}

func (m *mockScorer) Score(ctx context.Context, req scoring.ScoreRequest) ([]scoring.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]scoring.Result), args.Error(1)
}

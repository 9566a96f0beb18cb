package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/answerlab/qaeval/internal/model"
	"github.com/answerlab/qaeval/internal/resilience"
	"github.com/answerlab/qaeval/pkg/scoring"
)

func generatedQuestion(fp string) model.Question {
	return model.Question{Fingerprint: fp, PageID: "p", Query: "how do I pay", Status: model.StatusGenerated}
}

func TestScore_FlagsBadcaseBelowThreshold(t *testing.T) {
	st := &mockStore{}
	sc := &mockScorer{}
	p := New(st, nil, nil, sc, testConfig()) // threshold 2

	q := generatedQuestion("fp-1")
	st.On("ListByStatus", mock.Anything, model.StatusGenerated, 10).Return([]model.Question{q}, nil)
	st.On("AnswersFor", mock.Anything, "fp-1").Return([]model.Answer{
		{ID: "a1", Fingerprint: "fp-1", Assistant: model.AssistantInternal, Text: "answer"},
	}, nil)
	sc.On("Score", mock.Anything, mock.Anything).Return([]scoring.Result{
		{AnswerID: "a1", Assistant: model.AssistantInternal, Dims: [model.NumDimensions]int{5, 5, 5, 1, 5}},
	}, nil)
	st.On("SaveScores", mock.Anything, "fp-1", mock.MatchedBy(func(scores []model.Score) bool {
		return len(scores) == 1 && scores[0].Average == 4.2
	})).Return(nil)
	st.On("FlagBadcase", mock.Anything, "fp-1", mock.MatchedBy(func(lows []model.LowDimension) bool {
		return len(lows) == 1 &&
			lows[0].Assistant == model.AssistantInternal &&
			lows[0].Name == "clarity" &&
			lows[0].Value == 1
	})).Return(nil)

	report, err := p.Score(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	st.AssertExpectations(t)
}

func TestScore_NoBadcaseAtThreshold(t *testing.T) {
	st := &mockStore{}
	sc := &mockScorer{}
	p := New(st, nil, nil, sc, testConfig()) // threshold 2

	q := generatedQuestion("fp-1")
	st.On("ListByStatus", mock.Anything, model.StatusGenerated, 10).Return([]model.Question{q}, nil)
	st.On("AnswersFor", mock.Anything, "fp-1").Return([]model.Answer{
		{ID: "a1", Fingerprint: "fp-1", Assistant: model.AssistantInternal, Text: "answer"},
	}, nil)
	// A dimension equal to the threshold is not a badcase.
	sc.On("Score", mock.Anything, mock.Anything).Return([]scoring.Result{
		{AnswerID: "a1", Assistant: model.AssistantInternal, Dims: [model.NumDimensions]int{5, 5, 5, 2, 5}},
	}, nil)
	st.On("SaveScores", mock.Anything, "fp-1", mock.Anything).Return(nil)

	report, err := p.Score(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	st.AssertNotCalled(t, "FlagBadcase", mock.Anything, mock.Anything, mock.Anything)
}

func TestScore_RejectsIncompleteRatings(t *testing.T) {
	st := &mockStore{}
	sc := &mockScorer{}
	p := New(st, nil, nil, sc, testConfig())

	q := generatedQuestion("fp-1")
	st.On("ListByStatus", mock.Anything, model.StatusGenerated, 10).Return([]model.Question{q}, nil)
	st.On("AnswersFor", mock.Anything, "fp-1").Return([]model.Answer{
		{ID: "a1", Fingerprint: "fp-1", Assistant: model.AssistantInternal},
		{ID: "a2", Fingerprint: "fp-1", Assistant: model.AssistantCompetitorA},
	}, nil)
	// Only one rating for two answers: nothing persists.
	sc.On("Score", mock.Anything, mock.Anything).Return([]scoring.Result{
		{AnswerID: "a1", Assistant: model.AssistantInternal, Dims: [model.NumDimensions]int{4, 4, 4, 4, 4}},
	}, nil)
	st.On("MarkFailed", mock.Anything, "fp-1", mock.MatchedBy(func(reason string) bool {
		return len(reason) > 0
	})).Return(nil)

	report, err := p.Score(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	st.AssertNotCalled(t, "SaveScores", mock.Anything, mock.Anything, mock.Anything)
}

func TestScore_NoAnswersFails(t *testing.T) {
	st := &mockStore{}
	sc := &mockScorer{}
	p := New(st, nil, nil, sc, testConfig())

	q := generatedQuestion("fp-1")
	st.On("ListByStatus", mock.Anything, model.StatusGenerated, 10).Return([]model.Question{q}, nil)
	st.On("AnswersFor", mock.Anything, "fp-1").Return([]model.Answer{}, nil)
	st.On("MarkFailed", mock.Anything, "fp-1", mock.Anything).Return(nil)

	report, err := p.Score(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	sc.AssertNotCalled(t, "Score", mock.Anything, mock.Anything)
}

func TestScore_RetryableScoreErrorRetried(t *testing.T) {
	st := &mockStore{}
	sc := &mockScorer{}
	p := New(st, nil, nil, sc, testConfig())

	q := generatedQuestion("fp-1")
	st.On("ListByStatus", mock.Anything, model.StatusGenerated, 10).Return([]model.Question{q}, nil)
	st.On("AnswersFor", mock.Anything, "fp-1").Return([]model.Answer{
		{ID: "a1", Fingerprint: "fp-1", Assistant: model.AssistantInternal},
	}, nil)
	sc.On("Score", mock.Anything, mock.Anything).
		Return(nil, resilience.NewAPIError(resilience.KindTimeout, "scoring", "score", nil)).Once()
	sc.On("Score", mock.Anything, mock.Anything).Return([]scoring.Result{
		{AnswerID: "a1", Assistant: model.AssistantInternal, Dims: [model.NumDimensions]int{4, 4, 4, 4, 4}},
	}, nil).Once()
	st.On("SaveScores", mock.Anything, "fp-1", mock.Anything).Return(nil)

	report, err := p.Score(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	sc.AssertNumberOfCalls(t, "Score", 2)
}

func TestDetectBadcase(t *testing.T) {
	mk := func(dims [model.NumDimensions]int) *model.Score {
		s, err := model.NewScore("a", dims, model.DefaultDimensionNames, "", time.Now())
		require.NoError(t, err)
		return s
	}

	scores := map[model.AssistantID]*model.Score{
		model.AssistantInternal:    mk([model.NumDimensions]int{5, 5, 5, 1, 5}),
		model.AssistantCompetitorA: mk([model.NumDimensions]int{5, 5, 5, 5, 5}),
		model.AssistantCompetitorB: mk([model.NumDimensions]int{1, 5, 5, 5, 5}),
	}

	lows := DetectBadcase(scores, 2)
	require.Len(t, lows, 2)
	// Deterministic assistant ordering: internal first.
	assert.Equal(t, model.AssistantInternal, lows[0].Assistant)
	assert.Equal(t, "clarity", lows[0].Name)
	assert.Equal(t, model.AssistantCompetitorB, lows[1].Assistant)
	assert.Equal(t, "accuracy", lows[1].Name)

	assert.Empty(t, DetectBadcase(scores, 1))
}

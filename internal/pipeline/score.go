package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/answerlab/qaeval/internal/model"
	"github.com/answerlab/qaeval/internal/resilience"
	"github.com/answerlab/qaeval/pkg/scoring"
)

// Score moves generated questions to completed. All of a question's answers
// are rated in one scoring call; the scores, the answers' scored flags and
// the completed status commit atomically. Badcase detection runs inline on
// the fresh scores.
func (p *Pipeline) Score(ctx context.Context) (*model.PhaseReport, error) {
	cfg := p.config()
	return p.runBatch(ctx, model.PhaseScore, func(ctx context.Context, q model.Question) error {
		answers, err := p.store.AnswersFor(ctx, q.Fingerprint)
		if err != nil {
			return eris.Wrapf(err, "score %s: load answers", q.Fingerprint)
		}
		if len(answers) == 0 {
			return eris.Errorf("score %s: no answers to rate", q.Fingerprint)
		}

		req := scoring.ScoreRequest{Query: q.Query}
		if q.Classification != nil {
			req.Classification = *q.Classification
		}
		byID := make(map[string]model.Answer, len(answers))
		for _, a := range answers {
			byID[a.ID] = a
			req.Answers = append(req.Answers, scoring.AnswerInput{
				AnswerID:  a.ID,
				Assistant: a.Assistant,
				Text:      a.Text,
			})
		}

		results, err := resilience.DoVal(ctx, cfg.Retry, func(ctx context.Context) ([]scoring.Result, error) {
			return p.scorer.Score(ctx, req)
		})
		if err != nil {
			return eris.Wrapf(err, "score %s", q.Fingerprint)
		}
		if len(results) != len(answers) {
			return resilience.NewAPIError(resilience.KindResponseFormat, "scoring", "score",
				eris.Errorf("got %d ratings for %d answers", len(results), len(answers)))
		}

		now := time.Now().UTC()
		scores := make([]model.Score, 0, len(results))
		byAssistant := make(map[model.AssistantID]*model.Score, len(results))
		for _, r := range results {
			answer, ok := byID[r.AnswerID]
			if !ok {
				return resilience.NewAPIError(resilience.KindResponseFormat, "scoring", "score",
					eris.Errorf("rating for unknown answer %s", r.AnswerID))
			}
			sc, err := model.NewScore(r.AnswerID, r.Dims, r.DimNames, r.Comment, now)
			if err != nil {
				return eris.Wrapf(err, "score %s", q.Fingerprint)
			}
			scores = append(scores, *sc)
			byAssistant[answer.Assistant] = sc
		}

		if err := p.store.SaveScores(ctx, q.Fingerprint, scores); err != nil {
			return eris.Wrapf(err, "score %s: persist", q.Fingerprint)
		}

		if lows := DetectBadcase(byAssistant, cfg.BadcaseThreshold); len(lows) > 0 {
			if err := p.store.FlagBadcase(ctx, q.Fingerprint, lows); err != nil {
				return eris.Wrapf(err, "score %s: flag badcase", q.Fingerprint)
			}
		}
		return nil
	})
}

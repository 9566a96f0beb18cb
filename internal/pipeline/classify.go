package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/answerlab/qaeval/internal/model"
	"github.com/answerlab/qaeval/internal/resilience"
)

// Classify moves pending questions to classified by labeling each one
// through the classification service. The production answer captured during
// sync rides along as classification context when present.
func (p *Pipeline) Classify(ctx context.Context) (*model.PhaseReport, error) {
	cfg := p.config()
	return p.runBatch(ctx, model.PhaseClassify, func(ctx context.Context, q model.Question) error {
		prior, err := p.internalAnswer(ctx, q.Fingerprint)
		if err != nil {
			return eris.Wrapf(err, "classify %s: load prior answer", q.Fingerprint)
		}
		label, err := resilience.DoVal(ctx, cfg.Retry, func(ctx context.Context) (string, error) {
			return p.classifier.Classify(ctx, q.Query, prior)
		})
		if err != nil {
			return eris.Wrapf(err, "classify %s", q.Fingerprint)
		}
		return p.store.SetClassification(ctx, q.Fingerprint, label)
	})
}

// internalAnswer returns the source log's production answer for a question,
// or "" when sync captured none.
func (p *Pipeline) internalAnswer(ctx context.Context, fingerprint string) (string, error) {
	answers, err := p.store.AnswersFor(ctx, fingerprint)
	if err != nil {
		return "", err
	}
	for _, a := range answers {
		if a.Assistant == model.AssistantInternal {
			return a.Text, nil
		}
	}
	return "", nil
}

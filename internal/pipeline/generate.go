package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/answerlab/qaeval/internal/model"
	"github.com/answerlab/qaeval/internal/resilience"
)

// Generate moves classified questions to generated by collecting one answer
// per configured assistant. Assistants that already have an answer row (the
// internal one usually arrives with the sync) are skipped. Every assistant is
// attempted even when an earlier one fails; the record only advances once all
// of them have an answer.
func (p *Pipeline) Generate(ctx context.Context) (*model.PhaseReport, error) {
	cfg := p.config()
	return p.runBatch(ctx, model.PhaseGenerate, func(ctx context.Context, q model.Question) error {
		existing, err := p.store.AnswersFor(ctx, q.Fingerprint)
		if err != nil {
			return eris.Wrapf(err, "generate %s: load answers", q.Fingerprint)
		}
		have := make(map[model.AssistantID]bool, len(existing))
		for _, a := range existing {
			have[a.Assistant] = true
		}

		var firstErr error
		for id, gen := range p.generators {
			if have[id] {
				continue
			}
			text, err := resilience.DoVal(ctx, cfg.Retry, func(ctx context.Context) (string, error) {
				return gen.Generate(ctx, q.Query)
			})
			if err != nil {
				if firstErr == nil {
					firstErr = eris.Wrapf(err, "generate %s: assistant %s", q.Fingerprint, id)
				}
				continue
			}
			answer := &model.Answer{
				Fingerprint: q.Fingerprint,
				Assistant:   id,
				Text:        text,
				AnsweredAt:  time.Now().UTC(),
			}
			if err := p.store.InsertAnswer(ctx, answer); err != nil {
				if firstErr == nil {
					firstErr = eris.Wrapf(err, "generate %s: store answer %s", q.Fingerprint, id)
				}
			}
		}
		if firstErr != nil {
			return firstErr
		}

		return p.store.MarkGenerated(ctx, q.Fingerprint)
	})
}

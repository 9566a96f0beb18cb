// Package syncer pulls new rows from the external conversation log into the
// questions table. Runs are incremental and idempotent: the business
// fingerprint deduplicates rows and the watermark only advances together with
// the batch that produced it.
package syncer

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/answerlab/qaeval/internal/fingerprint"
	"github.com/answerlab/qaeval/internal/model"
)

// SourceReader reads rows from the external conversation log. The source is
// strictly read-only; the pipeline never writes back.
type SourceReader interface {
	ReadSince(ctx context.Context, since time.Time, limit int) ([]model.SourceRow, error)
}

// Sink is the slice of the store the syncer writes through.
type Sink interface {
	Watermark(ctx context.Context) (*time.Time, error)
	ExistingFingerprints(ctx context.Context, fingerprints []string) (map[string]bool, error)
	InsertSyncBatch(ctx context.Context, questions []model.Question, answers []model.Answer, watermark time.Time) (int, error)
}

// Config tunes one sync run.
type Config struct {
	BatchLimit int `yaml:"batch_limit" mapstructure:"batch_limit"`
}

// Syncer performs incremental synchronization from source to store.
type Syncer struct {
	source SourceReader
	sink   Sink
	cfg    Config
	log    *zap.Logger
}

// New creates a Syncer.
func New(source SourceReader, sink Sink, cfg Config) *Syncer {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 1000
	}
	return &Syncer{
		source: source,
		sink:   sink,
		cfg:    cfg,
		log:    zap.L().With(zap.String("component", "syncer")),
	}
}

// Sync runs one incremental pass. The lower bound is the later of the stored
// watermark and the start of the current ISO week, so a stale watermark never
// drags in months of history. New questions land as pending together with the
// advanced watermark in a single commit; on failure the watermark stays put
// and the next run re-reads the same window.
func (s *Syncer) Sync(ctx context.Context, now time.Time) (*model.SyncReport, error) {
	lower := startOfISOWeek(now.UTC())
	wm, err := s.sink.Watermark(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "syncer: load watermark")
	}
	if wm != nil && wm.After(lower) {
		lower = wm.UTC()
	}

	rows, err := s.source.ReadSince(ctx, lower, s.cfg.BatchLimit)
	if err != nil {
		return nil, eris.Wrap(err, "syncer: read source")
	}

	report := &model.SyncReport{Scanned: len(rows)}
	if len(rows) == 0 {
		s.log.Debug("no new source rows", zap.Time("since", lower))
		return report, nil
	}

	// First pass: fingerprint valid rows and drop intra-batch duplicates.
	type candidate struct {
		fp  string
		row model.SourceRow
	}
	seen := make(map[string]bool, len(rows))
	var candidates []candidate
	maxSentAt := lower
	for _, row := range rows {
		if row.SentAt.After(maxSentAt) {
			maxSentAt = row.SentAt
		}
		if !fingerprint.Valid(row.Query) {
			report.SkippedInvalid++
			continue
		}
		fp := fingerprint.Compute(row.PageID, row.SentAt, row.Query)
		if seen[fp] {
			report.SkippedDuplicate++
			continue
		}
		seen[fp] = true
		candidates = append(candidates, candidate{fp: fp, row: row})
	}

	fps := make([]string, len(candidates))
	for i, c := range candidates {
		fps[i] = c.fp
	}
	existing, err := s.sink.ExistingFingerprints(ctx, fps)
	if err != nil {
		return nil, eris.Wrap(err, "syncer: check existing fingerprints")
	}

	nowUTC := now.UTC()
	var questions []model.Question
	var answers []model.Answer
	for _, c := range candidates {
		if existing[c.fp] {
			report.SkippedDuplicate++
			continue
		}
		questions = append(questions, model.Question{
			Fingerprint: c.fp,
			PageID:      c.row.PageID,
			DeviceType:  c.row.DeviceType,
			Query:       c.row.Query,
			SentAt:      c.row.SentAt.UTC(),
			Status:      model.StatusPending,
			CreatedAt:   nowUTC,
			UpdatedAt:   nowUTC,
		})
		// The source log already carries the production answer; persist it as
		// the internal assistant's response so the generate phase only fans out
		// to the assistants that still need one. It rides in the same commit as
		// the question: once the fingerprint exists the row is never re-read,
		// so a late answer write would have no second chance.
		if c.row.Answer != "" {
			answers = append(answers, model.Answer{
				Fingerprint: c.fp,
				Assistant:   model.AssistantInternal,
				Text:        c.row.Answer,
				AnsweredAt:  c.row.SentAt.UTC(),
			})
		}
	}

	inserted, err := s.sink.InsertSyncBatch(ctx, questions, answers, maxSentAt)
	if err != nil {
		return nil, eris.Wrap(err, "syncer: insert batch")
	}
	report.Inserted = inserted
	report.Watermark = &maxSentAt

	s.log.Info("sync complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("inserted", report.Inserted),
		zap.Int("skipped_duplicate", report.SkippedDuplicate),
		zap.Int("skipped_invalid", report.SkippedInvalid),
		zap.Time("watermark", maxSentAt),
	)
	return report, nil
}

// startOfISOWeek returns Monday 00:00 UTC of the week containing t.
func startOfISOWeek(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := t.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

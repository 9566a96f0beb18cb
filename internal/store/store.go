package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/answerlab/qaeval/internal/model"
)

// ErrNotFound is returned when a lookup by fingerprint matches no row.
var ErrNotFound = eris.New("store: not found")

// BadcaseFilter specifies criteria for listing flagged questions.
type BadcaseFilter struct {
	Review model.ReviewStatus `json:"review,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for the enrichment pipeline.
type Store interface {
	// Sync
	InsertSyncBatch(ctx context.Context, questions []model.Question, answers []model.Answer, watermark time.Time) (int, error)
	ExistingFingerprints(ctx context.Context, fingerprints []string) (map[string]bool, error)
	Watermark(ctx context.Context) (*time.Time, error)

	// Questions
	GetQuestion(ctx context.Context, fingerprint string) (*model.Question, error)
	ListByStatus(ctx context.Context, status model.ProcessingStatus, limit int) ([]model.Question, error)
	CountByStatus(ctx context.Context) (map[model.ProcessingStatus]int, error)
	SetClassification(ctx context.Context, fingerprint, label string) error
	MarkGenerated(ctx context.Context, fingerprint string) error
	MarkFailed(ctx context.Context, fingerprint, reason string) error
	Requeue(ctx context.Context, fingerprint string) error
	SoftDelete(ctx context.Context, fingerprint string) error
	Reclassify(ctx context.Context, rec model.Reclassification) error

	// Answers and scores
	InsertAnswer(ctx context.Context, answer *model.Answer) error
	AnswersFor(ctx context.Context, fingerprint string) ([]model.Answer, error)
	SaveScores(ctx context.Context, fingerprint string, scores []model.Score) error

	// Badcases
	FlagBadcase(ctx context.Context, fingerprint string, lows []model.LowDimension) error
	SetBadcaseReview(ctx context.Context, fingerprint string, review model.ReviewStatus) error
	ListBadcases(ctx context.Context, filter BadcaseFilter) ([]model.Question, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

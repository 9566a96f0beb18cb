package model

import "time"

// Question is one ingested user query and its pipeline state. The business
// fingerprint is the only deduplication key; two source rows that normalize to
// the same (page id, sent time, query text) resolve to the same Question.
type Question struct {
	Fingerprint    string           `json:"fingerprint"`
	PageID         string           `json:"page_id"`
	DeviceType     string           `json:"device_type,omitempty"`
	Query          string           `json:"query"`
	SentAt         time.Time        `json:"sent_at"`
	Classification *string          `json:"classification,omitempty"`
	Status         ProcessingStatus `json:"status"`
	FailReason     string           `json:"fail_reason,omitempty"`
	IsBadcase      bool             `json:"is_badcase"`
	BadcaseAt      *time.Time       `json:"badcase_at,omitempty"`
	BadcaseReview  ReviewStatus     `json:"badcase_review,omitempty"`
	LowDimensions  []LowDimension   `json:"low_dimensions,omitempty"`
	Deleted        bool             `json:"deleted"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// LowDimension records one score dimension that fell below the badcase
// threshold.
type LowDimension struct {
	Assistant AssistantID `json:"assistant"`
	Name      string      `json:"name"`
	Value     int         `json:"value"`
}

// SourceRow is one raw record from the external conversation log table. The
// core only ever reads these.
type SourceRow struct {
	PageID      string    `json:"page_id"`
	DeviceType  string    `json:"device_type"`
	Query       string    `json:"query"`
	Answer      string    `json:"answer"`
	SentAt      time.Time `json:"sent_at"`
	ServiceID   string    `json:"service_id"`
	QAType      string    `json:"qa_type"`
	IntentFlags string    `json:"intent_flags"`
}

// Reclassification is an append-only audit row for a manual label change.
type Reclassification struct {
	ID                string    `json:"id"`
	Fingerprint       string    `json:"fingerprint"`
	OldClassification string    `json:"old_classification"`
	NewClassification string    `json:"new_classification"`
	Reason            string    `json:"reason"`
	Actor             string    `json:"actor"`
	CreatedAt         time.Time `json:"created_at"`
}

// SyncReport summarizes one synchronizer run.
type SyncReport struct {
	Scanned          int        `json:"scanned"`
	Inserted         int        `json:"inserted"`
	SkippedDuplicate int        `json:"skipped_duplicate"`
	SkippedInvalid   int        `json:"skipped_invalid"`
	Watermark        *time.Time `json:"watermark,omitempty"`
}

// PhaseReport summarizes one phase run over a batch of questions.
type PhaseReport struct {
	Phase     Phase  `json:"phase"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Message   string `json:"message,omitempty"`
}

// Healthy reports whether the phase made forward progress. A batch where every
// remote call failed marks the tick unhealthy; the next tick re-selects
// eligible records fresh, so no poison-batch deadlock is possible.
func (r PhaseReport) Healthy() bool {
	return r.Processed == 0 || r.Succeeded > 0
}

package model

import "time"

// AssistantID identifies which assistant produced an answer. The string values
// are a persistence contract shared with existing data.
type AssistantID string

const (
	AssistantInternal    AssistantID = "internal"
	AssistantCompetitorA AssistantID = "competitor_a"
	AssistantCompetitorB AssistantID = "competitor_b"
)

// Answer is one assistant's response to a question. One row per assistant per
// question; only IsScored changes after insert.
type Answer struct {
	ID          string      `json:"id"`
	Fingerprint string      `json:"fingerprint"`
	Assistant   AssistantID `json:"assistant"`
	Text        string      `json:"text"`
	IsScored    bool        `json:"is_scored"`
	AnsweredAt  time.Time   `json:"answered_at"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

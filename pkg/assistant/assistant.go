// Package assistant produces candidate answers from the configured AI
// assistants so they can be compared side by side.
package assistant

import (
	"context"

	"github.com/answerlab/qaeval/internal/model"
)

// Generator produces an answer for a user question.
type Generator interface {
	Generate(ctx context.Context, query string) (string, error)
}

// Generators maps each configured assistant to its generator.
type Generators map[model.AssistantID]Generator

package pipeline

import (
	"github.com/answerlab/qaeval/internal/model"
)

// DetectBadcase returns every score dimension strictly below the threshold,
// tagged with the assistant whose answer earned it. An empty result means the
// question is not a badcase.
func DetectBadcase(scores map[model.AssistantID]*model.Score, threshold int) []model.LowDimension {
	var lows []model.LowDimension
	for _, id := range []model.AssistantID{model.AssistantInternal, model.AssistantCompetitorA, model.AssistantCompetitorB} {
		s, ok := scores[id]
		if !ok {
			continue
		}
		for _, low := range s.LowDims(threshold) {
			low.Assistant = id
			lows = append(lows, low)
		}
	}
	return lows
}

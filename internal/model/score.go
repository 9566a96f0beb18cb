package model

import (
	"math"
	"time"

	"github.com/rotisserie/eris"
)

// NumDimensions is the number of scoring dimensions. A score either has all
// five dimensions populated or it is not persisted at all.
const NumDimensions = 5

// DefaultDimensionNames are the evaluation axes used when the scoring service
// does not name them itself.
var DefaultDimensionNames = [NumDimensions]string{
	"accuracy",
	"completeness",
	"relevance",
	"clarity",
	"safety",
}

// Score is the five-dimension evaluation of one answer. Average is always the
// mean of the five sub-scores rounded to two decimals.
type Score struct {
	ID       string               `json:"id"`
	AnswerID string               `json:"answer_id"`
	Dims     [NumDimensions]int   `json:"dims"`
	DimNames [NumDimensions]string `json:"dim_names"`
	Average  float64              `json:"average"`
	Comment  string               `json:"comment,omitempty"`
	RatedAt  time.Time            `json:"rated_at"`
}

// NewScore validates the sub-scores and computes the average. Each dimension
// must be in [1,5]; anything else means the scoring attempt failed and nothing
// is persisted.
func NewScore(answerID string, dims [NumDimensions]int, names [NumDimensions]string, comment string, ratedAt time.Time) (*Score, error) {
	for i, d := range dims {
		if d < 1 || d > 5 {
			return nil, eris.Errorf("score: dimension %d out of range: %d", i+1, d)
		}
	}
	for i, n := range names {
		if n == "" {
			names[i] = DefaultDimensionNames[i]
		}
	}
	return &Score{
		AnswerID: answerID,
		Dims:     dims,
		DimNames: names,
		Average:  averageOf(dims),
		Comment:  comment,
		RatedAt:  ratedAt,
	}, nil
}

// averageOf returns the mean of the sub-scores rounded to two decimals.
func averageOf(dims [NumDimensions]int) float64 {
	sum := 0
	for _, d := range dims {
		sum += d
	}
	return math.Round(float64(sum)/NumDimensions*100) / 100
}

// LowDims returns the dimensions strictly below the threshold.
func (s *Score) LowDims(threshold int) []LowDimension {
	var low []LowDimension
	for i, d := range s.Dims {
		if d < threshold {
			low = append(low, LowDimension{Name: s.DimNames[i], Value: d})
		}
	}
	return low
}

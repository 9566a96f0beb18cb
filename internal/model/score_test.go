package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScore_Average(t *testing.T) {
	tests := []struct {
		name string
		dims [NumDimensions]int
		want float64
	}{
		{"all fives", [NumDimensions]int{5, 5, 5, 5, 5}, 5.0},
		{"all ones", [NumDimensions]int{1, 1, 1, 1, 1}, 1.0},
		{"mixed", [NumDimensions]int{5, 5, 5, 1, 5}, 4.2},
		{"rounds to two decimals", [NumDimensions]int{3, 3, 3, 3, 4}, 3.2},
		{"non-terminating mean", [NumDimensions]int{2, 3, 3, 3, 3}, 2.8},
		{"one third style", [NumDimensions]int{1, 2, 2, 2, 2}, 1.8},
		{"rounding up", [NumDimensions]int{4, 4, 4, 4, 5}, 4.2},
		{"thirds", [NumDimensions]int{1, 1, 2, 2, 2}, 1.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScore("ans-1", tt.dims, DefaultDimensionNames, "", time.Now())
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Average)
		})
	}
}

func TestNewScore_RejectsOutOfRange(t *testing.T) {
	_, err := NewScore("ans-1", [NumDimensions]int{5, 5, 0, 5, 5}, DefaultDimensionNames, "", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = NewScore("ans-1", [NumDimensions]int{5, 5, 6, 5, 5}, DefaultDimensionNames, "", time.Now())
	require.Error(t, err)
}

func TestNewScore_DefaultsDimensionNames(t *testing.T) {
	s, err := NewScore("ans-1", [NumDimensions]int{4, 4, 4, 4, 4}, [NumDimensions]string{}, "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, DefaultDimensionNames, s.DimNames)
}

func TestScore_LowDims(t *testing.T) {
	s, err := NewScore("ans-1", [NumDimensions]int{5, 5, 5, 1, 5}, DefaultDimensionNames, "", time.Now())
	require.NoError(t, err)

	low := s.LowDims(2)
	require.Len(t, low, 1)
	assert.Equal(t, "clarity", low[0].Name)
	assert.Equal(t, 1, low[0].Value)

	assert.Empty(t, s.LowDims(1))
}

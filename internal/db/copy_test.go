package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkInsertIgnore_EmptyRows(t *testing.T) {
	n, err := BulkInsertIgnore(nil, nil, InsertIgnoreConfig{
		Table:        "questions",
		Columns:      []string{"fingerprint", "query"},
		ConflictKeys: []string{"fingerprint"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkInsertIgnore_NoColumns(t *testing.T) {
	_, err := BulkInsertIgnore(nil, nil, InsertIgnoreConfig{
		Table:        "questions",
		ConflictKeys: []string{"fingerprint"},
	}, [][]any{{"fp", "q"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkInsertIgnore_NoConflictKeys(t *testing.T) {
	_, err := BulkInsertIgnore(nil, nil, InsertIgnoreConfig{
		Table:   "questions",
		Columns: []string{"fingerprint", "query"},
	}, [][]any{{"fp", "q"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"questions", `"questions"`},
		{"qa_logs.conversations", `"qa_logs"."conversations"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"fingerprint", "page_id", "query"})
	assert.Equal(t, `"fingerprint", "page_id", "query"`, result)
}

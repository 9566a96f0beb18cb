package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSource(t *testing.T) (*PostgresSource, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresSource(mock, ""), mock
}

func sourceRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"page_id", "device_type", "query", "answer", "sent_at",
		"service_id", "qa_type", "intent_flags",
	})
}

// The watermark equals the max sent_at of the previous batch, so rows sharing
// that timestamp but cut off by the limit must still come back on the next
// read. The bound is inclusive; duplicates are filtered by fingerprint later.
func TestReadSince_LowerBoundInclusive(t *testing.T) {
	src, mock := newMockSource(t)

	since := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE sent_at >= \$1`).
		WithArgs(since, 100).
		WillReturnRows(sourceRows().
			AddRow("p-1", "mobile", "how do I pay", "use the billing page", since, "svc", "faq", "").
			AddRow("p-2", "desktop", "cancel my plan", "", since.Add(time.Minute), "svc", "faq", ""))

	rows, err := src.ReadSince(context.Background(), since, 100)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "p-1", rows[0].PageID)
	assert.Equal(t, since, rows[0].SentAt)
	assert.Equal(t, "cancel my plan", rows[1].Query)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadSince_DefaultsLimit(t *testing.T) {
	src, mock := newMockSource(t)

	since := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM qa_logs\.conversations`).
		WithArgs(since, 1000).
		WillReturnRows(sourceRows())

	rows, err := src.ReadSince(context.Background(), since, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

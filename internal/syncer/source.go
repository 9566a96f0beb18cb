package syncer

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/answerlab/qaeval/internal/db"
	"github.com/answerlab/qaeval/internal/model"
)

// DefaultSourceTable is the conversation log table the pipeline ingests from.
const DefaultSourceTable = "qa_logs.conversations"

// PostgresSource reads the conversation log over a pgx pool. The connection
// typically points at a read replica.
type PostgresSource struct {
	pool  db.Pool
	table string
}

// NewPostgresSource creates a reader for the given source table. An empty
// table name falls back to DefaultSourceTable.
func NewPostgresSource(pool db.Pool, table string) *PostgresSource {
	if table == "" {
		table = DefaultSourceTable
	}
	return &PostgresSource{pool: pool, table: table}
}

func (s *PostgresSource) ReadSince(ctx context.Context, since time.Time, limit int) ([]model.SourceRow, error) {
	if limit <= 0 {
		limit = 1000
	}

	// Inclusive lower bound: the watermark is the max sent_at of the last
	// batch, and a LIMIT cut (or a late arrival) can leave unread rows at that
	// exact timestamp. Fingerprint dedup absorbs the re-read.
	rows, err := s.pool.Query(ctx,
		`SELECT page_id, device_type, query, answer, sent_at, service_id, qa_type, intent_flags
		 FROM `+s.table+`
		 WHERE sent_at >= $1
		 ORDER BY sent_at ASC
		 LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s", s.table)
	}
	defer rows.Close()

	var out []model.SourceRow
	for rows.Next() {
		var r model.SourceRow
		if err := rows.Scan(&r.PageID, &r.DeviceType, &r.Query, &r.Answer, &r.SentAt, &r.ServiceID, &r.QAType, &r.IntentFlags); err != nil {
			return nil, eris.Wrap(err, "source: scan row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "source: iterate rows")
}

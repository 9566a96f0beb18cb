package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/answerlab/qaeval/internal/db"
	"github.com/answerlab/qaeval/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_question":       `SELECT fingerprint, page_id, device_type, query, sent_at, classification, status, fail_reason, is_badcase, badcase_at, badcase_review, low_dimensions, deleted, created_at, updated_at FROM questions WHERE fingerprint = $1`,
	"list_by_status":     `SELECT fingerprint, page_id, device_type, query, sent_at, classification, status, fail_reason, is_badcase, badcase_at, badcase_review, low_dimensions, deleted, created_at, updated_at FROM questions WHERE status = $1 AND NOT deleted ORDER BY created_at ASC LIMIT $2`,
	"set_classification": `UPDATE questions SET classification = $1, status = $2, updated_at = $3 WHERE fingerprint = $4 AND status = $5 AND NOT deleted`,
	"mark_generated":     `UPDATE questions SET status = $1, updated_at = $2 WHERE fingerprint = $3 AND status = $4 AND NOT deleted`,
	"insert_answer":      `INSERT INTO answers (id, fingerprint, assistant, text, is_scored, answered_at, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"answers_for":        `SELECT id, fingerprint, assistant, text, is_scored, answered_at, created_at, updated_at FROM answers WHERE fingerprint = $1 ORDER BY assistant ASC`,
	"get_watermark":      `SELECT watermark FROM sync_watermark WHERE id = 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems that need
// direct query access (e.g., the tunables store).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS questions (
	fingerprint    TEXT PRIMARY KEY,
	page_id        TEXT NOT NULL,
	device_type    TEXT NOT NULL DEFAULT '',
	query          TEXT NOT NULL,
	sent_at        TIMESTAMPTZ NOT NULL,
	classification TEXT,
	status         TEXT NOT NULL DEFAULT 'pending',
	fail_reason    TEXT NOT NULL DEFAULT '',
	is_badcase     BOOLEAN NOT NULL DEFAULT false,
	badcase_at     TIMESTAMPTZ,
	badcase_review TEXT NOT NULL DEFAULT '',
	low_dimensions JSONB,
	deleted        BOOLEAN NOT NULL DEFAULT false,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS answers (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	fingerprint TEXT NOT NULL REFERENCES questions(fingerprint),
	assistant   TEXT NOT NULL,
	text        TEXT NOT NULL,
	is_scored   BOOLEAN NOT NULL DEFAULT false,
	answered_at TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (fingerprint, assistant)
);

CREATE TABLE IF NOT EXISTS scores (
	id        TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	answer_id TEXT NOT NULL REFERENCES answers(id),
	dims      JSONB NOT NULL,
	dim_names JSONB NOT NULL,
	average   DOUBLE PRECISION NOT NULL,
	comment   TEXT NOT NULL DEFAULT '',
	rated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS reclassifications (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	fingerprint        TEXT NOT NULL REFERENCES questions(fingerprint),
	old_classification TEXT NOT NULL DEFAULT '',
	new_classification TEXT NOT NULL,
	reason             TEXT NOT NULL DEFAULT '',
	actor              TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sync_watermark (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	watermark  TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS config_entries (
	key          TEXT PRIMARY KEY,
	current      TEXT NOT NULL,
	pending      TEXT,
	effective_at TIMESTAMPTZ,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_questions_status ON questions(status) WHERE NOT deleted;
CREATE INDEX IF NOT EXISTS idx_questions_badcase ON questions(badcase_at DESC) WHERE is_badcase;
CREATE INDEX IF NOT EXISTS idx_answers_fingerprint ON answers(fingerprint);
CREATE INDEX IF NOT EXISTS idx_scores_answer_id ON scores(answer_id);
CREATE INDEX IF NOT EXISTS idx_reclassifications_fingerprint ON reclassifications(fingerprint);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// questionColumns is the canonical select list for question rows.
const questionColumns = `fingerprint, page_id, device_type, query, sent_at, classification, status, fail_reason, is_badcase, badcase_at, badcase_review, low_dimensions, deleted, created_at, updated_at`

var syncBatchColumns = []string{
	"fingerprint", "page_id", "device_type", "query", "sent_at",
	"status", "created_at", "updated_at",
}

// InsertSyncBatch inserts new questions, their source answers and the
// advanced watermark in one transaction. Rows whose fingerprint already
// exists are skipped. On any failure the whole batch rolls back, so the next
// run re-reads the same window with nothing half-written.
func (s *PostgresStore) InsertSyncBatch(ctx context.Context, questions []model.Question, answers []model.Answer, watermark time.Time) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: sync batch: begin tx")
	}
	defer tx.Rollback(ctx)

	rows := make([][]any, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, []any{
			q.Fingerprint, q.PageID, q.DeviceType, q.Query, q.SentAt,
			string(model.StatusPending), q.CreatedAt, q.UpdatedAt,
		})
	}

	inserted, err := db.BulkInsertIgnore(ctx, tx, db.InsertIgnoreConfig{
		Table:        "questions",
		Columns:      syncBatchColumns,
		ConflictKeys: []string{"fingerprint"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: sync batch: insert questions")
	}

	now := time.Now().UTC()
	for _, a := range answers {
		id := a.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO answers (id, fingerprint, assistant, text, is_scored, answered_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (fingerprint, assistant) DO UPDATE SET text = $4, answered_at = $6, updated_at = $8`,
			id, a.Fingerprint, string(a.Assistant), a.Text,
			a.IsScored, a.AnsweredAt, now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: sync batch: insert answer %s", a.Fingerprint)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO sync_watermark (id, watermark, updated_at) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET watermark = $1, updated_at = $2`,
		watermark, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: sync batch: advance watermark")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: sync batch: commit tx")
	}
	return int(inserted), nil
}

func (s *PostgresStore) ExistingFingerprints(ctx context.Context, fingerprints []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(fingerprints))
	if len(fingerprints) == 0 {
		return existing, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT fingerprint FROM questions WHERE fingerprint = ANY($1)`,
		fingerprints,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: existing fingerprints")
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fingerprint")
		}
		existing[fp] = true
	}
	return existing, eris.Wrap(rows.Err(), "postgres: existing fingerprints iterate")
}

func (s *PostgresStore) Watermark(ctx context.Context) (*time.Time, error) {
	var wm time.Time
	err := s.pool.QueryRow(ctx, `SELECT watermark FROM sync_watermark WHERE id = 1`).Scan(&wm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get watermark")
	}
	return &wm, nil
}

func (s *PostgresStore) GetQuestion(ctx context.Context, fingerprint string) (*model.Question, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE fingerprint = $1`,
		fingerprint,
	)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get question %s", fingerprint)
	}
	return q, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status model.ProcessingStatus, limit int) ([]model.Question, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE status = $1 AND NOT deleted ORDER BY created_at ASC LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list by status")
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan question")
		}
		questions = append(questions, *q)
	}
	return questions, eris.Wrap(rows.Err(), "postgres: list by status iterate")
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.ProcessingStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM questions WHERE NOT deleted GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	counts := make(map[model.ProcessingStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.ProcessingStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count by status iterate")
}

func (s *PostgresStore) SetClassification(ctx context.Context, fingerprint, label string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET classification = $1, status = $2, updated_at = $3 WHERE fingerprint = $4 AND status = $5 AND NOT deleted`,
		label, string(model.StatusClassified), time.Now().UTC(), fingerprint, string(model.StatusPending),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set classification %s", fingerprint)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("question not eligible for classification: %s", fingerprint)
	}
	return nil
}

func (s *PostgresStore) MarkGenerated(ctx context.Context, fingerprint string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET status = $1, updated_at = $2 WHERE fingerprint = $3 AND status = $4 AND NOT deleted`,
		string(model.StatusGenerated), time.Now().UTC(), fingerprint, string(model.StatusClassified),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark generated %s", fingerprint)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("question not eligible for generation: %s", fingerprint)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, fingerprint, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET status = $1, fail_reason = $2, updated_at = $3 WHERE fingerprint = $4 AND status NOT IN ($5, $6, $7)`,
		string(model.StatusFailed), reason, time.Now().UTC(), fingerprint,
		string(model.StatusCompleted), string(model.StatusFailed), string(model.StatusDeleted),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark failed %s", fingerprint)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("question not eligible for failure: %s", fingerprint)
	}
	return nil
}

// Requeue returns a failed question to the last stage it completed: pending
// without a label, classified without answers, generated otherwise.
func (s *PostgresStore) Requeue(ctx context.Context, fingerprint string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET
		   status = CASE
		     WHEN classification IS NULL THEN $1
		     WHEN NOT EXISTS (SELECT 1 FROM answers a WHERE a.fingerprint = questions.fingerprint) THEN $2
		     ELSE $3
		   END,
		   fail_reason = '', updated_at = $4
		 WHERE fingerprint = $5 AND status = $6`,
		string(model.StatusPending), string(model.StatusClassified), string(model.StatusGenerated),
		time.Now().UTC(), fingerprint, string(model.StatusFailed),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: requeue %s", fingerprint)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("question not failed: %s", fingerprint)
	}
	return nil
}

func (s *PostgresStore) SoftDelete(ctx context.Context, fingerprint string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET deleted = true, status = $1, updated_at = $2 WHERE fingerprint = $3 AND NOT deleted`,
		string(model.StatusDeleted), time.Now().UTC(), fingerprint,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: soft delete %s", fingerprint)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("question not found: %s", fingerprint)
	}
	return nil
}

// Reclassify records the label change in the audit table and applies it to the
// question in one transaction.
func (s *PostgresStore) Reclassify(ctx context.Context, rec model.Reclassification) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: reclassify: begin tx")
	}
	defer tx.Rollback(ctx)

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err = tx.Exec(ctx,
		`INSERT INTO reclassifications (id, fingerprint, old_classification, new_classification, reason, actor, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Fingerprint, rec.OldClassification, rec.NewClassification, rec.Reason, rec.Actor, now,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert reclassification")
	}

	tag, err := tx.Exec(ctx,
		`UPDATE questions SET classification = $1, updated_at = $2 WHERE fingerprint = $3 AND NOT deleted`,
		rec.NewClassification, now, rec.Fingerprint,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: reclassify %s", rec.Fingerprint)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("question not found: %s", rec.Fingerprint)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: reclassify: commit tx")
}

func (s *PostgresStore) InsertAnswer(ctx context.Context, answer *model.Answer) error {
	if answer.ID == "" {
		answer.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = now
	}
	answer.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO answers (id, fingerprint, assistant, text, is_scored, answered_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (fingerprint, assistant) DO UPDATE SET text = $4, answered_at = $6, updated_at = $8`,
		answer.ID, answer.Fingerprint, string(answer.Assistant), answer.Text,
		answer.IsScored, answer.AnsweredAt, answer.CreatedAt, answer.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert answer for %s", answer.Fingerprint)
}

func (s *PostgresStore) AnswersFor(ctx context.Context, fingerprint string) ([]model.Answer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, fingerprint, assistant, text, is_scored, answered_at, created_at, updated_at FROM answers WHERE fingerprint = $1 ORDER BY assistant ASC`,
		fingerprint,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: answers for")
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.Fingerprint, &a.Assistant, &a.Text, &a.IsScored, &a.AnsweredAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan answer")
		}
		answers = append(answers, a)
	}
	return answers, eris.Wrap(rows.Err(), "postgres: answers for iterate")
}

// SaveScores persists the scores, marks their answers scored and completes
// the question in one transaction. Either everything lands or nothing does.
func (s *PostgresStore) SaveScores(ctx context.Context, fingerprint string, scores []model.Score) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: save scores: begin tx")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, sc := range scores {
		if sc.ID == "" {
			sc.ID = uuid.New().String()
		}
		dimsJSON, err := json.Marshal(sc.Dims)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal dims")
		}
		namesJSON, err := json.Marshal(sc.DimNames)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal dim names")
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO scores (id, answer_id, dims, dim_names, average, comment, rated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sc.ID, sc.AnswerID, dimsJSON, namesJSON, sc.Average, sc.Comment, sc.RatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert score for answer %s", sc.AnswerID)
		}

		_, err = tx.Exec(ctx,
			`UPDATE answers SET is_scored = true, updated_at = $1 WHERE id = $2`,
			now, sc.AnswerID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: mark answer scored %s", sc.AnswerID)
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE questions SET status = $1, updated_at = $2 WHERE fingerprint = $3 AND status = $4 AND NOT deleted`,
		string(model.StatusCompleted), now, fingerprint, string(model.StatusGenerated),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete question %s", fingerprint)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("question not eligible for completion: %s", fingerprint)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: save scores: commit tx")
}

func (s *PostgresStore) FlagBadcase(ctx context.Context, fingerprint string, lows []model.LowDimension) error {
	lowsJSON, err := json.Marshal(lows)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal low dimensions")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET is_badcase = true, badcase_at = $1, badcase_review = $2, low_dimensions = $3, updated_at = $1 WHERE fingerprint = $4 AND NOT deleted`,
		time.Now().UTC(), string(model.ReviewPending), lowsJSON, fingerprint,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: flag badcase %s", fingerprint)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("question not found: %s", fingerprint)
	}
	return nil
}

func (s *PostgresStore) SetBadcaseReview(ctx context.Context, fingerprint string, review model.ReviewStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET badcase_review = $1, updated_at = $2 WHERE fingerprint = $3 AND is_badcase`,
		string(review), time.Now().UTC(), fingerprint,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set badcase review %s", fingerprint)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("badcase not found: %s", fingerprint)
	}
	return nil
}

func (s *PostgresStore) ListBadcases(ctx context.Context, filter BadcaseFilter) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE is_badcase AND NOT deleted`
	args := []any{}
	argIdx := 1

	if filter.Review != "" {
		query += fmt.Sprintf(` AND badcase_review = $%d`, argIdx)
		args = append(args, string(filter.Review))
		argIdx++
	}
	query += ` ORDER BY badcase_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list badcases")
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan badcase")
		}
		questions = append(questions, *q)
	}
	return questions, eris.Wrap(rows.Err(), "postgres: list badcases iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanQuestion(row scannable) (*model.Question, error) {
	var q model.Question
	var classification *string
	var badcaseAt *time.Time
	var lowsJSON []byte

	err := row.Scan(
		&q.Fingerprint, &q.PageID, &q.DeviceType, &q.Query, &q.SentAt,
		&classification, &q.Status, &q.FailReason, &q.IsBadcase, &badcaseAt,
		&q.BadcaseReview, &lowsJSON, &q.Deleted, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	q.Classification = classification
	q.BadcaseAt = badcaseAt
	if len(lowsJSON) > 0 {
		if err := json.Unmarshal(lowsJSON, &q.LowDimensions); err != nil {
			return nil, eris.Wrap(err, "unmarshal low dimensions")
		}
	}
	return &q, nil
}

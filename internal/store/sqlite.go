package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/answerlab/qaeval/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for local
// development and offline runs; production uses PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS questions (
	fingerprint    TEXT PRIMARY KEY,
	page_id        TEXT NOT NULL,
	device_type    TEXT NOT NULL DEFAULT '',
	query          TEXT NOT NULL,
	sent_at        DATETIME NOT NULL,
	classification TEXT,
	status         TEXT NOT NULL DEFAULT 'pending',
	fail_reason    TEXT NOT NULL DEFAULT '',
	is_badcase     INTEGER NOT NULL DEFAULT 0,
	badcase_at     DATETIME,
	badcase_review TEXT NOT NULL DEFAULT '',
	low_dimensions TEXT,
	deleted        INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS answers (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL REFERENCES questions(fingerprint),
	assistant   TEXT NOT NULL,
	text        TEXT NOT NULL,
	is_scored   INTEGER NOT NULL DEFAULT 0,
	answered_at DATETIME NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (fingerprint, assistant)
);

CREATE TABLE IF NOT EXISTS scores (
	id        TEXT PRIMARY KEY,
	answer_id TEXT NOT NULL REFERENCES answers(id),
	dims      TEXT NOT NULL,
	dim_names TEXT NOT NULL,
	average   REAL NOT NULL,
	comment   TEXT NOT NULL DEFAULT '',
	rated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reclassifications (
	id                 TEXT PRIMARY KEY,
	fingerprint        TEXT NOT NULL REFERENCES questions(fingerprint),
	old_classification TEXT NOT NULL DEFAULT '',
	new_classification TEXT NOT NULL,
	reason             TEXT NOT NULL DEFAULT '',
	actor              TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sync_watermark (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	watermark  DATETIME NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS config_entries (
	key          TEXT PRIMARY KEY,
	current      TEXT NOT NULL,
	pending      TEXT,
	effective_at DATETIME,
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_questions_status ON questions(status);
CREATE INDEX IF NOT EXISTS idx_questions_badcase ON questions(badcase_at);
CREATE INDEX IF NOT EXISTS idx_answers_fingerprint ON answers(fingerprint);
CREATE INDEX IF NOT EXISTS idx_scores_answer_id ON scores(answer_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertSyncBatch(ctx context.Context, questions []model.Question, answers []model.Answer, watermark time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: sync batch: begin tx")
	}
	defer tx.Rollback()

	inserted := 0
	for _, q := range questions {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO questions (fingerprint, page_id, device_type, query, sent_at, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			q.Fingerprint, q.PageID, q.DeviceType, q.Query, q.SentAt,
			string(model.StatusPending), q.CreatedAt, q.UpdatedAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: sync batch: insert %s", q.Fingerprint)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += int(n)
	}

	now := time.Now().UTC()
	for _, a := range answers {
		id := a.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO answers (id, fingerprint, assistant, text, is_scored, answered_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (fingerprint, assistant) DO UPDATE SET text = excluded.text, answered_at = excluded.answered_at, updated_at = excluded.updated_at`,
			id, a.Fingerprint, string(a.Assistant), a.Text,
			a.IsScored, a.AnsweredAt, now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: sync batch: insert answer %s", a.Fingerprint)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sync_watermark (id, watermark, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET watermark = excluded.watermark, updated_at = excluded.updated_at`,
		watermark, now,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: sync batch: advance watermark")
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: sync batch: commit tx")
	}
	return inserted, nil
}

func (s *SQLiteStore) ExistingFingerprints(ctx context.Context, fingerprints []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(fingerprints))
	if len(fingerprints) == 0 {
		return existing, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fingerprints)), ",")
	args := make([]any, len(fingerprints))
	for i, fp := range fingerprints {
		args[i] = fp
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint FROM questions WHERE fingerprint IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: existing fingerprints")
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fingerprint")
		}
		existing[fp] = true
	}
	return existing, eris.Wrap(rows.Err(), "sqlite: existing fingerprints iterate")
}

func (s *SQLiteStore) Watermark(ctx context.Context) (*time.Time, error) {
	var wm time.Time
	err := s.db.QueryRowContext(ctx, `SELECT watermark FROM sync_watermark WHERE id = 1`).Scan(&wm)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get watermark")
	}
	return &wm, nil
}

const sqliteQuestionColumns = `fingerprint, page_id, device_type, query, sent_at, classification, status, fail_reason, is_badcase, badcase_at, badcase_review, low_dimensions, deleted, created_at, updated_at`

func (s *SQLiteStore) GetQuestion(ctx context.Context, fingerprint string) (*model.Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteQuestionColumns+` FROM questions WHERE fingerprint = ?`,
		fingerprint,
	)
	q, err := scanSQLiteQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get question %s", fingerprint)
	}
	return q, nil
}

func (s *SQLiteStore) ListByStatus(ctx context.Context, status model.ProcessingStatus, limit int) ([]model.Question, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteQuestionColumns+` FROM questions WHERE status = ? AND deleted = 0 ORDER BY created_at ASC LIMIT ?`,
		string(status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list by status")
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanSQLiteQuestion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan question")
		}
		questions = append(questions, *q)
	}
	return questions, eris.Wrap(rows.Err(), "sqlite: list by status iterate")
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.ProcessingStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM questions WHERE deleted = 0 GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close()

	counts := make(map[model.ProcessingStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[model.ProcessingStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count by status iterate")
}

func (s *SQLiteStore) SetClassification(ctx context.Context, fingerprint, label string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET classification = ?, status = ?, updated_at = ? WHERE fingerprint = ? AND status = ? AND deleted = 0`,
		label, string(model.StatusClassified), time.Now().UTC(), fingerprint, string(model.StatusPending),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set classification %s", fingerprint)
	}
	return checkRowsAffected(res, "eligible question", fingerprint)
}

func (s *SQLiteStore) MarkGenerated(ctx context.Context, fingerprint string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET status = ?, updated_at = ? WHERE fingerprint = ? AND status = ? AND deleted = 0`,
		string(model.StatusGenerated), time.Now().UTC(), fingerprint, string(model.StatusClassified),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark generated %s", fingerprint)
	}
	return checkRowsAffected(res, "eligible question", fingerprint)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, fingerprint, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET status = ?, fail_reason = ?, updated_at = ? WHERE fingerprint = ? AND status NOT IN (?, ?, ?)`,
		string(model.StatusFailed), reason, time.Now().UTC(), fingerprint,
		string(model.StatusCompleted), string(model.StatusFailed), string(model.StatusDeleted),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark failed %s", fingerprint)
	}
	return checkRowsAffected(res, "eligible question", fingerprint)
}

func (s *SQLiteStore) Requeue(ctx context.Context, fingerprint string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET
		   status = CASE
		     WHEN classification IS NULL THEN ?
		     WHEN NOT EXISTS (SELECT 1 FROM answers a WHERE a.fingerprint = questions.fingerprint) THEN ?
		     ELSE ?
		   END,
		   fail_reason = '', updated_at = ?
		 WHERE fingerprint = ? AND status = ?`,
		string(model.StatusPending), string(model.StatusClassified), string(model.StatusGenerated),
		time.Now().UTC(), fingerprint, string(model.StatusFailed),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: requeue %s", fingerprint)
	}
	return checkRowsAffected(res, "failed question", fingerprint)
}

func (s *SQLiteStore) SoftDelete(ctx context.Context, fingerprint string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET deleted = 1, status = ?, updated_at = ? WHERE fingerprint = ? AND deleted = 0`,
		string(model.StatusDeleted), time.Now().UTC(), fingerprint,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: soft delete %s", fingerprint)
	}
	return checkRowsAffected(res, "question", fingerprint)
}

func (s *SQLiteStore) Reclassify(ctx context.Context, rec model.Reclassification) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: reclassify: begin tx")
	}
	defer tx.Rollback()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reclassifications (id, fingerprint, old_classification, new_classification, reason, actor, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Fingerprint, rec.OldClassification, rec.NewClassification, rec.Reason, rec.Actor, now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert reclassification")
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE questions SET classification = ?, updated_at = ? WHERE fingerprint = ? AND deleted = 0`,
		rec.NewClassification, now, rec.Fingerprint,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reclassify %s", rec.Fingerprint)
	}
	if err := checkRowsAffected(res, "question", rec.Fingerprint); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "sqlite: reclassify: commit tx")
}

func (s *SQLiteStore) InsertAnswer(ctx context.Context, answer *model.Answer) error {
	if answer.ID == "" {
		answer.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = now
	}
	answer.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO answers (id, fingerprint, assistant, text, is_scored, answered_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (fingerprint, assistant) DO UPDATE SET text = excluded.text, answered_at = excluded.answered_at, updated_at = excluded.updated_at`,
		answer.ID, answer.Fingerprint, string(answer.Assistant), answer.Text,
		answer.IsScored, answer.AnsweredAt, answer.CreatedAt, answer.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert answer for %s", answer.Fingerprint)
}

func (s *SQLiteStore) AnswersFor(ctx context.Context, fingerprint string) ([]model.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fingerprint, assistant, text, is_scored, answered_at, created_at, updated_at FROM answers WHERE fingerprint = ? ORDER BY assistant ASC`,
		fingerprint,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: answers for")
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.Fingerprint, &a.Assistant, &a.Text, &a.IsScored, &a.AnsweredAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan answer")
		}
		answers = append(answers, a)
	}
	return answers, eris.Wrap(rows.Err(), "sqlite: answers for iterate")
}

func (s *SQLiteStore) SaveScores(ctx context.Context, fingerprint string, scores []model.Score) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: save scores: begin tx")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, sc := range scores {
		if sc.ID == "" {
			sc.ID = uuid.New().String()
		}
		dimsJSON, err := json.Marshal(sc.Dims)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal dims")
		}
		namesJSON, err := json.Marshal(sc.DimNames)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal dim names")
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO scores (id, answer_id, dims, dim_names, average, comment, rated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sc.ID, sc.AnswerID, string(dimsJSON), string(namesJSON), sc.Average, sc.Comment, sc.RatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert score for answer %s", sc.AnswerID)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE answers SET is_scored = 1, updated_at = ? WHERE id = ?`,
			now, sc.AnswerID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: mark answer scored %s", sc.AnswerID)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE questions SET status = ?, updated_at = ? WHERE fingerprint = ? AND status = ? AND deleted = 0`,
		string(model.StatusCompleted), now, fingerprint, string(model.StatusGenerated),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete question %s", fingerprint)
	}
	if err := checkRowsAffected(res, "eligible question", fingerprint); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "sqlite: save scores: commit tx")
}

func (s *SQLiteStore) FlagBadcase(ctx context.Context, fingerprint string, lows []model.LowDimension) error {
	lowsJSON, err := json.Marshal(lows)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal low dimensions")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET is_badcase = 1, badcase_at = ?, badcase_review = ?, low_dimensions = ?, updated_at = ? WHERE fingerprint = ? AND deleted = 0`,
		now, string(model.ReviewPending), string(lowsJSON), now, fingerprint,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: flag badcase %s", fingerprint)
	}
	return checkRowsAffected(res, "question", fingerprint)
}

func (s *SQLiteStore) SetBadcaseReview(ctx context.Context, fingerprint string, review model.ReviewStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET badcase_review = ?, updated_at = ? WHERE fingerprint = ? AND is_badcase = 1`,
		string(review), time.Now().UTC(), fingerprint,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set badcase review %s", fingerprint)
	}
	return checkRowsAffected(res, "badcase", fingerprint)
}

func (s *SQLiteStore) ListBadcases(ctx context.Context, filter BadcaseFilter) ([]model.Question, error) {
	query := `SELECT ` + sqliteQuestionColumns + ` FROM questions WHERE is_badcase = 1 AND deleted = 0`
	var args []any

	if filter.Review != "" {
		query += ` AND badcase_review = ?`
		args = append(args, string(filter.Review))
	}
	query += ` ORDER BY badcase_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list badcases")
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanSQLiteQuestion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan badcase")
		}
		questions = append(questions, *q)
	}
	return questions, eris.Wrap(rows.Err(), "sqlite: list badcases iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func scanSQLiteQuestion(row scannable) (*model.Question, error) {
	var q model.Question
	var classification sql.NullString
	var badcaseAt sql.NullTime
	var lowsJSON sql.NullString

	err := row.Scan(
		&q.Fingerprint, &q.PageID, &q.DeviceType, &q.Query, &q.SentAt,
		&classification, &q.Status, &q.FailReason, &q.IsBadcase, &badcaseAt,
		&q.BadcaseReview, &lowsJSON, &q.Deleted, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if classification.Valid {
		q.Classification = &classification.String
	}
	if badcaseAt.Valid {
		t := badcaseAt.Time
		q.BadcaseAt = &t
	}
	if lowsJSON.Valid && lowsJSON.String != "" {
		if err := json.Unmarshal([]byte(lowsJSON.String), &q.LowDimensions); err != nil {
			return nil, eris.Wrap(err, "unmarshal low dimensions")
		}
	}
	return &q, nil
}

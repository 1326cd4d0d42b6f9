package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quintile/maturity/internal/api"
	"github.com/quintile/maturity/internal/services"
)

// SQLiteStore persists the full assessment state in a single sqlite file.
// The admission guard and the completion transition are expressed as
// conditional writes, so the store gives the same serialization guarantees
// the in-memory store gives under its mutex.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Open opens (or creates) the sqlite file at path, applies migrations from
// migrationsDir (embedded fallback) and returns the store.
func Open(path, migrationsDir string) (api.Store, error) {
	handle, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := RunMigrations(handle, migrationsDir); err != nil {
		_ = handle.Close()
		return nil, err
	}
	return NewSQLiteStore(handle)
}

func (s *SQLiteStore) logErr(prefix string, err error) {
	if err != nil {
		log.Printf("sqlite store: %s: %v", prefix, err)
	}
}

func encodeIDs(ids []string) string {
	b, err := json.Marshal(ids)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeIDs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Printf("sqlite store: decode id list: %v", err)
		return nil
	}
	return out
}

func toNullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func fromNullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

// --- catalog ---

func (s *SQLiteStore) AddQuestion(q *services.Question, opts []*services.AnswerOption) {
	tx, err := s.db.Begin()
	if err != nil {
		s.logErr("add question", err)
		return
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT INTO questions (id, subdomain_id, priority, display_order)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET subdomain_id=excluded.subdomain_id,
			priority=excluded.priority, display_order=excluded.display_order`,
		q.ID, q.SubdomainID, q.Priority, q.DisplayOrder)
	if err != nil {
		s.logErr("add question", err)
		return
	}
	if _, err := tx.Exec(`DELETE FROM answer_options WHERE question_id = ?`, q.ID); err != nil {
		s.logErr("add question options", err)
		return
	}
	for _, opt := range opts {
		_, err := tx.Exec(`INSERT INTO answer_options (question_id, option_key, score, tier_hint)
			VALUES (?, ?, ?, ?)`, q.ID, opt.Key, opt.Score, opt.TierHint)
		if err != nil {
			s.logErr("add answer option", err)
			return
		}
	}
	s.logErr("add question commit", tx.Commit())
}

func (s *SQLiteStore) ListQuestions() ([]*services.Question, error) {
	rows, err := s.db.Query(`SELECT id, subdomain_id, priority, display_order
		FROM questions ORDER BY display_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()
	var out []*services.Question
	for rows.Next() {
		q := &services.Question{}
		if err := rows.Scan(&q.ID, &q.SubdomainID, &q.Priority, &q.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetQuestion(id string) (*services.Question, error) {
	q := &services.Question{}
	err := s.db.QueryRow(`SELECT id, subdomain_id, priority, display_order
		FROM questions WHERE id = ?`, id).
		Scan(&q.ID, &q.SubdomainID, &q.Priority, &q.DisplayOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get question %s: %w", id, err)
	}
	return q, nil
}

func (s *SQLiteStore) ListOptions(questionID string) ([]*services.AnswerOption, error) {
	rows, err := s.db.Query(`SELECT question_id, option_key, score, COALESCE(tier_hint, '')
		FROM answer_options WHERE question_id = ? ORDER BY option_key`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer rows.Close()
	var out []*services.AnswerOption
	for rows.Next() {
		o := &services.AnswerOption{}
		if err := rows.Scan(&o.QuestionID, &o.Key, &o.Score, &o.TierHint); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// --- access codes & sessions ---

func (s *SQLiteStore) InsertAccessCode(c *services.AccessCode) error {
	_, err := s.db.Exec(`INSERT INTO access_codes
		(code, organization, kind, question_ids, max_uses, usage_count, expires_at, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Code, c.Organization, string(c.Kind), encodeIDs(c.QuestionIDs),
		toNullInt(c.MaxUses), c.UsageCount, c.ExpiresAt.UTC(), boolToInt64(c.Active), c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert access code: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAccessCode(code string) (*services.AccessCode, error) {
	c := &services.AccessCode{}
	var kind, questionIDs string
	var maxUses sql.NullInt64
	var active int64
	err := s.db.QueryRow(`SELECT code, organization, kind, question_ids, max_uses,
			usage_count, expires_at, active, created_at
		FROM access_codes WHERE code = ?`, code).
		Scan(&c.Code, &c.Organization, &kind, &questionIDs, &maxUses,
			&c.UsageCount, &c.ExpiresAt, &active, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get access code: %w", err)
	}
	c.Kind = services.AssessmentKind(kind)
	c.QuestionIDs = decodeIDs(questionIDs)
	c.MaxUses = fromNullInt(maxUses)
	c.Active = active != 0
	return c, nil
}

// ConsumeCodeUse bumps usage_count only while the guard holds. The guard and
// the bump are one UPDATE, so concurrent admissions cannot push the counter
// past max_uses.
func (s *SQLiteStore) ConsumeCodeUse(code string, now time.Time) (*services.AccessCode, error) {
	res, err := s.db.Exec(`UPDATE access_codes
		SET usage_count = usage_count + 1
		WHERE code = ? AND active = 1 AND expires_at > ?
		  AND (max_uses IS NULL OR usage_count < max_uses)`, code, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("consume code use: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("consume code use: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetAccessCode(code)
}

func (s *SQLiteStore) AddSession(sess *services.Session) error {
	_, err := s.db.Exec(`INSERT INTO sessions
		(id, code, respondent, role, locale, status, question_ids, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		sess.ID, sess.Code, sess.Respondent, sess.Role, sess.Locale,
		string(sess.Status), encodeIDs(sess.QuestionIDs), sess.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(id string) (*services.Session, error) {
	sess := &services.Session{}
	var status, questionIDs string
	var completedAt sql.NullTime
	err := s.db.QueryRow(`SELECT id, code, respondent, COALESCE(role, ''), COALESCE(locale, ''),
			status, question_ids, started_at, completed_at
		FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Code, &sess.Respondent, &sess.Role, &sess.Locale,
			&status, &questionIDs, &sess.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.Status = services.SessionStatus(status)
	sess.QuestionIDs = decodeIDs(questionIDs)
	if completedAt.Valid {
		at := completedAt.Time
		sess.CompletedAt = &at
	}
	return sess, nil
}

// --- responses & scores ---

func (s *SQLiteStore) UpsertResponse(r *services.Response) error {
	_, err := s.db.Exec(`INSERT INTO responses
		(session_id, question_id, subdomain_id, option_key, score, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, question_id) DO UPDATE SET
			subdomain_id=excluded.subdomain_id, option_key=excluded.option_key,
			score=excluded.score, submitted_at=excluded.submitted_at`,
		r.SessionID, r.QuestionID, r.SubdomainID, r.OptionKey, r.Score, r.SubmittedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert response: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListResponses(sessionID string) ([]*services.Response, error) {
	rows, err := s.db.Query(`SELECT session_id, question_id, subdomain_id, option_key, score, submitted_at
		FROM responses WHERE session_id = ? ORDER BY question_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()
	var out []*services.Response
	for rows.Next() {
		r := &services.Response{}
		if err := rows.Scan(&r.SessionID, &r.QuestionID, &r.SubdomainID, &r.OptionKey, &r.Score, &r.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CompleteSession transitions in_progress -> completed and writes the score
// rows in one transaction. The conditional UPDATE decides the winner when
// completions race; losers report false and leave the winner's rows intact.
func (s *SQLiteStore) CompleteSession(id string, completedAt time.Time, scores []*services.SubdomainScore) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("complete session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`UPDATE sessions SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(services.SessionCompleted), completedAt.UTC(), id, string(services.SessionInProgress))
	if err != nil {
		return false, fmt.Errorf("complete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete session: %w", err)
	}
	if n == 0 {
		var status string
		err := tx.QueryRow(`SELECT status FROM sessions WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return false, services.ErrSessionNotFound
		}
		if err != nil {
			return false, fmt.Errorf("complete session: %w", err)
		}
		return false, nil
	}
	for _, row := range scores {
		_, err := tx.Exec(`INSERT INTO session_scores
			(session_id, subdomain_id, raw_score, percentage, maturity_tier, questions_answered, questions_available)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			row.SessionID, row.SubdomainID, row.Raw, row.Percent, string(row.Tier),
			row.QuestionsAnswered, row.QuestionsAvailable)
		if err != nil {
			return false, fmt.Errorf("insert session score: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("complete session: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) ListSessionScores(sessionID string) ([]*services.SubdomainScore, error) {
	rows, err := s.db.Query(`SELECT session_id, subdomain_id, raw_score, percentage, maturity_tier,
			questions_answered, questions_available
		FROM session_scores WHERE session_id = ? ORDER BY subdomain_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session scores: %w", err)
	}
	defer rows.Close()
	return scanScoreRows(rows)
}

func (s *SQLiteStore) ListCompletedSessionScores(organization string, codes []string) ([][]*services.SubdomainScore, error) {
	query := `SELECT s.id FROM sessions s
		JOIN access_codes c ON c.code = s.code
		WHERE s.status = ?`
	args := []any{string(services.SessionCompleted)}
	var clauses []string
	if len(codes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(codes)), ",")
		clauses = append(clauses, "s.code IN ("+placeholders+")")
		for _, code := range codes {
			args = append(args, code)
		}
	}
	if organization != "" {
		clauses = append(clauses, "c.organization = ?")
		args = append(args, organization)
	}
	if len(clauses) > 0 {
		query += " AND (" + strings.Join(clauses, " OR ") + ")"
	}
	query += " ORDER BY s.id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completed sessions: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out [][]*services.SubdomainScore
	for _, id := range ids {
		scores, err := s.ListSessionScores(id)
		if err != nil {
			return nil, err
		}
		if len(scores) > 0 {
			out = append(out, scores)
		}
	}
	return out, nil
}

func scanScoreRows(rows *sql.Rows) ([]*services.SubdomainScore, error) {
	var out []*services.SubdomainScore
	for rows.Next() {
		row := &services.SubdomainScore{}
		var tier string
		if err := rows.Scan(&row.SessionID, &row.SubdomainID, &row.Raw, &row.Percent, &tier,
			&row.QuestionsAnswered, &row.QuestionsAvailable); err != nil {
			return nil, fmt.Errorf("scan session score: %w", err)
		}
		row.Tier = services.Tier(tier)
		out = append(out, row)
	}
	return out, rows.Err()
}

// --- admin accounts & audit ---

func (s *SQLiteStore) AddUser(u *services.User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, email, pass_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, strings.ToLower(u.Email), u.PassHash, u.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindUserByEmail(email string) (*services.User, error) {
	u := &services.User{}
	err := s.db.QueryRow(`SELECT id, email, pass_hash, created_at FROM users WHERE email = ?`,
		strings.ToLower(email)).
		Scan(&u.ID, &u.Email, &u.PassHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) AddAudit(e services.AuditEntry) {
	_, err := s.db.Exec(`INSERT INTO audit_log (at, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
		e.Time.UTC(), e.Actor, e.Action, e.Target, e.Note)
	s.logErr("add audit", err)
}

func (s *SQLiteStore) ListAudit() []services.AuditEntry {
	rows, err := s.db.Query(`SELECT at, actor, action, target, COALESCE(note, '')
		FROM audit_log ORDER BY seq`)
	if err != nil {
		s.logErr("list audit", err)
		return nil
	}
	defer rows.Close()
	var out []services.AuditEntry
	for rows.Next() {
		var e services.AuditEntry
		if err := rows.Scan(&e.Time, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			s.logErr("scan audit", err)
			return out
		}
		out = append(out, e)
	}
	return out
}

var _ api.Store = (*SQLiteStore)(nil)

package services

import "time"

// AssessmentKind selects which slice of the question catalog an access code
// covers: the full question bank or the abbreviated quick variant.
type AssessmentKind string

const (
	KindQuick AssessmentKind = "quick"
	KindFull  AssessmentKind = "full"
)

// Question is one catalog entry. The catalog is read-mostly; a question is
// treated as immutable once any session references it.
type Question struct {
	ID           string `json:"id"`
	SubdomainID  string `json:"subdomain_id"`
	Priority     int    `json:"priority"` // 1 = part of the quick assessment
	DisplayOrder int    `json:"display_order"`
}

// AnswerOption belongs to exactly one question. Keys are unique within a
// question. Score is 0..5; low values may be "not sure" sentinels rather
// than true maturity.
type AnswerOption struct {
	QuestionID string `json:"question_id"`
	Key        string `json:"key"`
	Score      int    `json:"score"`
	TierHint   string `json:"tier_hint,omitempty"`
}

// AccessCode gates assessment attempts for one organization. QuestionIDs is
// the question-list snapshot captured at creation time; it is never
// re-derived from the catalog, so past assessments stay reproducible.
type AccessCode struct {
	Code         string         `json:"code"`
	Organization string         `json:"organization"`
	Kind         AssessmentKind `json:"kind"`
	QuestionIDs  []string       `json:"question_ids"`
	MaxUses      *int           `json:"max_uses,omitempty"` // nil = unlimited
	UsageCount   int            `json:"usage_count"`
	ExpiresAt    time.Time      `json:"expires_at"`
	Active       bool           `json:"active"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Remaining reports how many admissions the code still permits, or -1 for
// unlimited codes.
func (c *AccessCode) Remaining() int {
	if c.MaxUses == nil {
		return -1
	}
	left := *c.MaxUses - c.UsageCount
	if left < 0 {
		left = 0
	}
	return left
}

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

// Session is one assessment attempt admitted through an access code.
// QuestionIDs is copied from the code snapshot at admission; responses
// outside that list are rejected.
type Session struct {
	ID          string        `json:"id"`
	Code        string        `json:"code"`
	Respondent  string        `json:"respondent"`
	Role        string        `json:"role,omitempty"`
	Locale      string        `json:"locale,omitempty"`
	Status      SessionStatus `json:"status"`
	QuestionIDs []string      `json:"question_ids"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Response is the single recorded answer for one (session, question) pair.
// A later answer to the same question overwrites the earlier one.
type Response struct {
	SessionID   string    `json:"session_id"`
	QuestionID  string    `json:"question_id"`
	SubdomainID string    `json:"subdomain_id"`
	OptionKey   string    `json:"option_key"`
	Score       int       `json:"score"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// SubdomainScore is one materialized score row of a completed session.
// SubdomainID == "" marks the session-overall row. Rows are immutable
// historical facts; changed responses require recomputation, not patching.
type SubdomainScore struct {
	SessionID          string  `json:"session_id"`
	SubdomainID        string  `json:"subdomain_id,omitempty"`
	Raw                float64 `json:"raw_score"`
	Percent            float64 `json:"percentage"`
	Tier               Tier    `json:"maturity_tier"`
	QuestionsAnswered  int     `json:"questions_answered"`
	QuestionsAvailable int     `json:"questions_available"`
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}

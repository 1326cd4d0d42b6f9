package api

import (
	"time"

	"github.com/quintile/maturity/internal/services"
)

// Store is the persistence surface the router wires the engine services to.
// Both the in-memory store and the sqlite store implement it. A Store also
// satisfies the engine's narrower interfaces (Catalog, CodeStore,
// AssessmentStore, AggregationStore, AuthStore) by construction.
type Store interface {
	// Question catalog: read-mostly, seeded by the surrounding application.
	AddQuestion(q *services.Question, opts []*services.AnswerOption)
	ListQuestions() ([]*services.Question, error)
	GetQuestion(id string) (*services.Question, error)
	ListOptions(questionID string) ([]*services.AnswerOption, error)

	// Access codes and sessions.
	InsertAccessCode(c *services.AccessCode) error
	GetAccessCode(code string) (*services.AccessCode, error)
	ConsumeCodeUse(code string, now time.Time) (*services.AccessCode, error)
	AddSession(sess *services.Session) error
	GetSession(id string) (*services.Session, error)

	// Responses and materialized scores.
	UpsertResponse(r *services.Response) error
	ListResponses(sessionID string) ([]*services.Response, error)
	CompleteSession(id string, completedAt time.Time, scores []*services.SubdomainScore) (bool, error)
	ListSessionScores(sessionID string) ([]*services.SubdomainScore, error)
	ListCompletedSessionScores(organization string, codes []string) ([][]*services.SubdomainScore, error)

	// Admin accounts and audit log.
	AddUser(u *services.User) error
	FindUserByEmail(email string) (*services.User, error)
	AddAudit(e services.AuditEntry)
	ListAudit() []services.AuditEntry
}

var _ Store = (*memoryStore)(nil)

var (
	_ services.Catalog          = Store(nil)
	_ services.CodeStore        = Store(nil)
	_ services.AssessmentStore  = Store(nil)
	_ services.AggregationStore = Store(nil)
	_ services.AuthStore        = Store(nil)
)

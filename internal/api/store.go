package api

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quintile/maturity/internal/services"
)

// memoryStore keeps the whole assessment state in process memory. It is the
// default store for tests and single-node deployments without a database
// file. All mutation of an access code's usage counter happens inside one
// lock acquisition, which is the serialization the admission path relies on.
type memoryStore struct {
	mu        sync.RWMutex
	questions []*services.Question
	options   map[string][]*services.AnswerOption
	codes     map[string]*services.AccessCode
	sessions  map[string]*services.Session
	responses map[string]map[string]*services.Response
	scores    map[string][]*services.SubdomainScore
	users     map[string]*services.User
	audit     []services.AuditEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		options:   map[string][]*services.AnswerOption{},
		codes:     map[string]*services.AccessCode{},
		sessions:  map[string]*services.Session{},
		responses: map[string]map[string]*services.Response{},
		scores:    map[string][]*services.SubdomainScore{},
		users:     map[string]*services.User{},
	}
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() Store { return newMemoryStore() }

func copyCode(c *services.AccessCode) *services.AccessCode {
	if c == nil {
		return nil
	}
	out := *c
	out.QuestionIDs = append([]string(nil), c.QuestionIDs...)
	if c.MaxUses != nil {
		v := *c.MaxUses
		out.MaxUses = &v
	}
	return &out
}

func copySession(s *services.Session) *services.Session {
	if s == nil {
		return nil
	}
	out := *s
	out.QuestionIDs = append([]string(nil), s.QuestionIDs...)
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}

func copyScores(rows []*services.SubdomainScore) []*services.SubdomainScore {
	out := make([]*services.SubdomainScore, 0, len(rows))
	for _, row := range rows {
		copy := *row
		out = append(out, &copy)
	}
	return out
}

// --- catalog ---

func (s *memoryStore) AddQuestion(q *services.Question, opts []*services.AnswerOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *q
	s.questions = append(s.questions, &copy)
	stored := make([]*services.AnswerOption, 0, len(opts))
	for _, opt := range opts {
		o := *opt
		o.QuestionID = q.ID
		stored = append(stored, &o)
	}
	s.options[q.ID] = stored
}

func (s *memoryStore) ListQuestions() ([]*services.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*services.Question, 0, len(s.questions))
	for _, q := range s.questions {
		copy := *q
		out = append(out, &copy)
	}
	return out, nil
}

func (s *memoryStore) GetQuestion(id string) (*services.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.questions {
		if q.ID == id {
			copy := *q
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) ListOptions(questionID string) ([]*services.AnswerOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opts := s.options[questionID]
	out := make([]*services.AnswerOption, 0, len(opts))
	for _, opt := range opts {
		copy := *opt
		out = append(out, &copy)
	}
	return out, nil
}

// --- access codes & sessions ---

func (s *memoryStore) InsertAccessCode(c *services.AccessCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[c.Code] = copyCode(c)
	return nil
}

func (s *memoryStore) GetAccessCode(code string) (*services.AccessCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyCode(s.codes[code]), nil
}

// ConsumeCodeUse is the conditional increment behind admission: the guard
// and the bump happen under one lock, so usage_count can never pass max_uses
// however many admissions race.
func (s *memoryStore) ConsumeCodeUse(code string, now time.Time) (*services.AccessCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok || !c.Active || !now.Before(c.ExpiresAt) {
		return nil, nil
	}
	if c.MaxUses != nil && c.UsageCount >= *c.MaxUses {
		return nil, nil
	}
	c.UsageCount++
	return copyCode(c), nil
}

func (s *memoryStore) AddSession(sess *services.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = copySession(sess)
	return nil
}

func (s *memoryStore) GetSession(id string) (*services.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.sessions[id]), nil
}

// --- responses & scores ---

func (s *memoryStore) UpsertResponse(r *services.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.responses[r.SessionID] == nil {
		s.responses[r.SessionID] = map[string]*services.Response{}
	}
	copy := *r
	s.responses[r.SessionID][r.QuestionID] = &copy
	return nil
}

func (s *memoryStore) ListResponses(sessionID string) ([]*services.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byQuestion := s.responses[sessionID]
	ids := make([]string, 0, len(byQuestion))
	for qid := range byQuestion {
		ids = append(ids, qid)
	}
	sort.Strings(ids)
	out := make([]*services.Response, 0, len(ids))
	for _, qid := range ids {
		copy := *byQuestion[qid]
		out = append(out, &copy)
	}
	return out, nil
}

// CompleteSession transitions in_progress -> completed and persists the
// score rows in the same critical section; the bool reports whether this
// caller won the transition.
func (s *memoryStore) CompleteSession(id string, completedAt time.Time, scores []*services.SubdomainScore) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false, services.ErrSessionNotFound
	}
	if sess.Status == services.SessionCompleted {
		return false, nil
	}
	sess.Status = services.SessionCompleted
	at := completedAt
	sess.CompletedAt = &at
	s.scores[id] = copyScores(scores)
	return true, nil
}

func (s *memoryStore) ListSessionScores(sessionID string) ([]*services.SubdomainScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyScores(s.scores[sessionID]), nil
}

func (s *memoryStore) ListCompletedSessionScores(organization string, codes []string) ([][]*services.SubdomainScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := map[string]bool{}
	for _, c := range codes {
		wanted[c] = true
	}
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out [][]*services.SubdomainScore
	for _, id := range ids {
		sess := s.sessions[id]
		if sess.Status != services.SessionCompleted {
			continue
		}
		match := wanted[sess.Code]
		if !match && organization != "" {
			if code, ok := s.codes[sess.Code]; ok && code.Organization == organization {
				match = true
			}
		}
		if !match {
			continue
		}
		if rows := s.scores[id]; len(rows) > 0 {
			out = append(out, copyScores(rows))
		}
	}
	return out, nil
}

// --- admin accounts & audit ---

func (s *memoryStore) AddUser(u *services.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *u
	s.users[strings.ToLower(u.Email)] = &copy
	return nil
}

func (s *memoryStore) FindUserByEmail(email string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	copy := *u
	return &copy, nil
}

func (s *memoryStore) AddAudit(e services.AuditEntry) {
	s.mu.Lock()
	s.audit = append(s.audit, e)
	s.mu.Unlock()
}

func (s *memoryStore) ListAudit() []services.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]services.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

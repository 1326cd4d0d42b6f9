package services

import (
	"sort"
	"time"
)

// AssessmentStore abstracts persistence for response recording and session
// completion. CompleteSession must atomically transition the session from
// in_progress to completed, persisting the score rows with it; it returns
// false when the session was already completed, in which case the stored
// rows are authoritative.
type AssessmentStore interface {
	GetSession(id string) (*Session, error)
	UpsertResponse(r *Response) error
	ListResponses(sessionID string) ([]*Response, error)
	CompleteSession(id string, completedAt time.Time, scores []*SubdomainScore) (bool, error)
	ListSessionScores(sessionID string) ([]*SubdomainScore, error)
	AddAudit(entry AuditEntry)
}

// AssessmentService records responses and computes per-subdomain and overall
// maturity scores when a session completes.
type AssessmentService struct {
	store   AssessmentStore
	catalog Catalog
	now     func() time.Time
}

func NewAssessmentService(store AssessmentStore, catalog Catalog) *AssessmentService {
	return &AssessmentService{
		store:   store,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordResponse upserts the answer for one (session, question) pair. The
// question must be a member of the session's frozen question list; answers
// against questions the catalog grew since the code was created are
// rejected, which keeps completed scoring reproducible.
func (s *AssessmentService) RecordResponse(sessionID, questionID, optionKey string) (*Response, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.Status == SessionCompleted {
		return nil, ErrSessionCompleted
	}
	if !containsID(sess.QuestionIDs, questionID) {
		return nil, ErrQuestionNotInList
	}
	q, err := s.catalog.GetQuestion(questionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, NewNotFoundError("question not found")
	}
	opt, err := s.findOption(questionID, optionKey)
	if err != nil {
		return nil, err
	}
	r := &Response{
		SessionID:   sessionID,
		QuestionID:  questionID,
		SubdomainID: q.SubdomainID,
		OptionKey:   opt.Key,
		Score:       opt.Score,
		SubmittedAt: s.now(),
	}
	if err := s.store.UpsertResponse(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *AssessmentService) findOption(questionID, optionKey string) (*AnswerOption, error) {
	if optionKey == "" {
		return nil, NewInvalidError("option key required")
	}
	opts, err := s.catalog.ListOptions(questionID)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if opt != nil && opt.Key == optionKey {
			return opt, nil
		}
	}
	return nil, NewInvalidError("unknown option key " + optionKey)
}

// SessionResult groups the materialized score rows of a completed session.
// Overall is the subdomain-equal-weighted mean row; Subdomains is sorted by
// subdomain id.
type SessionResult struct {
	SessionID   string            `json:"session_id"`
	CompletedAt time.Time         `json:"completed_at"`
	Overall     *SubdomainScore   `json:"overall"`
	Subdomains  []*SubdomainScore `json:"subdomains"`
}

// Complete seals the session and computes its scores. Calling it again on a
// completed session is not an error: the previously persisted rows are
// returned untouched, never recomputed. Under a concurrent double call the
// store's conditional transition picks one winner; the loser reads back the
// winner's rows.
func (s *AssessmentService) Complete(sessionID string) (*SessionResult, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.Status == SessionCompleted {
		return s.storedResult(sess)
	}
	responses, err := s.store.ListResponses(sessionID)
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		return nil, NewConflictError("session has no responses to score")
	}
	now := s.now()
	scores, err := s.scoreSession(sess, responses, now)
	if err != nil {
		return nil, err
	}
	won, err := s.store.CompleteSession(sessionID, now, scores)
	if err != nil {
		return nil, err
	}
	if !won {
		// A concurrent Complete got there first; its rows stand.
		sess, err = s.store.GetSession(sessionID)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			return nil, ErrSessionNotFound
		}
		return s.storedResult(sess)
	}
	s.store.AddAudit(AuditEntry{Time: now, Actor: sess.Respondent, Action: "complete_session", Target: sessionID})
	return buildResult(sessionID, now, scores), nil
}

// Results returns the materialized rows of a completed session.
func (s *AssessmentService) Results(sessionID string) (*SessionResult, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.Status != SessionCompleted {
		return nil, NewConflictError("session not completed")
	}
	return s.storedResult(sess)
}

func (s *AssessmentService) storedResult(sess *Session) (*SessionResult, error) {
	rows, err := s.store.ListSessionScores(sess.ID)
	if err != nil {
		return nil, err
	}
	completedAt := time.Time{}
	if sess.CompletedAt != nil {
		completedAt = *sess.CompletedAt
	}
	return buildResult(sess.ID, completedAt, rows), nil
}

// scoreSession groups responses by subdomain and produces one row per
// subdomain that was answered, plus the overall row. Subdomains in the
// question list with zero answers produce no row and do not drag the
// overall average toward zero. The overall raw score weighs every answered
// subdomain equally regardless of its question count.
func (s *AssessmentService) scoreSession(sess *Session, responses []*Response, now time.Time) ([]*SubdomainScore, error) {
	available := map[string]int{}
	for _, id := range sess.QuestionIDs {
		q, err := s.catalog.GetQuestion(id)
		if err != nil {
			return nil, err
		}
		if q != nil {
			available[q.SubdomainID]++
		}
	}

	sums := map[string]int{}
	counts := map[string]int{}
	for _, r := range responses {
		sums[r.SubdomainID] += r.Score
		counts[r.SubdomainID]++
	}

	subdomains := make([]string, 0, len(counts))
	for id := range counts {
		subdomains = append(subdomains, id)
	}
	sort.Strings(subdomains)

	rows := make([]*SubdomainScore, 0, len(subdomains)+1)
	var overallSum float64
	totalAnswered, totalAvailable := 0, 0
	for _, id := range subdomains {
		raw := float64(sums[id]) / float64(counts[id])
		rows = append(rows, &SubdomainScore{
			SessionID:          sess.ID,
			SubdomainID:        id,
			Raw:                raw,
			Percent:            raw / 5.0 * 100,
			Tier:               Classify(raw),
			QuestionsAnswered:  counts[id],
			QuestionsAvailable: available[id],
		})
		overallSum += raw
		totalAnswered += counts[id]
		totalAvailable += available[id]
	}
	overall := overallSum / float64(len(subdomains))
	rows = append(rows, &SubdomainScore{
		SessionID:          sess.ID,
		Raw:                overall,
		Percent:            overall / 5.0 * 100,
		Tier:               Classify(overall),
		QuestionsAnswered:  totalAnswered,
		QuestionsAvailable: totalAvailable,
	})
	return rows, nil
}

func buildResult(sessionID string, completedAt time.Time, rows []*SubdomainScore) *SessionResult {
	res := &SessionResult{SessionID: sessionID, CompletedAt: completedAt}
	for _, row := range rows {
		if row.SubdomainID == "" {
			res.Overall = row
			continue
		}
		res.Subdomains = append(res.Subdomains, row)
	}
	sort.Slice(res.Subdomains, func(i, j int) bool {
		return res.Subdomains[i].SubdomainID < res.Subdomains[j].SubdomainID
	})
	return res
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

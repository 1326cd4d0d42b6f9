package services

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CodeStore abstracts persistence for the access-code lifecycle. ConsumeCodeUse
// must perform the check-and-increment of the usage counter as one atomic
// operation scoped to the code: it returns the updated code when the guard
// (active, unexpired, quota left) held, and nil when it did not.
type CodeStore interface {
	InsertAccessCode(c *AccessCode) error
	GetAccessCode(code string) (*AccessCode, error)
	ConsumeCodeUse(code string, now time.Time) (*AccessCode, error)
	AddSession(sess *Session) error
	AddAudit(entry AuditEntry)
}

// CodeService governs whether a new assessment attempt may start. It binds
// each code to an immutable question-list snapshot at creation and enforces
// usage quotas and expiry at admission.
type CodeService struct {
	store   CodeStore
	catalog Catalog
	roles   *RoleFilter // optional; validates declared roles at admission
	now     func() time.Time
	codeGen func() string
	idGen   func(n int) string
}

func NewCodeService(store CodeStore, catalog Catalog, roles *RoleFilter) *CodeService {
	return &CodeService{
		store:   store,
		catalog: catalog,
		roles:   roles,
		now:     func() time.Time { return time.Now().UTC() },
		codeGen: func() string { return strings.ToUpper(shortID(8)) },
		idGen:   shortID,
	}
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

type CreateCodeRequest struct {
	Organization string         `json:"organization"`
	Kind         AssessmentKind `json:"kind"`
	MaxUses      *int           `json:"max_uses,omitempty"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

// CreateCode derives the question-list snapshot for the requested kind and
// stores a new active code. The snapshot is captured exactly once here;
// codes created later against an edited catalog get a different list, codes
// created earlier keep theirs.
func (s *CodeService) CreateCode(req CreateCodeRequest, actor string) (*AccessCode, error) {
	org := strings.TrimSpace(req.Organization)
	if org == "" {
		return nil, NewInvalidError("organization required")
	}
	if req.Kind != KindQuick && req.Kind != KindFull {
		return nil, NewInvalidError("kind must be quick or full")
	}
	if req.MaxUses != nil && *req.MaxUses < 1 {
		return nil, NewInvalidError("max_uses must be at least 1")
	}
	now := s.now()
	if !req.ExpiresAt.After(now) {
		return nil, NewInvalidError("expires_at must be in the future")
	}
	questions, err := s.catalog.ListQuestions()
	if err != nil {
		return nil, err
	}
	ids := DeriveQuestionList(req.Kind, questions)
	if len(ids) == 0 {
		return nil, NewInvalidError("catalog has no questions for kind " + string(req.Kind))
	}
	code := &AccessCode{
		Code:         s.codeGen(),
		Organization: org,
		Kind:         req.Kind,
		QuestionIDs:  ids,
		MaxUses:      req.MaxUses,
		ExpiresAt:    req.ExpiresAt,
		Active:       true,
		CreatedAt:    now,
	}
	if err := s.store.InsertAccessCode(code); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: now, Actor: actor, Action: "create_code", Target: code.Code, Note: org})
	return code, nil
}

// Validate reports whether the code currently admits a new session. The
// returned record is informational only; admission itself goes through
// Admit so the quota check and the increment stay atomic.
func (s *CodeService) Validate(code string, now time.Time) (*AccessCode, error) {
	c, err := s.store.GetAccessCode(code)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCodeNotFound
	}
	if !c.Active {
		return nil, ErrCodeInactive
	}
	if !now.Before(c.ExpiresAt) {
		return nil, ErrCodeExpired
	}
	if c.MaxUses != nil && c.UsageCount >= *c.MaxUses {
		return nil, ErrCodeExhausted
	}
	return c, nil
}

type AdmitRequest struct {
	Code       string `json:"code"`
	Respondent string `json:"respondent"`
	Role       string `json:"role,omitempty"`
	Locale     string `json:"locale,omitempty"`
}

// Admit consumes one use of the code and creates a session bound to the
// code's question-list snapshot. Two concurrent admissions against a code
// with one remaining use cannot both succeed: the store's conditional
// increment is the unit of mutual exclusion, and a failed increment is
// re-read and classified into the precise failure kind.
func (s *CodeService) Admit(req AdmitRequest) (*Session, error) {
	if strings.TrimSpace(req.Respondent) == "" {
		return nil, NewInvalidError("respondent required")
	}
	if req.Role != "" && s.roles != nil && !s.roles.Known(req.Role) {
		return nil, NewInvalidError("unknown role " + req.Role)
	}
	now := s.now()
	var code *AccessCode
	for {
		c, err := s.store.ConsumeCodeUse(req.Code, now)
		if err != nil {
			return nil, err
		}
		if c != nil {
			code = c
			break
		}
		if _, verr := s.Validate(req.Code, now); verr != nil {
			return nil, verr
		}
		// Lost a race to a concurrent admission while capacity remains.
	}
	sess := &Session{
		ID:          s.idGen(12),
		Code:        code.Code,
		Respondent:  strings.TrimSpace(req.Respondent),
		Role:        req.Role,
		Locale:      req.Locale,
		Status:      SessionInProgress,
		QuestionIDs: append([]string(nil), code.QuestionIDs...),
		StartedAt:   now,
	}
	if err := s.store.AddSession(sess); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: now, Actor: sess.Respondent, Action: "admit_session", Target: sess.ID, Note: code.Code})
	return sess, nil
}

package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/quintile/maturity/internal/middleware"
	"github.com/quintile/maturity/internal/services"
)

// Router wires the engine services to the HTTP surface. The engine itself
// is a plain in-process library; everything HTTP-shaped lives here.
type Router struct {
	store       Store
	auth        *services.AuthService
	codes       *services.CodeService
	assessments *services.AssessmentService
	aggregation *services.AggregationService
}

// NewRouter builds a router over the given store. roleMap is the externally
// configured role -> subdomain mapping used for role-segmented reports; it
// may be empty.
func NewRouter(store Store, roleMap map[string][]string) *Router {
	roles := services.NewRoleFilter(roleMap)
	return &Router{
		store:       store,
		auth:        services.NewAuthService(store, middleware.SignToken),
		codes:       services.NewCodeService(store, store, roles),
		assessments: services.NewAssessmentService(store, store),
		aggregation: services.NewAggregationService(store, roles),
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", rt.handleRegister) // POST
	mux.HandleFunc("/api/auth/login", rt.handleLogin)       // POST
	mux.Handle("/api/codes", middleware.RequireAuth(http.HandlerFunc(rt.handleCreateCode))) // POST
	mux.Handle("/api/audit", middleware.RequireAuth(http.HandlerFunc(rt.handleAudit)))      // GET
	mux.HandleFunc("/api/codes/", rt.handleValidateCode)    // GET /api/codes/{code}
	mux.HandleFunc("/api/sessions", rt.handleAdmit)         // POST
	mux.HandleFunc("/api/sessions/", rt.handleSessionScoped)
	mux.HandleFunc("/api/reports/organization", rt.handleOrganizationReport) // GET
	mux.HandleFunc("/api/seed", rt.handleSeed) // POST
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	se, ok := services.AsServiceError(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	status := http.StatusInternalServerError
	switch se.Code {
	case services.ErrorInvalid:
		status = http.StatusBadRequest
	case services.ErrorNotFound, services.ErrorEmptyScope:
		status = http.StatusNotFound
	case services.ErrorConflict:
		status = http.StatusConflict
	case services.ErrorUnauthorized:
		status = http.StatusUnauthorized
	case services.ErrorForbidden:
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]any{"error": se.Message, "code": se.Code})
}

// POST /api/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Register(req.Email, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": res.Token, "user_id": res.UserID})
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Login(req.Email, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": res.Token, "user_id": res.UserID})
}

// POST /api/codes (admin)
func (rt *Router) handleCreateCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req services.CreateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	actor, _ := middleware.AdminFromContext(r.Context())
	code, err := rt.codes.CreateCode(req, actor)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, code)
}

// GET /api/codes/{code}
func (rt *Router) handleValidateCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	code := strings.TrimPrefix(r.URL.Path, "/api/codes/")
	if code == "" || strings.Contains(code, "/") {
		http.NotFound(w, r)
		return
	}
	c, err := rt.codes.Validate(code, time.Now().UTC())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"code":         c.Code,
		"organization": c.Organization,
		"kind":         c.Kind,
		"questions":    len(c.QuestionIDs),
		"remaining":    c.Remaining(),
		"expires_at":   c.ExpiresAt,
	})
}

// POST /api/sessions
func (rt *Router) handleAdmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req services.AdmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Locale == "" {
		req.Locale = middleware.LocaleFromContext(r.Context())
	}
	sess, err := rt.codes.Admit(req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// POST /api/sessions/{id}/responses
// POST /api/sessions/{id}/complete
// GET  /api/sessions/{id}/results
func (rt *Router) handleSessionScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	sessionID := parts[0]
	switch parts[1] {
	case "responses":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			QuestionID string `json:"question_id"`
			OptionKey  string `json:"option_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := rt.assessments.RecordResponse(sessionID, req.QuestionID, req.OptionKey)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case "complete":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		res, err := rt.assessments.Complete(sessionID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case "results":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		res, err := rt.assessments.Results(sessionID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		http.NotFound(w, r)
	}
}

// GET /api/reports/organization?org=...&codes=a,b&role=...
func (rt *Router) handleOrganizationReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	scope := services.AggregateScope{Organization: r.URL.Query().Get("org")}
	if raw := r.URL.Query().Get("codes"); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				scope.Codes = append(scope.Codes, c)
			}
		}
	}
	report, err := rt.aggregation.AggregateOrganization(scope, r.URL.Query().Get("role"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GET /api/audit (admin) lists the append-only trail of code and session events.
func (rt *Router) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": rt.store.ListAudit()})
}

// POST /api/seed loads a small sample catalog for local runs.
func (rt *Router) handleSeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n := SeedSampleCatalog(rt.store)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "questions": n})
}

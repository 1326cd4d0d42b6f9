//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

func baseURL() string {
	if v := os.Getenv("MATURITY_TEST_BASE_URL"); strings.TrimSpace(v) != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:18080"
}

// Walks the whole respondent journey against a running server: admin
// registration, code creation, admission, answering, completion, results and
// the organization report.
func TestAssessmentJourneyIntegration(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}
	base := baseURL()

	adminEmail := fmt.Sprintf("integration_%d@example.com", time.Now().UnixNano())
	password := "Secret123!"

	var registerResp struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	doPost(t, client, base+"/api/auth/register", "", map[string]any{
		"email":    adminEmail,
		"password": password,
	}, &registerResp)
	if registerResp.Token == "" || registerResp.UserID == "" {
		t.Fatalf("unexpected register response: %+v", registerResp)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	doPost(t, client, base+"/api/auth/login", "", map[string]string{
		"email":    adminEmail,
		"password": password,
	}, &loginResp)
	token := loginResp.Token
	if token == "" {
		t.Fatalf("login did not return token")
	}

	doPost(t, client, base+"/api/seed", "", nil, nil)

	org := fmt.Sprintf("Org %d", time.Now().UnixNano())
	var codeResp struct {
		Code        string   `json:"code"`
		QuestionIDs []string `json:"question_ids"`
	}
	doPost(t, client, base+"/api/codes", token, map[string]any{
		"organization": org,
		"kind":         "quick",
		"max_uses":     2,
		"expires_at":   time.Now().Add(7 * 24 * time.Hour).Format(time.RFC3339),
	}, &codeResp)
	if codeResp.Code == "" || len(codeResp.QuestionIDs) == 0 {
		t.Fatalf("unexpected code response: %+v", codeResp)
	}

	var validateResp struct {
		Remaining int `json:"remaining"`
		Questions int `json:"questions"`
	}
	doGet(t, client, base+"/api/codes/"+codeResp.Code, &validateResp)
	if validateResp.Remaining != 2 || validateResp.Questions != len(codeResp.QuestionIDs) {
		t.Fatalf("unexpected validate response: %+v", validateResp)
	}

	var sessionResp struct {
		ID          string   `json:"id"`
		QuestionIDs []string `json:"question_ids"`
	}
	doPost(t, client, base+"/api/sessions", "", map[string]any{
		"code":       codeResp.Code,
		"respondent": "integration tester",
		"role":       "engineer",
	}, &sessionResp)
	if sessionResp.ID == "" || len(sessionResp.QuestionIDs) != len(codeResp.QuestionIDs) {
		t.Fatalf("unexpected session response: %+v", sessionResp)
	}

	for _, qid := range sessionResp.QuestionIDs {
		doPost(t, client, base+"/api/sessions/"+sessionResp.ID+"/responses", "", map[string]string{
			"question_id": qid,
			"option_key":  "e",
		}, nil)
	}

	var completeResp struct {
		Overall struct {
			Raw  float64 `json:"raw_score"`
			Tier string  `json:"maturity_tier"`
		} `json:"overall"`
	}
	doPost(t, client, base+"/api/sessions/"+sessionResp.ID+"/complete", "", nil, &completeResp)
	if completeResp.Overall.Raw != 4.0 || completeResp.Overall.Tier != "Advanced" {
		t.Fatalf("unexpected completion scores: %+v", completeResp)
	}

	var resultsResp struct {
		SessionID string `json:"session_id"`
	}
	doGet(t, client, base+"/api/sessions/"+sessionResp.ID+"/results", &resultsResp)
	if resultsResp.SessionID != sessionResp.ID {
		t.Fatalf("results returned wrong session: %+v", resultsResp)
	}

	var reportResp struct {
		Sessions int `json:"sessions"`
	}
	doGet(t, client, fmt.Sprintf("%s/api/reports/organization?codes=%s&role=engineer", base, codeResp.Code), &reportResp)
	if reportResp.Sessions != 1 {
		t.Fatalf("expected 1 aggregated session, got %d", reportResp.Sessions)
	}
}

func doPost(t *testing.T, client *http.Client, url, token string, body any, out any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("http post %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected status %d for %s: %s", resp.StatusCode, url, string(bodyBytes))
	}
	if out != nil {
		decoder := json.NewDecoder(resp.Body)
		if err := decoder.Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
}

func doGet(t *testing.T, client *http.Client, url string, out any) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("http get %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected status %d for %s: %s", resp.StatusCode, url, string(bodyBytes))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
}

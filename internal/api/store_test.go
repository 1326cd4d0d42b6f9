package api

import (
	"sync"
	"testing"
	"time"

	"github.com/quintile/maturity/internal/services"
)

func testCode(code, org string, maxUses int) *services.AccessCode {
	uses := maxUses
	return &services.AccessCode{
		Code:         code,
		Organization: org,
		Kind:         services.KindFull,
		QuestionIDs:  []string{"q1"},
		MaxUses:      &uses,
		Active:       true,
		ExpiresAt:    time.Now().Add(time.Hour),
		CreatedAt:    time.Now(),
	}
}

func TestConsumeCodeUseStopsAtMaxUses(t *testing.T) {
	store := newMemoryStore()
	if err := store.InsertAccessCode(testCode("TEAM1", "acme", 5)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var wg sync.WaitGroup
	granted := make(chan *services.AccessCode, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := store.ConsumeCodeUse("TEAM1", time.Now())
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			if c != nil {
				granted <- c
			}
		}()
	}
	wg.Wait()
	close(granted)

	var n int
	for range granted {
		n++
	}
	if n != 5 {
		t.Fatalf("expected 5 grants, got %d", n)
	}
	c, _ := store.GetAccessCode("TEAM1")
	if c.UsageCount != 5 {
		t.Fatalf("usage count = %d, want 5", c.UsageCount)
	}
}

func TestConsumeCodeUseRejectsExpiredAndInactive(t *testing.T) {
	store := newMemoryStore()
	expired := testCode("OLD", "acme", 5)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	inactive := testCode("OFF", "acme", 5)
	inactive.Active = false
	_ = store.InsertAccessCode(expired)
	_ = store.InsertAccessCode(inactive)

	for _, code := range []string{"OLD", "OFF", "MISSING"} {
		c, err := store.ConsumeCodeUse(code, time.Now())
		if err != nil {
			t.Fatalf("consume %s: %v", code, err)
		}
		if c != nil {
			t.Fatalf("consume %s: expected refusal", code)
		}
	}
}

func TestCompleteSessionSingleWinner(t *testing.T) {
	store := newMemoryStore()
	_ = store.AddSession(&services.Session{ID: "s1", Code: "TEAM1", Status: services.SessionInProgress})

	rows := []*services.SubdomainScore{{SessionID: "s1", SubdomainID: "governance", Raw: 4}}
	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := store.CompleteSession("s1", time.Now(), rows)
			if err != nil {
				t.Errorf("complete: %v", err)
				return
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winning transition, got %d", wins)
	}
	sess, _ := store.GetSession("s1")
	if sess.Status != services.SessionCompleted || sess.CompletedAt == nil {
		t.Fatalf("session not completed: %+v", sess)
	}
}

func TestListCompletedSessionScoresScope(t *testing.T) {
	store := newMemoryStore()
	_ = store.InsertAccessCode(testCode("ACME1", "acme", 10))
	_ = store.InsertAccessCode(testCode("OTHER", "globex", 10))

	add := func(id, code string, done bool) {
		_ = store.AddSession(&services.Session{ID: id, Code: code, Status: services.SessionInProgress})
		if done {
			rows := []*services.SubdomainScore{{SessionID: id, SubdomainID: "quality", Raw: 3, QuestionsAnswered: 1}}
			if _, err := store.CompleteSession(id, time.Now(), rows); err != nil {
				t.Fatalf("complete %s: %v", id, err)
			}
		}
	}
	add("s1", "ACME1", true)
	add("s2", "ACME1", false) // still in progress
	add("s3", "OTHER", true)

	byOrg, err := store.ListCompletedSessionScores("acme", nil)
	if err != nil {
		t.Fatalf("by org: %v", err)
	}
	if len(byOrg) != 1 || byOrg[0][0].SessionID != "s1" {
		t.Fatalf("org scope returned %d sessions", len(byOrg))
	}

	byCodes, err := store.ListCompletedSessionScores("", []string{"ACME1", "OTHER"})
	if err != nil {
		t.Fatalf("by codes: %v", err)
	}
	if len(byCodes) != 2 {
		t.Fatalf("code scope returned %d sessions, want 2", len(byCodes))
	}
}

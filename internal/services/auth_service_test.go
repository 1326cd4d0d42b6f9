package services

import (
	"errors"
	"testing"
	"time"
)

type authStubStore struct {
	users map[string]*User
}

func newAuthStubStore() *authStubStore {
	return &authStubStore{users: map[string]*User{}}
}

func (s *authStubStore) FindUserByEmail(email string) (*User, error) {
	if u, ok := s.users[email]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, nil
}

func (s *authStubStore) AddUser(u *User) error {
	if _, ok := s.users[u.Email]; ok {
		return errors.New("duplicate user")
	}
	copy := *u
	s.users[u.Email] = &copy
	return nil
}

func TestAuthRegisterAndLogin(t *testing.T) {
	store := newAuthStubStore()
	svc := NewAuthService(store, func(uid, email string, ttl time.Duration) (string, error) {
		return "token:" + uid, nil
	})
	svc.now = func() time.Time { return time.Unix(0, 0) }
	svc.idGen = func(prefix string, n int) string { return prefix + "1234567" }

	res, err := svc.Register("admin@example.com", "Secret123")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if res.UserID == "" || res.Token != "token:"+res.UserID {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err = svc.Register("admin@example.com", "Secret123"); err == nil {
		t.Fatalf("expected conflict error on duplicate registration")
	}

	loginRes, err := svc.Login("admin@example.com", "Secret123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if loginRes.Token == "" {
		t.Fatalf("expected token in login response")
	}

	if _, err = svc.Login("admin@example.com", "wrong"); err == nil {
		t.Fatalf("expected error for bad password")
	}
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if _, err = svc.Login("ghost@example.com", "Secret123"); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}

func TestAuthValidatesInput(t *testing.T) {
	svc := NewAuthService(newAuthStubStore(), nil)
	if _, err := svc.Register("", "pw"); err == nil {
		t.Fatalf("expected error for empty email")
	}
	if _, err := svc.Login("a@example.com", " "); err == nil {
		t.Fatalf("expected error for blank password")
	}
}

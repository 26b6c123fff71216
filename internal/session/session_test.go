package session

import (
	"context"
	"errors"
	"testing"
)

type fakeAuth struct {
	token string
	err   error
	calls int
}

func (f *fakeAuth) Login(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.token, f.err
}

func TestContext_LoginStoresToken(t *testing.T) {
	s := New(Credential{})
	if _, ok := s.Token(); ok {
		t.Fatal("new session has a token")
	}

	auth := &fakeAuth{token: "tok-1"}
	if err := s.Login(context.Background(), auth, "  ana@example.com ", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	token, ok := s.Token()
	if !ok || token != "tok-1" {
		t.Fatalf("Token() = %q, %v; want tok-1, true", token, ok)
	}
	if s.UserID() != "ana@example.com" {
		t.Fatalf("UserID = %q, want trimmed id", s.UserID())
	}
}

func TestContext_LoginValidatesInput(t *testing.T) {
	s := New(Credential{})
	auth := &fakeAuth{token: "tok"}
	if err := s.Login(context.Background(), auth, " ", "pw"); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("Login error = %v, want ErrMissingCredentials", err)
	}
	if auth.calls != 0 {
		t.Fatalf("authenticator called %d times, want 0", auth.calls)
	}
}

func TestContext_LoginFailureKeepsPreviousState(t *testing.T) {
	s := New(Credential{UserID: "u", Token: "old"})
	boom := errors.New("bad password")
	if err := s.Login(context.Background(), &fakeAuth{err: boom}, "u", "pw"); !errors.Is(err, boom) {
		t.Fatalf("Login error = %v, want wrapped %v", err, boom)
	}
	if token, _ := s.Token(); token != "old" {
		t.Fatalf("token = %q, want old", token)
	}
}

func TestContext_InvalidateKeepsUser(t *testing.T) {
	s := New(Credential{UserID: "u", Token: "t"})
	s.Invalidate()
	if _, ok := s.Token(); ok {
		t.Fatal("token still present after Invalidate")
	}
	if s.UserID() != "u" {
		t.Fatalf("UserID = %q, want u", s.UserID())
	}

	s.Logout()
	if s.UserID() != "" {
		t.Fatalf("UserID = %q after Logout, want empty", s.UserID())
	}
}

func TestContext_RequestReauth(t *testing.T) {
	s := New(Credential{})
	s.RequestReauth() // no hook registered

	calls := 0
	s.OnReauth(func() { calls++ })
	s.RequestReauth()
	if calls != 1 {
		t.Fatalf("reauth hook calls = %d, want 1", calls)
	}
}

func TestContext_NilIsEmpty(t *testing.T) {
	var s *Context
	if _, ok := s.Token(); ok {
		t.Fatal("nil session reported a token")
	}
	if s.UserID() != "" {
		t.Fatal("nil session reported a user")
	}
}

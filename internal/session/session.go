// Package session holds the operator's bearer credential for the lifetime of
// the process. Nothing here is written to disk.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrMissingCredentials is returned by Login when user or password is blank.
var ErrMissingCredentials = errors.New("user id and password are required")

// Credential is the identity and bearer token issued at login.
type Credential struct {
	UserID string
	Token  string
}

// Authenticator exchanges user credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, userID, password string) (string, error)
}

// Context is the explicitly passed session. It is populated at login and
// invalidated at logout or when the service rejects the token.
type Context struct {
	mu       sync.RWMutex
	cred     Credential
	onReauth func()
}

// New returns a session, optionally already holding cred.
func New(cred Credential) *Context {
	c := &Context{}
	if strings.TrimSpace(cred.Token) != "" {
		c.cred = cred
	}
	return c
}

// Login authenticates against auth and stores the issued token.
func (c *Context) Login(ctx context.Context, auth Authenticator, userID, password string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || password == "" {
		return ErrMissingCredentials
	}
	token, err := auth.Login(ctx, userID, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.Set(Credential{UserID: userID, Token: token})
	return nil
}

// Set replaces the current credential.
func (c *Context) Set(cred Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = cred
}

// Token returns the bearer token and whether one is present.
func (c *Context) Token() (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if strings.TrimSpace(c.cred.Token) == "" {
		return "", false
	}
	return c.cred.Token, true
}

// UserID returns the logged-in user, or the last user when the token has been
// invalidated, so per-user caches stay addressable.
func (c *Context) UserID() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred.UserID
}

// Invalidate drops the token but keeps the user id.
func (c *Context) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred.Token = ""
}

// Logout drops the whole credential.
func (c *Context) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = Credential{}
}

// OnReauth registers the hook invoked by RequestReauth, typically a redirect
// to the login view.
func (c *Context) OnReauth(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReauth = fn
}

// RequestReauth notifies the registered hook, if any.
func (c *Context) RequestReauth() {
	c.mu.RLock()
	fn := c.onReauth
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

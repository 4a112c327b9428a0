// Package client is a Go client for the harvestly account API. A Session
// stores the bearer token the way the dashboard does: in a persistent store
// when the user asks to be remembered, in an ephemeral store otherwise.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrNotAuthenticated is returned when an operation needs a stored token and there is none
var ErrNotAuthenticated = errors.New("not authenticated")

// APIError is a non-2xx response from the API
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// IsUnauthorized reports whether err is a 401 from the API
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// User is the public account record returned by the API
type User struct {
	ID             string     `json:"id"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone"`
	State          string     `json:"state"`
	Role           string     `json:"role"`
	ProfilePicture string     `json:"profilePicture,omitempty"`
	IsVerified     bool       `json:"isVerified"`
	LastLogin      *time.Time `json:"lastLogin,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// RegisterData is the registration form
type RegisterData struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	State     string `json:"state"`
	Password  string `json:"password"`
}

type authResponse struct {
	Token   string `json:"token"`
	User    *User  `json:"user"`
	Message string `json:"message"`
}

// Session talks to the API on behalf of one user
type Session struct {
	baseURL    string
	httpClient *http.Client
	persistent TokenStore
	ephemeral  TokenStore

	mu   sync.RWMutex
	user *User
}

// Option configures a Session
type Option func(*Session)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		s.httpClient = c
	}
}

// NewSession creates a Session against baseURL. Nil stores default to memory.
func NewSession(baseURL string, persistent, ephemeral TokenStore, opts ...Option) *Session {
	if persistent == nil {
		persistent = NewMemoryTokenStore()
	}
	if ephemeral == nil {
		ephemeral = NewMemoryTokenStore()
	}

	s := &Session{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		persistent: persistent,
		ephemeral:  ephemeral,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reads both stores
func (s *Session) State() (TokenState, error) {
	persistent, err := s.persistent.Load()
	if err != nil {
		return TokenState{}, err
	}
	ephemeral, err := s.ephemeral.Load()
	if err != nil {
		return TokenState{}, err
	}
	return TokenState{Persistent: persistent, Ephemeral: ephemeral}, nil
}

// User returns the last user seen by Login, Register, ResetPassword, Me or CheckAuth
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) setUser(u *User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

// storeToken saves token in exactly one store and empties the other
func (s *Session) storeToken(token string, remember bool) error {
	keep, drop := s.ephemeral, s.persistent
	if remember {
		keep, drop = s.persistent, s.ephemeral
	}
	if err := drop.Clear(); err != nil {
		return err
	}
	return keep.Save(token)
}

func (s *Session) clearTokens() error {
	return errors.Join(s.persistent.Clear(), s.ephemeral.Clear())
}

// Do sends an API request. The Authorization header is computed from the
// current token state for this request only.
func (s *Session) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	state, err := s.State()
	if err != nil {
		return err
	}
	for key, values := range AuthHeaders(state) {
		req.Header[key] = values
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Login signs in. With remember the token survives restarts.
func (s *Session) Login(ctx context.Context, email, password string, remember bool) (*User, error) {
	var resp authResponse
	err := s.Do(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return nil, err
	}
	if err := s.storeToken(resp.Token, remember); err != nil {
		return nil, err
	}
	s.setUser(resp.User)
	return resp.User, nil
}

// Register creates an account. When the server returns a token (accounts
// that need no email verification) it is kept for this process only.
func (s *Session) Register(ctx context.Context, data RegisterData) (*User, error) {
	var resp authResponse
	if err := s.Do(ctx, http.MethodPost, "/auth/register", data, &resp); err != nil {
		return nil, err
	}
	if resp.Token != "" {
		if err := s.storeToken(resp.Token, false); err != nil {
			return nil, err
		}
		s.setUser(resp.User)
	}
	return resp.User, nil
}

// ForgotPassword requests a reset email. The returned token is only
// non-empty against a server running in demo mode.
func (s *Session) ForgotPassword(ctx context.Context, email string) (string, error) {
	var resp struct {
		Message    string `json:"message"`
		ResetToken string `json:"resetToken"`
	}
	if err := s.Do(ctx, http.MethodPost, "/auth/forgot-password", map[string]string{"email": email}, &resp); err != nil {
		return "", err
	}
	return resp.ResetToken, nil
}

// ResetPassword sets a new password with a reset token and signs in for this process
func (s *Session) ResetPassword(ctx context.Context, resetToken, password string) (*User, error) {
	var resp authResponse
	err := s.Do(ctx, http.MethodPost, "/auth/reset-password", map[string]string{"resetToken": resetToken, "password": password}, &resp)
	if err != nil {
		return nil, err
	}
	if err := s.storeToken(resp.Token, false); err != nil {
		return nil, err
	}
	s.setUser(resp.User)
	return resp.User, nil
}

// VerifyEmail consumes a verification token from an emailed link
func (s *Session) VerifyEmail(ctx context.Context, token string) error {
	return s.Do(ctx, http.MethodGet, "/auth/verify-email/"+url.PathEscape(token), nil, nil)
}

// Me fetches the signed-in user
func (s *Session) Me(ctx context.Context) (*User, error) {
	state, err := s.State()
	if err != nil {
		return nil, err
	}
	if state.Token() == "" {
		return nil, ErrNotAuthenticated
	}

	var resp struct {
		User *User `json:"user"`
	}
	if err := s.Do(ctx, http.MethodGet, "/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	s.setUser(resp.User)
	return resp.User, nil
}

// CheckAuth reports whether the stored token is still accepted. Any failure
// to confirm it clears both stores.
func (s *Session) CheckAuth(ctx context.Context) (bool, error) {
	state, err := s.State()
	if err != nil {
		return false, err
	}
	if state.Token() == "" {
		s.setUser(nil)
		return false, nil
	}

	if _, err := s.Me(ctx); err != nil {
		s.setUser(nil)
		return false, s.clearTokens()
	}
	return true, nil
}

// Logout forgets the token locally. The token itself stays valid until it
// expires; use LogoutAll to revoke it server-side.
func (s *Session) Logout() error {
	s.setUser(nil)
	return s.clearTokens()
}

// LogoutAll revokes every token of the signed-in user, then forgets the local one
func (s *Session) LogoutAll(ctx context.Context) error {
	if err := s.Do(ctx, http.MethodPost, "/auth/logout-all", nil, nil); err != nil {
		return err
	}
	return s.Logout()
}

// ChangePassword replaces the signed-in user's password and keeps the
// session alive with the token the server returns.
func (s *Session) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	user := s.User()
	if user == nil {
		return ErrNotAuthenticated
	}

	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"currentPassword": currentPassword, "newPassword": newPassword}
	if err := s.Do(ctx, http.MethodPut, "/users/"+url.PathEscape(user.ID)+"/password", body, &resp); err != nil {
		return err
	}

	state, err := s.State()
	if err != nil {
		return err
	}
	return s.storeToken(resp.Token, state.Persistent != "")
}

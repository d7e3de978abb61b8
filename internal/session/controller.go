// Package session tracks whether this client is logged in to oeee.cafe.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/oeee-cafe/oeee-client/internal/api"
	"github.com/oeee-cafe/oeee-client/internal/kv"
	"github.com/oeee-cafe/oeee-client/internal/lib/logger/sl"
	"github.com/oeee-cafe/oeee-client/internal/metrics"
	"github.com/oeee-cafe/oeee-client/internal/models"
)

// HadSessionKey is the persisted flag recording that a login succeeded before.
const HadSessionKey = "had_session"

// AuthAPI is the part of the API the controller calls.
type AuthAPI interface {
	Login(ctx context.Context, creds models.Credentials) (models.User, error)
	Signup(ctx context.Context, req models.SignupRequest) (models.User, error)
	Logout(ctx context.Context, deviceToken string) error
	Me(ctx context.Context) (models.User, error)
	DeleteAccount(ctx context.Context, password string) error
	DeletePushToken(ctx context.Context, deviceToken string) error
}

// CookieClearer drops every stored cookie.
type CookieClearer interface {
	Clear() bool
}

// DeviceTokens returns the push token of this install, "" when there is none.
type DeviceTokens interface {
	Token(ctx context.Context) (string, error)
}

// State is a snapshot of the session.
type State struct {
	IsAuthenticated bool
	CurrentUser     *models.User
	// IsCheckingAuth is true only between startup and the end of the first CheckAuthStatus.
	IsCheckingAuth bool
}

// Controller is the only writer of State. Readers take snapshots with State
// or follow changes with Subscribe.
type Controller struct {
	log     *slog.Logger
	api     AuthAPI
	flags   kv.Store
	cookies CookieClearer
	tokens  DeviceTokens
	metrics *metrics.Metrics

	mu     sync.RWMutex
	state  State
	subs   map[int]chan State
	nextID int
}

// NewController restores the persisted session flag. A previous session puts
// the controller in the checking state until CheckAuthStatus runs; no request
// is made here.
func NewController(
	ctx context.Context,
	log *slog.Logger,
	authAPI AuthAPI,
	flags kv.Store,
	cookies CookieClearer,
	tokens DeviceTokens,
	m *metrics.Metrics,
) *Controller {
	c := &Controller{
		log:     log.With(slog.String("op", "session.Controller")),
		api:     authAPI,
		flags:   flags,
		cookies: cookies,
		tokens:  tokens,
		metrics: m,
		subs:    make(map[int]chan State),
	}

	hadSession, err := kv.GetBool(ctx, flags, HadSessionKey)
	if err != nil {
		c.log.WarnContext(ctx, "Failed to read session flag, starting logged out", sl.Err(err))
	}
	c.state.IsCheckingAuth = hadSession

	return c
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state.clone()
}

// Subscribe returns a channel that receives the current state and then every
// change. A slow reader only misses intermediate states, never the latest one.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	ch := make(chan State, 1)
	ch <- c.state.clone()
	c.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}

	return ch, cancel
}

// Login authenticates with creds. On failure the state is left alone and the
// returned *Error carries a message fit for display.
func (c *Controller) Login(ctx context.Context, creds models.Credentials) (models.User, error) {
	user, err := c.api.Login(ctx, creds)
	if err != nil {
		return models.User{}, c.fail(ctx, "login", err)
	}

	c.authenticated(ctx, "login", user)

	return user, nil
}

// Signup creates an account; success logs it in like Login does.
func (c *Controller) Signup(ctx context.Context, req models.SignupRequest) (models.User, error) {
	user, err := c.api.Signup(ctx, req)
	if err != nil {
		return models.User{}, c.fail(ctx, "signup", err)
	}

	c.authenticated(ctx, "signup", user)

	return user, nil
}

// CheckAuthStatus asks the server who is logged in and reports whether
// anyone is. Failures of any kind resolve to logged out. IsCheckingAuth is
// false once it returns.
func (c *Controller) CheckAuthStatus(ctx context.Context) bool {
	defer c.update(func(s *State) { s.IsCheckingAuth = false })

	user, err := c.api.Me(ctx)
	if err != nil {
		c.log.InfoContext(ctx, "Session is not valid", sl.Err(err))
		c.count("check", "failure")
		c.update(func(s *State) {
			s.IsAuthenticated = false
			s.CurrentUser = nil
		})
		c.putFlag(ctx, false)
		return false
	}

	c.authenticated(ctx, "check", user)
	if c.metrics != nil {
		c.metrics.LastSuccessfulCheck.SetToCurrentTime()
	}

	return true
}

// Logout never fails. The server is told on a best-effort basis; local state,
// the session flag and every cookie are cleared regardless.
func (c *Controller) Logout(ctx context.Context) {
	token := c.deviceToken(ctx)

	if err := c.api.Logout(ctx, token); err != nil {
		c.log.WarnContext(ctx, "Server logout failed, clearing local session anyway", sl.Err(err))
		c.deletePushToken(ctx, token)
	}

	c.clearLocal(ctx)
	c.count("logout", "success")
	c.log.InfoContext(ctx, "Logged out")
}

// DeleteAccount deletes the account after password confirmation and then
// cleans up like Logout. On failure nothing changes.
func (c *Controller) DeleteAccount(ctx context.Context, password string) error {
	if password == "" {
		return c.fail(ctx, "delete_account", api.ErrEmptyPassword)
	}

	token := c.deviceToken(ctx)
	if err := c.api.DeleteAccount(ctx, password); err != nil {
		return c.fail(ctx, "delete_account", err)
	}

	c.deletePushToken(ctx, token)
	c.clearLocal(ctx)
	c.count("delete_account", "success")
	c.log.InfoContext(ctx, "Account deleted")

	return nil
}

func (c *Controller) authenticated(ctx context.Context, op string, user models.User) {
	c.update(func(s *State) {
		s.IsAuthenticated = true
		s.CurrentUser = &user
	})
	c.putFlag(ctx, true)
	c.count(op, "success")
	c.log.InfoContext(ctx, "Authenticated", "op_kind", op, "login_name", user.LoginName)
}

func (c *Controller) clearLocal(ctx context.Context) {
	c.update(func(s *State) {
		s.IsAuthenticated = false
		s.CurrentUser = nil
	})
	c.putFlag(ctx, false)
	if c.cookies != nil {
		c.cookies.Clear()
	}
}

func (c *Controller) deviceToken(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.log.WarnContext(ctx, "Failed to read device token", sl.Err(err))
		return ""
	}

	return token
}

func (c *Controller) deletePushToken(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := c.api.DeletePushToken(ctx, token); err != nil {
		c.log.WarnContext(ctx, "Failed to unregister push token", sl.Err(err))
	}
}

func (c *Controller) putFlag(ctx context.Context, value bool) {
	if err := kv.PutBool(ctx, c.flags, HadSessionKey, value); err != nil {
		c.log.WarnContext(ctx, "Failed to persist session flag", slog.Bool("value", value), sl.Err(err))
	}
}

func (c *Controller) fail(ctx context.Context, op string, err error) *Error {
	c.count(op, "failure")
	c.log.WarnContext(ctx, "Session operation failed", "op_kind", op, sl.Err(err))

	return &Error{Op: op, Message: displayMessage(err), Err: err}
}

// update applies fn to the state and publishes the result.
func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn(&c.state)
	snapshot := c.state.clone()

	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

func (c *Controller) count(op, status string) {
	if c.metrics != nil {
		c.metrics.SessionOps.WithLabelValues(op, status).Inc()
	}
}

func (s State) clone() State {
	if s.CurrentUser != nil {
		user := *s.CurrentUser
		s.CurrentUser = &user
	}

	return s
}

// displayMessage turns err into text for the user. Transport details never
// reach the message; they stay available through Error.Unwrap.
func displayMessage(err error) string {
	var apiErr *api.Error

	switch {
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, api.ErrEmptyPassword):
		return "Please enter your password."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "The request timed out. Please try again."
	default:
		return "Could not reach oeee.cafe. Check your connection and try again."
	}
}

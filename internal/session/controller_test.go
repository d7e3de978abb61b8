package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/oeee-cafe/oeee-client/internal/api"
	"github.com/oeee-cafe/oeee-client/internal/cookies"
	"github.com/oeee-cafe/oeee-client/internal/kv"
	"github.com/oeee-cafe/oeee-client/internal/metrics"
	"github.com/oeee-cafe/oeee-client/internal/models"
	"github.com/oeee-cafe/oeee-client/internal/push"
	"github.com/oeee-cafe/oeee-client/internal/session"
	mocks "github.com/oeee-cafe/oeee-client/mock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tamathecxder/randomail"
)

var testUser = models.User{ID: "u1", LoginName: "tester", DisplayName: "Tester"}

type fixture struct {
	flags   *kv.MemoryStore
	cookies *cookies.Store
	tokens  *push.TokenStore
	metrics *metrics.Metrics
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	records, err := cookies.NewRecordStore(context.Background(), newLogger(), kv.NewMemoryStore(), nil)
	require.NoError(t, err)

	return &fixture{
		flags:   kv.NewMemoryStore(),
		cookies: cookies.NewStore(newLogger(), records, nil),
		tokens:  push.NewTokenStore(kv.NewMemoryStore()),
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	}
}

func (f *fixture) controller(t *testing.T, authAPI session.AuthAPI) *session.Controller {
	t.Helper()

	return session.NewController(context.Background(), newLogger(), authAPI, f.flags, f.cookies, f.tokens, f.metrics)
}

func (f *fixture) hadSession(t *testing.T) bool {
	t.Helper()

	value, err := kv.GetBool(context.Background(), f.flags, session.HadSessionKey)
	require.NoError(t, err)
	return value
}

func (f *fixture) seedCookie(t *testing.T) {
	t.Helper()

	origin := &url.URL{Scheme: "https", Host: "oeee.cafe"}
	require.NoError(t, f.cookies.Add(origin, models.CookieRecord{Name: "sid", Value: "abc", MaxAgeSeconds: 3600}))
}

func TestNewController_InitialState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		stored       string
		wantChecking bool
	}{
		{name: "no previous session", stored: "", wantChecking: false},
		{name: "previous session", stored: "true", wantChecking: true},
		{name: "previous logout", stored: "false", wantChecking: false},
		{name: "corrupt flag", stored: "maybe", wantChecking: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			if tt.stored != "" {
				require.NoError(t, f.flags.Put(context.Background(), session.HadSessionKey, tt.stored))
			}

			// No expectations: construction must not call the API.
			c := f.controller(t, mocks.NewAuthAPI(t))

			state := c.State()
			assert.Equal(t, tt.wantChecking, state.IsCheckingAuth)
			assert.False(t, state.IsAuthenticated)
			assert.Nil(t, state.CurrentUser)
		})
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	creds := models.Credentials{LoginName: "tester", Password: "secret"}

	t.Run("success authenticates and persists the flag", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		authAPI := mocks.NewAuthAPI(t)
		authAPI.On("Login", mock.Anything, creds).Return(testUser, nil).Once()

		c := f.controller(t, authAPI)
		user, err := c.Login(context.Background(), creds)

		require.NoError(t, err)
		assert.Equal(t, testUser, user)
		state := c.State()
		assert.True(t, state.IsAuthenticated)
		require.NotNil(t, state.CurrentUser)
		assert.Equal(t, testUser, *state.CurrentUser)
		assert.True(t, f.hadSession(t))
		assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.SessionOps.WithLabelValues("login", "success")), 0)
	})

	t.Run("api error leaves state unchanged", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		authAPI := mocks.NewAuthAPI(t)
		apiErr := &api.Error{StatusCode: http.StatusUnauthorized, Code: "INVALID_CREDENTIALS", Message: "Wrong password"}
		authAPI.On("Login", mock.Anything, creds).Return(models.User{}, apiErr).Once()

		c := f.controller(t, authAPI)
		before := c.State()
		_, err := c.Login(context.Background(), creds)

		var sessionErr *session.Error
		require.ErrorAs(t, err, &sessionErr)
		assert.Equal(t, "login", sessionErr.Op)
		assert.Equal(t, "Wrong password", sessionErr.Message)
		require.ErrorIs(t, err, apiErr)
		assert.Equal(t, before, c.State())
		assert.False(t, f.hadSession(t))
		assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.SessionOps.WithLabelValues("login", "failure")), 0)
	})

	t.Run("transport error gets a generic message", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		authAPI := mocks.NewAuthAPI(t)
		authAPI.On("Login", mock.Anything, creds).Return(models.User{}, errors.New("dial tcp: connection refused")).Once()

		_, err := f.controller(t, authAPI).Login(context.Background(), creds)

		var sessionErr *session.Error
		require.ErrorAs(t, err, &sessionErr)
		assert.NotContains(t, sessionErr.Message, "dial tcp")
		assert.Contains(t, err.Error(), "dial tcp")
	})

	t.Run("timeout gets a timeout message", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		authAPI := mocks.NewAuthAPI(t)
		authAPI.On("Login", mock.Anything, creds).Return(models.User{}, context.DeadlineExceeded).Once()

		_, err := f.controller(t, authAPI).Login(context.Background(), creds)

		var sessionErr *session.Error
		require.ErrorAs(t, err, &sessionErr)
		assert.Contains(t, sessionErr.Message, "timed out")
	})
}

func TestSignup(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := models.SignupRequest{
		LoginName:   "newbie",
		Password:    "secret",
		DisplayName: "Newbie",
		Email:       randomail.GenerateRandomEmail(),
	}
	created := models.User{ID: "u2", LoginName: req.LoginName, DisplayName: req.DisplayName, Email: req.Email}

	authAPI := mocks.NewAuthAPI(t)
	authAPI.On("Signup", mock.Anything, req).Return(created, nil).Once()
	authAPI.On("Signup", mock.Anything, mock.Anything).
		Return(models.User{}, &api.Error{StatusCode: http.StatusConflict, Message: "Login name is taken"}).Once()

	c := f.controller(t, authAPI)

	user, err := c.Signup(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, created, user)
	assert.True(t, c.State().IsAuthenticated)
	assert.True(t, f.hadSession(t))

	_, err = c.Signup(context.Background(), models.SignupRequest{LoginName: "newbie"})
	var sessionErr *session.Error
	require.ErrorAs(t, err, &sessionErr)
	assert.Equal(t, "Login name is taken", sessionErr.Message)
	assert.True(t, c.State().IsAuthenticated)
}

func TestCheckAuthStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		meErr    error
		wantAuth bool
	}{
		{name: "valid session", wantAuth: true},
		{name: "expired session", meErr: &api.Error{StatusCode: http.StatusUnauthorized, Message: "Login required"}},
		{name: "network failure", meErr: errors.New("no route to host")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			require.NoError(t, kv.PutBool(context.Background(), f.flags, session.HadSessionKey, true))

			authAPI := mocks.NewAuthAPI(t)
			authAPI.On("Me", mock.Anything).Return(testUser, tt.meErr).Once()

			c := f.controller(t, authAPI)
			require.True(t, c.State().IsCheckingAuth)

			got := c.CheckAuthStatus(context.Background())

			state := c.State()
			assert.Equal(t, tt.wantAuth, got)
			assert.False(t, state.IsCheckingAuth)
			assert.Equal(t, tt.wantAuth, state.IsAuthenticated)
			assert.Equal(t, tt.wantAuth, f.hadSession(t))
			if tt.wantAuth {
				assert.Positive(t, testutil.ToFloat64(f.metrics.LastSuccessfulCheck))
			} else {
				assert.Nil(t, state.CurrentUser)
			}
		})
	}
}

func TestLogout_NeverFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	f.seedCookie(t)
	require.NoError(t, f.tokens.SetToken(ctx, "fcm-token"))

	var calls []string
	httpClient := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls = append(calls, req.Method+" "+req.URL.Path)
		switch req.URL.Path {
		case "/login":
			return jsonResponse(`{"user":{"id":"u1","login_name":"tester"}}`), nil
		default:
			return nil, errors.New("simulated network error")
		}
	})}
	client, err := api.NewClient(newLogger(), httpClient, "https://oeee.cafe", nil)
	require.NoError(t, err)

	c := f.controller(t, client)
	_, err = c.Login(ctx, models.Credentials{LoginName: "tester", Password: "secret"})
	require.NoError(t, err)

	c.Logout(ctx)

	state := c.State()
	assert.False(t, state.IsAuthenticated)
	assert.Nil(t, state.CurrentUser)
	assert.Empty(t, f.cookies.All())
	assert.False(t, f.hadSession(t))
	assert.Equal(t, []string{"POST /login", "POST /logout", "DELETE /push-tokens/fcm-token"}, calls)
}

func TestLogout_ServerSuccessSkipsPushFallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	f.seedCookie(t)
	require.NoError(t, f.tokens.SetToken(ctx, "fcm-token"))

	authAPI := mocks.NewAuthAPI(t)
	authAPI.On("Logout", mock.Anything, "fcm-token").Return(nil).Once()

	f.controller(t, authAPI).Logout(ctx)

	authAPI.AssertNotCalled(t, "DeletePushToken", mock.Anything, mock.Anything)
	assert.Empty(t, f.cookies.All())
}

func TestDeleteAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("empty password is rejected locally", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		err := f.controller(t, mocks.NewAuthAPI(t)).DeleteAccount(ctx, "")

		var sessionErr *session.Error
		require.ErrorAs(t, err, &sessionErr)
		require.ErrorIs(t, err, api.ErrEmptyPassword)
		assert.Equal(t, "Please enter your password.", sessionErr.Message)
	})

	t.Run("failure leaves session intact", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.seedCookie(t)
		authAPI := mocks.NewAuthAPI(t)
		authAPI.On("Login", mock.Anything, mock.Anything).Return(testUser, nil).Once()
		authAPI.On("DeleteAccount", mock.Anything, "wrong").
			Return(&api.Error{StatusCode: http.StatusForbidden, Message: "Password does not match"}).Once()

		c := f.controller(t, authAPI)
		_, err := c.Login(ctx, models.Credentials{})
		require.NoError(t, err)

		err = c.DeleteAccount(ctx, "wrong")

		var sessionErr *session.Error
		require.ErrorAs(t, err, &sessionErr)
		assert.Equal(t, "Password does not match", sessionErr.Message)
		assert.True(t, c.State().IsAuthenticated)
		assert.Len(t, f.cookies.All(), 1)
		assert.True(t, f.hadSession(t))
	})

	t.Run("success cleans up like logout", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.seedCookie(t)
		require.NoError(t, f.tokens.SetToken(ctx, "fcm-token"))
		authAPI := mocks.NewAuthAPI(t)
		authAPI.On("Login", mock.Anything, mock.Anything).Return(testUser, nil).Once()
		authAPI.On("DeleteAccount", mock.Anything, "right").Return(nil).Once()
		authAPI.On("DeletePushToken", mock.Anything, "fcm-token").Return(errors.New("gone already")).Once()

		c := f.controller(t, authAPI)
		_, err := c.Login(ctx, models.Credentials{})
		require.NoError(t, err)

		require.NoError(t, c.DeleteAccount(ctx, "right"))

		assert.False(t, c.State().IsAuthenticated)
		assert.Empty(t, f.cookies.All())
		assert.False(t, f.hadSession(t))
	})
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	authAPI := mocks.NewAuthAPI(t)
	authAPI.On("Login", mock.Anything, mock.Anything).Return(testUser, nil).Once()
	authAPI.On("Logout", mock.Anything, "").Return(nil).Once()

	c := f.controller(t, authAPI)
	updates, cancel := c.Subscribe()

	initial := receive(t, updates)
	assert.False(t, initial.IsAuthenticated)

	_, err := c.Login(context.Background(), models.Credentials{})
	require.NoError(t, err)
	assert.True(t, receive(t, updates).IsAuthenticated)

	c.Logout(context.Background())
	assert.False(t, receive(t, updates).IsAuthenticated)

	cancel()
	cancel()
	_, open := <-updates
	assert.False(t, open)
}

func TestSubscribe_SlowReaderGetsLatest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	authAPI := mocks.NewAuthAPI(t)
	authAPI.On("Me", mock.Anything).Return(testUser, nil).Once()

	c := f.controller(t, authAPI)
	updates, cancel := c.Subscribe()
	defer cancel()

	c.CheckAuthStatus(context.Background())

	latest := receive(t, updates)
	assert.True(t, latest.IsAuthenticated)
	assert.False(t, latest.IsCheckingAuth)
}

func TestError(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := &session.Error{Op: "login", Message: "Something went wrong", Err: cause}
	assert.Equal(t, "login: Something went wrong: boom", err.Error())
	require.ErrorIs(t, err, cause)

	assert.Equal(t, "logout: bye", (&session.Error{Op: "logout", Message: "bye"}).Error())
}

func receive(t *testing.T, updates <-chan session.State) session.State {
	t.Helper()

	select {
	case state := <-updates:
		return state
	case <-time.After(time.Second):
		t.Fatal("no state update received")
		return session.State{}
	}
}

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

package client_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/oeee-cafe/oeee-client/internal/client"
	"github.com/oeee-cafe/oeee-client/internal/cookies"
	"github.com/oeee-cafe/oeee-client/internal/kv"
	"github.com/oeee-cafe/oeee-client/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 10, 16, 12, 0, 0, 0, time.UTC)

func newJar(t *testing.T, backing kv.Store, now func() time.Time) (*client.CookieJar, *cookies.Store) {
	t.Helper()

	logger := slog.New(slog.Default().Handler())
	records, err := cookies.NewRecordStore(context.Background(), logger, backing, nil, cookies.WithClock(now))
	require.NoError(t, err)
	store := cookies.NewStore(logger, records, nil, cookies.WithClock(now))

	return client.NewCookieJar(logger, store, client.WithJarClock(now)), store
}

func TestSetCookies(t *testing.T) {
	t.Parallel()

	reqURL, err := url.Parse("https://oeee.cafe:8443/login")
	require.NoError(t, err)

	jar, store := newJar(t, kv.NewMemoryStore(), func() time.Time { return fixedNow })
	jar.SetCookies(reqURL, []*http.Cookie{
		{Name: "sid", Value: "abc123", Secure: true, MaxAge: 3600},
		{Name: "lang", Value: "ko", Domain: ".oeee.cafe", Path: "/app", Expires: fixedNow.Add(90 * time.Second)},
		{Name: "session_only", Value: "x"},
		{Name: "gone", Value: "bye", MaxAge: -1},
		{Name: "stale", Value: "old", Expires: fixedNow.Add(-time.Minute)},
	})

	got := map[string]models.CookieRecord{}
	for _, rec := range store.All() {
		got[rec.Name] = rec
	}

	require.Contains(t, got, "sid")
	assert.Equal(t, "oeee.cafe", got["sid"].Domain)
	assert.Equal(t, "/", got["sid"].Path)
	assert.Equal(t, int64(3600), got["sid"].MaxAgeSeconds)
	assert.True(t, got["sid"].Secure)

	require.Contains(t, got, "lang")
	assert.Equal(t, "oeee.cafe", got["lang"].Domain)
	assert.Equal(t, "/app", got["lang"].Path)
	assert.Equal(t, int64(90), got["lang"].MaxAgeSeconds)

	require.Contains(t, got, "session_only")
	assert.Equal(t, int64(-1), got["session_only"].MaxAgeSeconds)

	assert.NotContains(t, got, "gone")
	assert.NotContains(t, got, "stale")

	assert.Contains(t, store.Snapshot(), "https://oeee.cafe")
}

func TestCookies(t *testing.T) {
	t.Parallel()

	reqURL, err := url.Parse("https://api.oeee.cafe/me")
	require.NoError(t, err)

	jar, _ := newJar(t, kv.NewMemoryStore(), func() time.Time { return fixedNow })
	jar.SetCookies(reqURL, []*http.Cookie{
		{Name: "sid", Value: "abc123", Secure: true, MaxAge: 60},
		{Name: "cleared", Value: ""},
	})

	actual := jar.Cookies(reqURL)
	require.Len(t, actual, 1)
	assert.Equal(t, "sid", actual[0].Name)
	assert.Equal(t, "abc123", actual[0].Value)
	assert.True(t, actual[0].Secure)
	assert.Equal(t, fixedNow.Add(60*time.Second), actual[0].Expires)

	assert.Empty(t, jar.Cookies(&url.URL{Scheme: "https", Host: "other.com"}))
}

func TestCookies_SecureOnlyOverHTTPS(t *testing.T) {
	t.Parallel()

	jar, _ := newJar(t, kv.NewMemoryStore(), func() time.Time { return fixedNow })
	jar.SetCookies(&url.URL{Scheme: "https", Host: "oeee.cafe"}, []*http.Cookie{
		{Name: "sid", Value: "abc123", Secure: true},
		{Name: "lang", Value: "ko"},
	})

	var sent []string
	for _, cookie := range jar.Cookies(&url.URL{Scheme: "http", Host: "oeee.cafe"}) {
		sent = append(sent, cookie.Name)
	}
	assert.Equal(t, []string{"lang"}, sent)

	assert.Len(t, jar.Cookies(&url.URL{Scheme: "https", Host: "oeee.cafe"}), 2)
}

func TestCookies_SessionCookieHasNoExpiry(t *testing.T) {
	t.Parallel()

	reqURL := &url.URL{Scheme: "https", Host: "oeee.cafe"}
	jar, _ := newJar(t, kv.NewMemoryStore(), func() time.Time { return fixedNow })
	jar.SetCookies(reqURL, []*http.Cookie{{Name: "sid", Value: "abc"}})

	actual := jar.Cookies(reqURL)
	require.Len(t, actual, 1)
	assert.True(t, actual[0].Expires.IsZero())
}

func TestCookieJar_SurvivesRestart(t *testing.T) {
	t.Parallel()

	backing := kv.NewMemoryStore()
	var seen []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc123", Path: "/", MaxAge: 3600, HttpOnly: true})
		case "/me":
			if c, err := r.Cookie("sid"); err == nil {
				seen = append(seen, c.Value)
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	jar, _ := newJar(t, backing, time.Now)
	httpClient := &http.Client{Jar: jar}
	resp, err := httpClient.Get(server.URL + "/login")
	require.NoError(t, err)
	resp.Body.Close()

	restarted, _ := newJar(t, backing, time.Now)
	httpClient = &http.Client{Jar: restarted}
	resp, err = httpClient.Get(server.URL + "/me")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"abc123"}, seen)
}

func TestCookieJar_ServerTombstone(t *testing.T) {
	t.Parallel()

	reqURL := &url.URL{Scheme: "https", Host: "oeee.cafe"}
	jar, store := newJar(t, kv.NewMemoryStore(), func() time.Time { return fixedNow })

	jar.SetCookies(reqURL, []*http.Cookie{{Name: "sid", Value: "abc"}})
	jar.SetCookies(reqURL, []*http.Cookie{{Name: "sid", Value: ""}})

	assert.Empty(t, jar.Cookies(reqURL))
	assert.Len(t, store.Get(reqURL), 1)
}

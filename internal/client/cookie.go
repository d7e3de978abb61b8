package client

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oeee-cafe/oeee-client/internal/lib/logger/sl"
	"github.com/oeee-cafe/oeee-client/internal/models"
)

// CookieStore is the persistent store behind CookieJar.
type CookieStore interface {
	Add(origin *url.URL, rec models.CookieRecord) error
	Get(origin *url.URL) []models.CookieRecord
}

// JarOption configures CookieJar.
type JarOption func(*CookieJar)

// WithJarClock replaces time.Now, for tests.
func WithJarClock(now func() time.Time) JarOption {
	return func(c *CookieJar) {
		c.now = now
	}
}

// CookieJar implements http.CookieJar on top of a persistent CookieStore.
// It keeps nothing in memory; every call goes through the store.
type CookieJar struct {
	log   *slog.Logger
	store CookieStore
	now   func() time.Time
}

// NewCookieJar initializes a cookie jar backed by store.
func NewCookieJar(log *slog.Logger, store CookieStore, opts ...JarOption) *CookieJar {
	jar := &CookieJar{
		log:   log,
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(jar)
	}

	return jar
}

// SetCookies stores cookies received in a response to u. Cookies without a
// Domain attribute are filed under the request host.
func (c *CookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	now := c.now()

	for _, cookie := range cookies {
		domain := strings.TrimPrefix(cookie.Domain, ".")
		if domain == "" {
			domain = u.Hostname()
		}
		path := cookie.Path
		if path == "" {
			path = "/"
		}

		rec := models.CookieRecord{
			Name:          cookie.Name,
			Value:         cookie.Value,
			Domain:        domain,
			Path:          path,
			MaxAgeSeconds: maxAgeSeconds(cookie, now),
			Secure:        cookie.Secure,
			StoredAt:      now,
		}

		origin := &url.URL{Scheme: u.Scheme, Host: domain}
		if err := c.store.Add(origin, rec); err != nil {
			c.log.Warn("Failed to store cookie", sl.Cookie(cookie.Name, domain), sl.Err(err))
		}
	}

	c.log.Debug("Set cookies", "host", u.Host, "count", len(cookies))
}

// Cookies returns the cookies to send with a request to u. Cookies with an
// empty value are tombstones and are never sent; Secure cookies only go over https.
func (c *CookieJar) Cookies(u *url.URL) []*http.Cookie {
	now := c.now()
	records := c.store.Get(u)
	secure := strings.EqualFold(u.Scheme, "https")

	cookies := make([]*http.Cookie, 0, len(records))
	for _, rec := range records {
		if rec.Value == "" || (rec.Secure && !secure) {
			continue
		}

		cookie := &http.Cookie{
			Name:   rec.Name,
			Value:  rec.Value,
			Domain: rec.Domain,
			Path:   rec.Path,
			Secure: rec.Secure,
		}
		if rec.MaxAgeSeconds > 0 {
			cookie.Expires = now.Add(time.Duration(rec.MaxAgeSeconds) * time.Second)
		}
		cookies = append(cookies, cookie)
	}

	return cookies
}

// maxAgeSeconds translates the expiry attributes of cookie. A Max-Age of zero
// or less deletes the cookie, so it is stored already expired.
func maxAgeSeconds(cookie *http.Cookie, now time.Time) int64 {
	switch {
	case cookie.MaxAge > 0:
		return int64(cookie.MaxAge)
	case cookie.MaxAge < 0:
		return 0
	case !cookie.Expires.IsZero():
		left := int64(cookie.Expires.Sub(now) / time.Second)
		if left < 0 {
			return 0
		}
		return left
	default:
		return -1
	}
}

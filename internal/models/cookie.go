package models

import "time"

// CookieRecord is one HTTP cookie as persisted by the cookie store.
type CookieRecord struct {
	Name   string
	Value  string
	Domain string // empty means "use the request host"
	Path   string
	// MaxAgeSeconds is the validity counted from StoredAt. Negative marks a session-only cookie.
	MaxAgeSeconds int64
	Secure        bool
	Version       int
	StoredAt      time.Time
}

// IsPersistent reports whether the record carries an expiry.
func (c CookieRecord) IsPersistent() bool {
	return c.MaxAgeSeconds >= 0
}

// ExpiresAt returns the absolute expiry. It is zero for session-only cookies.
func (c CookieRecord) ExpiresAt() time.Time {
	if !c.IsPersistent() {
		return time.Time{}
	}

	return c.StoredAt.Add(time.Duration(c.MaxAgeSeconds) * time.Second)
}

// HasExpired reports whether the record is past its expiry at now.
func (c CookieRecord) HasExpired(now time.Time) bool {
	if !c.IsPersistent() {
		return false
	}

	return !now.Before(c.ExpiresAt())
}

// RemainingSeconds returns the seconds of validity left at now, never below zero.
// Session-only records report -1.
func (c CookieRecord) RemainingSeconds(now time.Time) int64 {
	if !c.IsPersistent() {
		return -1
	}

	left := int64(c.ExpiresAt().Sub(now) / time.Second)
	if left < 0 {
		return 0
	}

	return left
}

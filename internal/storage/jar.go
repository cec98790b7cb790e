package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNoCookieJar is logged when a store is built without a backing jar.
var ErrNoCookieJar = errors.New("no cookie jar available")

// CookieJar is the minimal cookie surface: a "name=value; ..." string for
// reads and Set-Cookie style assignments for writes.
type CookieJar interface {
	Cookie(ctx context.Context) (string, error)
	SetCookie(ctx context.Context, assignment string) error
}

// CookieRecord is one cookie as reported by an enumerating jar.
type CookieRecord struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Domain  string    `json:"domain,omitempty"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// Expired reports whether the record has an expiry at or before now.
func (r CookieRecord) Expired(now time.Time) bool {
	return !r.Expires.IsZero() && !r.Expires.After(now)
}

// CookieEnumerator is implemented by jars that can list every cookie
// stored under a name, including the domain each one belongs to.
type CookieEnumerator interface {
	GetAll(ctx context.Context, name string) ([]CookieRecord, error)
}

// domainEqual compares cookie domains ignoring a leading dot and case. An
// unset domain only equals another unset domain.
func domainEqual(a, b string) bool {
	return normalizeDomain(a) == normalizeDomain(b)
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimPrefix(d, "."))
}

// splitCookieHeader returns the "name=value" entries of a cookie string.
func splitCookieHeader(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// cookieName returns the name part of a "name=value" entry.
func cookieName(entry string) string {
	if i := strings.IndexByte(entry, '='); i >= 0 {
		return entry[:i]
	}
	return entry
}

package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// MemoryJar keeps cookies in process the way a browser would: assignments
// replace cookies with the same name, domain and path, expired assignments
// delete them, and cookies of the same name on different domains coexist.
type MemoryJar struct {
	mu      sync.Mutex
	records []CookieRecord
	now     func() time.Time
}

// NewMemoryJar returns an empty jar.
func NewMemoryJar() *MemoryJar {
	return &MemoryJar{now: time.Now}
}

// Cookie renders live cookies as a cookie header, in insertion order.
func (j *MemoryJar) Cookie(ctx context.Context) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	entries := make([]string, 0, len(j.records))
	for _, r := range j.records {
		if r.Expired(now) {
			continue
		}
		entries = append(entries, r.Name+"="+r.Value)
	}
	return strings.Join(entries, "; "), nil
}

// SetCookie applies a Set-Cookie style assignment.
func (j *MemoryJar) SetCookie(ctx context.Context, assignment string) error {
	c, err := http.ParseSetCookie(assignment)
	if err != nil {
		return fmt.Errorf("parse cookie assignment: %w", err)
	}
	j.Add(CookieRecord{
		Name:    c.Name,
		Value:   c.Value,
		Domain:  normalizeDomain(c.Domain),
		Path:    c.Path,
		Expires: c.Expires,
	})
	return nil
}

// Add stores a record directly. It replaces a record with the same name,
// domain and path, and drops it when the new record is already expired.
func (j *MemoryJar) Add(rec CookieRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec.Domain = normalizeDomain(rec.Domain)
	kept := j.records[:0]
	for _, r := range j.records {
		if r.Name == rec.Name && r.Domain == rec.Domain && r.Path == rec.Path {
			continue
		}
		kept = append(kept, r)
	}
	j.records = kept
	if !rec.Expired(j.now()) {
		j.records = append(j.records, rec)
	}
}

// GetAll lists live cookies named name across all domains.
func (j *MemoryJar) GetAll(ctx context.Context, name string) ([]CookieRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	var out []CookieRecord
	for _, r := range j.records {
		if r.Name == name && !r.Expired(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

// HeaderOnlyJar hides the enumeration capability of a jar, leaving only
// the cookie string surface.
type HeaderOnlyJar struct {
	CookieJar
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/patrickwarner/openattribution/internal/db"
)

// DefaultMirrorTTL bounds how long session cookies live in the mirror.
const DefaultMirrorTTL = 30 * 24 * time.Hour

// RedisJar mirrors a visitor's cookies in Redis so attribution state can
// follow a device id across clients that cannot hold cookies themselves.
// Each cookie is one hash field keyed by name and domain.
type RedisJar struct {
	store      *db.RedisStore
	visitorID  string
	sessionTTL time.Duration
	now        func() time.Time
}

// NewRedisJar returns a jar for one visitor.
func NewRedisJar(store *db.RedisStore, visitorID string) *RedisJar {
	return &RedisJar{
		store:      store,
		visitorID:  visitorID,
		sessionTTL: DefaultMirrorTTL,
		now:        time.Now,
	}
}

func recordField(name, domain string) string {
	return name + "|" + normalizeDomain(domain)
}

// SetCookie stores or deletes the cookie described by assignment.
func (j *RedisJar) SetCookie(ctx context.Context, assignment string) error {
	c, err := http.ParseSetCookie(assignment)
	if err != nil {
		return fmt.Errorf("parse cookie assignment: %w", err)
	}
	rec := CookieRecord{
		Name:    c.Name,
		Value:   c.Value,
		Domain:  normalizeDomain(c.Domain),
		Path:    c.Path,
		Expires: c.Expires,
	}
	field := recordField(rec.Name, rec.Domain)
	now := j.now()
	if rec.Expired(now) {
		return j.store.DeleteCookie(ctx, j.visitorID, field)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cookie record: %w", err)
	}
	ttl := j.sessionTTL
	if !rec.Expires.IsZero() {
		ttl = rec.Expires.Sub(now)
	}
	return j.store.SaveCookie(ctx, j.visitorID, field, payload, ttl)
}

// GetAll lists live cookies named name, ordered by domain.
func (j *RedisJar) GetAll(ctx context.Context, name string) ([]CookieRecord, error) {
	records, err := j.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []CookieRecord
	for _, rec := range records {
		if rec.Name == name {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Cookie renders live cookies as a cookie header.
func (j *RedisJar) Cookie(ctx context.Context) (string, error) {
	records, err := j.load(ctx)
	if err != nil {
		return "", err
	}
	entries := make([]string, 0, len(records))
	for _, rec := range records {
		entries = append(entries, rec.Name+"="+rec.Value)
	}
	return strings.Join(entries, "; "), nil
}

func (j *RedisJar) load(ctx context.Context) ([]CookieRecord, error) {
	fields, err := j.store.LoadCookies(ctx, j.visitorID)
	if err != nil {
		return nil, err
	}
	now := j.now()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]CookieRecord, 0, len(keys))
	for _, k := range keys {
		var rec CookieRecord
		if err := json.Unmarshal([]byte(fields[k]), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal cookie record %s: %w", k, err)
		}
		if rec.Expired(now) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

package storage

import (
	"context"
	"strings"

	"github.com/patrickwarner/openattribution/internal/observability"

	"go.uber.org/zap"
)

// Read strategy names, also used as metric labels.
const (
	StrategyEnumeration = "enumeration"
	StrategyHeaderScan  = "header_scan"
)

// DuplicateResolver picks the right cookie when a name appears more than
// once in a cookie string. It receives the decoded JSON text of a
// candidate and returns true to select it.
type DuplicateResolver func(decoded string) bool

// cookieReader returns the raw (still encoded) value stored under a key.
type cookieReader interface {
	read(ctx context.Context, key string) (string, bool)
	strategy() string
}

// headerScanReader scans the jar's cookie string for key=value entries.
type headerScanReader struct {
	jar      CookieJar
	resolver DuplicateResolver
	logger   *zap.Logger
	metrics  observability.MetricsRegistry
}

func (r *headerScanReader) strategy() string { return StrategyHeaderScan }

func (r *headerScanReader) read(ctx context.Context, key string) (string, bool) {
	header, err := r.jar.Cookie(ctx)
	if err != nil {
		r.logger.Warn("read cookie header", zap.Error(err))
		r.metrics.IncrementStorageErrors("read")
		return "", false
	}

	prefix := key + "="
	var values []string
	for _, entry := range splitCookieHeader(header) {
		if strings.HasPrefix(entry, prefix) {
			values = append(values, entry[len(prefix):])
		}
	}
	if len(values) == 0 {
		return "", false
	}

	if len(values) > 1 {
		r.metrics.IncrementCookieDuplicates(StrategyHeaderScan)
		if r.resolver != nil {
			for _, v := range values {
				decoded, err := DecodeValue(v)
				if err != nil {
					r.logger.Debug("duplicate cookie undecodable", zap.String("key", key), zap.Error(err))
					r.metrics.IncrementCookieDecodeFailures("resolver")
					continue
				}
				if r.resolver(decoded) {
					return v, true
				}
			}
		}
	}
	return values[0], true
}

// enumerationReader lists records through a CookieEnumerator and keeps the
// ones whose domain matches the store's configured domain. A failing
// enumeration falls back to the header scan for that read.
type enumerationReader struct {
	enum     CookieEnumerator
	domain   string
	fallback cookieReader
	logger   *zap.Logger
	metrics  observability.MetricsRegistry
}

func (r *enumerationReader) strategy() string { return StrategyEnumeration }

func (r *enumerationReader) read(ctx context.Context, key string) (string, bool) {
	records, err := r.enum.GetAll(ctx, key)
	if err != nil {
		r.logger.Warn("enumerate cookies, falling back to header scan", zap.String("key", key), zap.Error(err))
		r.metrics.IncrementStorageErrors("enumerate")
		return r.fallback.read(ctx, key)
	}

	var candidates, matches []CookieRecord
	for _, rec := range records {
		if rec.Name != key {
			continue
		}
		candidates = append(candidates, rec)
		if domainEqual(rec.Domain, r.domain) {
			matches = append(matches, rec)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	// Host-only cookies carry no domain to match; the cookie string still
	// exposes them.
	if len(matches) == 0 {
		return r.fallback.read(ctx, key)
	}
	if len(candidates) > 1 {
		r.logger.Debug("duplicate cookies for key", zap.String("key", key), zap.Int("count", len(candidates)))
		r.metrics.IncrementCookieDuplicates(StrategyEnumeration)
	}
	return matches[0].Value, true
}

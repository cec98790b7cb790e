package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/openattribution/internal/observability"
)

const (
	testKeyPrefix = "ATTR_TEST_"
	testValueTTL  = time.Minute
	probeKey      = "ATTR_PROBE"
)

// Options configures how cookies are written and read.
type Options struct {
	// ExpirationDays sets the expires attribute. Zero writes session cookies.
	ExpirationDays int
	Domain         string
	Secure         bool
	SameSite       string
	// DuplicateResolver selects among same-name cookies when the jar can
	// only provide a cookie string.
	DuplicateResolver DuplicateResolver
}

// CookieStore is a best-effort key/value store persisted as cookies. Values
// of type T are stored as JSON. No method returns an error: failures are
// logged and counted, and reads degrade to a miss.
type CookieStore[T any] struct {
	jar     CookieJar
	opts    Options
	reader  cookieReader
	logger  *zap.Logger
	metrics observability.MetricsRegistry
	now     func() time.Time

	mu      sync.Mutex
	written map[string]struct{}
}

// NewCookieStore builds a store over jar. When jar also implements
// CookieEnumerator and answers a probe, reads use enumeration; otherwise
// they scan the cookie string. A nil jar yields a disabled store.
func NewCookieStore[T any](ctx context.Context, jar CookieJar, opts Options, logger *zap.Logger, metrics observability.MetricsRegistry) *CookieStore[T] {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	s := &CookieStore[T]{
		jar:     jar,
		opts:    opts,
		logger:  observability.ComponentLogger(logger, "cookie_store"),
		metrics: metrics,
		now:     time.Now,
		written: make(map[string]struct{}),
	}
	if jar == nil {
		s.logger.Warn("cookie store disabled", zap.Error(ErrNoCookieJar))
		return s
	}
	s.reader = s.selectReader(ctx)
	s.metrics.IncrementStorageBackend(s.reader.strategy())
	return s
}

func (s *CookieStore[T]) selectReader(ctx context.Context) cookieReader {
	scan := &headerScanReader{
		jar:      s.jar,
		resolver: s.opts.DuplicateResolver,
		logger:   s.logger,
		metrics:  s.metrics,
	}
	enum, ok := s.jar.(CookieEnumerator)
	if !ok {
		return scan
	}
	if _, err := enum.GetAll(ctx, probeKey); err != nil {
		s.logger.Info("cookie enumeration unavailable", zap.Error(err))
		return scan
	}
	return &enumerationReader{
		enum:     enum,
		domain:   s.opts.Domain,
		fallback: scan,
		logger:   s.logger,
		metrics:  s.metrics,
	}
}

// Strategy names the read strategy in use, or "" for a disabled store.
func (s *CookieStore[T]) Strategy() string {
	if s.reader == nil {
		return ""
	}
	return s.reader.strategy()
}

// IsEnabled writes a random value under a throwaway key, reads it back and
// deletes it. It reports whether the round trip preserved the value.
func (s *CookieStore[T]) IsEnabled(ctx context.Context) bool {
	if s == nil || s.jar == nil {
		return false
	}
	testValue := uuid.NewString()
	key := testKeyPrefix + testValue[:8]

	if !s.write(ctx, key, testValue, s.now().Add(testValueTTL)) {
		return false
	}
	defer s.Remove(ctx, key)

	decoded, ok := s.readDecoded(ctx, key)
	if !ok {
		return false
	}
	var got string
	if err := json.Unmarshal([]byte(decoded), &got); err != nil {
		return false
	}
	return got == testValue
}

// Get returns the value stored under key.
func (s *CookieStore[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	decoded, ok := s.readDecoded(ctx, key)
	if !ok || decoded == "null" {
		return zero, false
	}
	var v T
	if err := json.Unmarshal([]byte(decoded), &v); err != nil {
		s.logger.Error("cookie value is not valid JSON", zap.String("key", key), zap.Error(err))
		s.metrics.IncrementCookieDecodeFailures("json")
		return zero, false
	}
	return v, true
}

// GetRaw returns the stored, still encoded cookie value.
func (s *CookieStore[T]) GetRaw(ctx context.Context, key string) (string, bool) {
	if s == nil || s.reader == nil {
		return "", false
	}
	return s.reader.read(ctx, key)
}

func (s *CookieStore[T]) readDecoded(ctx context.Context, key string) (string, bool) {
	raw, ok := s.GetRaw(ctx, key)
	if !ok {
		return "", false
	}
	decoded, err := DecodeValue(raw)
	if err != nil {
		s.logger.Error("decode cookie", zap.String("key", key), zap.Error(err))
		s.metrics.IncrementCookieDecodeFailures("encoding")
		return "", false
	}
	return decoded, true
}

// Set stores value under key. A nil value deletes the cookie.
func (s *CookieStore[T]) Set(ctx context.Context, key string, value *T) {
	if s == nil || s.jar == nil {
		return
	}
	if value == nil {
		s.Remove(ctx, key)
		return
	}
	var expires time.Time
	if s.opts.ExpirationDays != 0 {
		expires = s.now().Add(time.Duration(s.opts.ExpirationDays) * 24 * time.Hour)
	}
	if s.write(ctx, key, *value, expires) {
		s.mu.Lock()
		s.written[key] = struct{}{}
		s.mu.Unlock()
	}
}

// Remove expires the cookie stored under key.
func (s *CookieStore[T]) Remove(ctx context.Context, key string) {
	if s == nil || s.jar == nil {
		return
	}
	s.write(ctx, key, nil, s.now().Add(-24*time.Hour))
	s.mu.Lock()
	delete(s.written, key)
	s.mu.Unlock()
}

// Reset removes every key written through this store.
func (s *CookieStore[T]) Reset(ctx context.Context) {
	if s == nil {
		return
	}
	s.mu.Lock()
	keys := make([]string, 0, len(s.written))
	for k := range s.written {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	for _, k := range keys {
		s.Remove(ctx, k)
	}
}

func (s *CookieStore[T]) write(ctx context.Context, key string, value any, expires time.Time) bool {
	assignment, err := s.assignment(key, value, expires)
	if err != nil {
		s.logger.Error("build cookie", zap.String("key", key), zap.Error(err))
		s.metrics.IncrementStorageErrors("set")
		return false
	}
	if err := s.jar.SetCookie(ctx, assignment); err != nil {
		s.logger.Error("write cookie", zap.String("key", key), zap.Error(err))
		s.metrics.IncrementStorageErrors("set")
		return false
	}
	return true
}

// assignment renders name=payload[; expires][; path=/][; domain][; Secure][; SameSite].
func (s *CookieStore[T]) assignment(key string, value any, expires time.Time) (string, error) {
	payload, err := EncodeValue(value)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(payload)
	if !expires.IsZero() {
		b.WriteString("; expires=")
		b.WriteString(expires.UTC().Format(http.TimeFormat))
	}
	b.WriteString("; path=/")
	if s.opts.Domain != "" {
		b.WriteString("; domain=")
		b.WriteString(s.opts.Domain)
	}
	if s.opts.Secure {
		b.WriteString("; Secure")
	}
	if s.opts.SameSite != "" {
		b.WriteString("; SameSite=")
		b.WriteString(s.opts.SameSite)
	}
	return b.String(), nil
}

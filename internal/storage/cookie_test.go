package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/patrickwarner/openattribution/internal/observability"
)

type campaign map[string]string

func newTestStore(t *testing.T, jar CookieJar, opts Options) (*CookieStore[campaign], *observability.MockMetricsRegistry) {
	t.Helper()
	metrics := observability.NewMockMetricsRegistry()
	return NewCookieStore[campaign](context.Background(), jar, opts, zap.NewNop(), metrics), metrics
}

func TestCookieStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, metrics := newTestStore(t, NewMemoryJar(), Options{ExpirationDays: 365})
	assert.Equal(t, StrategyEnumeration, store.Strategy())
	assert.Equal(t, 1, metrics.Count("storage_backend:enumeration"))

	_, ok := store.Get(ctx, "ATTR_MKTG_key")
	assert.False(t, ok)

	value := campaign{"utm_source": "google", "utm_term": ""}
	store.Set(ctx, "ATTR_MKTG_key", &value)

	got, ok := store.Get(ctx, "ATTR_MKTG_key")
	require.True(t, ok)
	assert.Equal(t, value, got)

	store.Remove(ctx, "ATTR_MKTG_key")
	_, ok = store.Get(ctx, "ATTR_MKTG_key")
	assert.False(t, ok)
}

func TestCookieStoreSetNilRemoves(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, NewMemoryJar(), Options{})
	v := campaign{"a": "b"}
	store.Set(ctx, "k", &v)
	store.Set(ctx, "k", nil)
	_, ok := store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestCookieStoreIsEnabled(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar()
	store, _ := newTestStore(t, jar, Options{})
	assert.True(t, store.IsEnabled(ctx))

	header, err := jar.Cookie(ctx)
	require.NoError(t, err)
	assert.NotContains(t, header, testKeyPrefix, "test cookie must be removed")

	headerOnly, _ := newTestStore(t, HeaderOnlyJar{NewMemoryJar()}, Options{})
	assert.Equal(t, StrategyHeaderScan, headerOnly.Strategy())
	assert.True(t, headerOnly.IsEnabled(ctx))
}

type failingJar struct{}

func (failingJar) Cookie(ctx context.Context) (string, error) { return "", nil }
func (failingJar) SetCookie(ctx context.Context, assignment string) error {
	return errors.New("cookies blocked")
}

type blackholeJar struct{}

func (blackholeJar) Cookie(ctx context.Context) (string, error)             { return "", nil }
func (blackholeJar) SetCookie(ctx context.Context, assignment string) error { return nil }

func TestCookieStoreDisabled(t *testing.T) {
	ctx := context.Background()

	store, _ := newTestStore(t, nil, Options{})
	assert.False(t, store.IsEnabled(ctx))
	assert.Equal(t, "", store.Strategy())
	v := campaign{"a": "b"}
	store.Set(ctx, "k", &v)
	_, ok := store.Get(ctx, "k")
	assert.False(t, ok)

	failing, metrics := newTestStore(t, failingJar{}, Options{})
	assert.False(t, failing.IsEnabled(ctx))
	assert.Equal(t, 1, metrics.Count("storage_errors:set"))

	blackhole, _ := newTestStore(t, blackholeJar{}, Options{})
	assert.False(t, blackhole.IsEnabled(ctx))
}

func TestCookieStoreDomainSelection(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar()

	apex, err := EncodeValue(campaign{"utm_source": "apex"})
	require.NoError(t, err)
	sub, err := EncodeValue(campaign{"utm_source": "sub"})
	require.NoError(t, err)
	jar.Add(CookieRecord{Name: "k", Value: apex, Domain: ".example.com", Path: "/"})
	jar.Add(CookieRecord{Name: "k", Value: sub, Domain: "www.example.com", Path: "/"})

	store, metrics := newTestStore(t, jar, Options{Domain: "www.example.com"})
	got, ok := store.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "sub", got["utm_source"])
	assert.Equal(t, 1, metrics.Count("cookie_duplicates:enumeration"), "duplicates are counted before domain filtering")

	store, _ = newTestStore(t, jar, Options{Domain: "example.com"})
	got, ok = store.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "apex", got["utm_source"])

	store, _ = newTestStore(t, jar, Options{Domain: "other.com"})
	got, ok = store.Get(ctx, "k")
	require.True(t, ok, "no domain match falls back to the cookie string")
	assert.Equal(t, "apex", got["utm_source"])

	_, ok = store.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestCookieStoreHostOnlyCookieWithDomain(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar()

	payload, err := EncodeValue(campaign{"utm_source": "host"})
	require.NoError(t, err)
	jar.Add(CookieRecord{Name: "k", Value: payload, Path: "/"})

	store, metrics := newTestStore(t, jar, Options{Domain: "example.com"})
	require.Equal(t, StrategyEnumeration, store.Strategy())
	got, ok := store.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "host", got["utm_source"])
	assert.Zero(t, metrics.Count("cookie_duplicates:enumeration"))
}

func TestCookieStoreHeaderScanDuplicates(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar()

	first, err := EncodeValue(campaign{"utm_source": "first"})
	require.NoError(t, err)
	second, err := EncodeValue(campaign{"utm_source": "second"})
	require.NoError(t, err)
	jar.Add(CookieRecord{Name: "k", Value: first, Domain: "example.com", Path: "/"})
	jar.Add(CookieRecord{Name: "k", Value: second, Domain: "www.example.com", Path: "/"})

	store, metrics := newTestStore(t, HeaderOnlyJar{jar}, Options{})
	got, ok := store.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "first", got["utm_source"])
	assert.Equal(t, 1, metrics.Count("cookie_duplicates:header_scan"))

	resolver := func(decoded string) bool { return strings.Contains(decoded, "second") }
	store, _ = newTestStore(t, HeaderOnlyJar{jar}, Options{DuplicateResolver: resolver})
	got, ok = store.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "second", got["utm_source"])
}

func TestCookieStoreInvalidPayloads(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar()
	jar.Add(CookieRecord{Name: "bad_json", Value: base64.StdEncoding.EncodeToString([]byte(encodeURIComponent("{bad")))})
	jar.Add(CookieRecord{Name: "bad_encoding", Value: "!!!"})

	core, logs := observer.New(zapcore.ErrorLevel)
	metrics := observability.NewMockMetricsRegistry()
	store := NewCookieStore[campaign](ctx, jar, Options{}, zap.New(core), metrics)

	_, ok := store.Get(ctx, "bad_json")
	assert.False(t, ok)
	assert.Equal(t, 1, metrics.Count("cookie_decode_failures:json"))

	_, ok = store.Get(ctx, "bad_encoding")
	assert.False(t, ok)
	assert.Equal(t, 1, metrics.Count("cookie_decode_failures:encoding"))

	assert.Equal(t, 2, logs.Len())
}

type flakyEnumerator struct {
	*MemoryJar
}

func (f flakyEnumerator) GetAll(ctx context.Context, name string) ([]CookieRecord, error) {
	if name == probeKey {
		return nil, nil
	}
	return nil, errors.New("enumeration failed")
}

func TestCookieStoreEnumerationFallback(t *testing.T) {
	ctx := context.Background()
	store, metrics := newTestStore(t, flakyEnumerator{NewMemoryJar()}, Options{})
	require.Equal(t, StrategyEnumeration, store.Strategy())

	v := campaign{"gclid": "abc"}
	store.Set(ctx, "k", &v)
	got, ok := store.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, v, got)
	assert.Equal(t, 1, metrics.Count("storage_errors:enumerate"))
}

func TestCookieStoreReset(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar()
	jar.Add(CookieRecord{Name: "foreign", Value: "x"})
	store, _ := newTestStore(t, jar, Options{})

	a, b := campaign{"a": "1"}, campaign{"b": "2"}
	store.Set(ctx, "a", &a)
	store.Set(ctx, "b", &b)
	store.Reset(ctx)

	_, okA := store.Get(ctx, "a")
	_, okB := store.Get(ctx, "b")
	assert.False(t, okA)
	assert.False(t, okB)

	header, err := jar.Cookie(ctx)
	require.NoError(t, err)
	assert.Equal(t, "foreign=x", header)
}

func TestCookieStoreAssignment(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryJar(), Options{Domain: "example.com", Secure: true, SameSite: "Lax"})
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	got, err := store.assignment("k", "v", expires)
	require.NoError(t, err)
	payload, err := EncodeValue("v")
	require.NoError(t, err)
	assert.Equal(t, "k="+payload+"; expires=Wed, 02 Jan 2030 03:04:05 GMT; path=/; domain=example.com; Secure; SameSite=Lax", got)

	session, err := store.assignment("k", "v", time.Time{})
	require.NoError(t, err)
	assert.NotContains(t, session, "expires=")
}

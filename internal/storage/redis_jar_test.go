package storage

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/openattribution/internal/db"
)

func newTestRedisJar(t *testing.T, visitor string) (*RedisJar, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisJar(&db.RedisStore{Client: client}, visitor), mr
}

func TestRedisJarSetAndEnumerate(t *testing.T) {
	ctx := context.Background()
	jar, mr := newTestRedisJar(t, "device-1")

	expires := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	require.NoError(t, jar.SetCookie(ctx, "k=v1; expires="+expires+"; path=/; domain=.example.com"))
	require.NoError(t, jar.SetCookie(ctx, "k=v2; path=/; domain=www.example.com"))
	require.NoError(t, jar.SetCookie(ctx, "other=x; path=/"))

	records, err := jar.GetAll(ctx, "k")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "example.com", records[0].Domain)
	assert.Equal(t, "v1", records[0].Value)
	assert.Equal(t, "www.example.com", records[1].Domain)

	header, err := jar.Cookie(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k=v1; k=v2; other=x", header)

	// The session cookie extends the jar lifetime to the mirror TTL.
	assert.Equal(t, DefaultMirrorTTL, mr.TTL("cookiejar:device-1"))
}

func TestRedisJarDelete(t *testing.T) {
	ctx := context.Background()
	jar, _ := newTestRedisJar(t, "device-2")

	require.NoError(t, jar.SetCookie(ctx, "k=v; path=/"))
	require.NoError(t, jar.SetCookie(ctx, "k=null; expires="+pastExpiry()+"; path=/"))

	records, err := jar.GetAll(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRedisJarSkipsExpiredRecords(t *testing.T) {
	ctx := context.Background()
	jar, _ := newTestRedisJar(t, "device-3")

	require.NoError(t, jar.SetCookie(ctx, "k=v; expires="+time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)+"; path=/"))
	jar.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	records, err := jar.GetAll(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRedisJarIsolatesVisitors(t *testing.T) {
	ctx := context.Background()
	jar, _ := newTestRedisJar(t, "device-a")
	other := NewRedisJar(jar.store, "device-b")

	require.NoError(t, jar.SetCookie(ctx, "k=v; path=/"))
	header, err := other.Cookie(ctx)
	require.NoError(t, err)
	assert.Empty(t, header)
}

func TestCookieStoreOverRedisJar(t *testing.T) {
	ctx := context.Background()
	jar, _ := newTestRedisJar(t, "device-4")

	store := NewCookieStore[campaign](ctx, jar, Options{ExpirationDays: 365}, zap.NewNop(), nil)
	assert.Equal(t, StrategyEnumeration, store.Strategy())
	require.True(t, store.IsEnabled(ctx))

	v := campaign{"fbclid": "abc"}
	store.Set(ctx, "ATTR_MKTG_key", &v)
	got, ok := store.Get(ctx, "ATTR_MKTG_key")
	require.True(t, ok)
	assert.Equal(t, v, got)
}

func TestRedisJarUnavailable(t *testing.T) {
	ctx := context.Background()
	jar := NewRedisJar(nil, "device-5")
	_, err := jar.GetAll(ctx, "k")
	assert.ErrorIs(t, err, db.ErrNilRedisStore)

	store := NewCookieStore[campaign](ctx, jar, Options{}, zap.NewNop(), nil)
	assert.Equal(t, StrategyHeaderScan, store.Strategy())
	assert.False(t, store.IsEnabled(ctx))
}

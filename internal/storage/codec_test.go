package storage

import (
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeURIComponent(t *testing.T) {
	tests := map[string]string{
		"abc-_.!~*'()":   "abc-_.!~*'()",
		`{"a":"b c"}`:    "%7B%22a%22%3A%22b%20c%22%7D",
		"https://x.com/": "https%3A%2F%2Fx.com%2F",
		"é":              "%C3%A9",
		"a+b":            "a%2Bb",
	}
	for in, want := range tests {
		assert.Equal(t, want, encodeURIComponent(in), in)
		back, err := decodeURIComponent(want)
		require.NoError(t, err)
		assert.Equal(t, in, back)
	}
}

func TestEncodeDecodeValue(t *testing.T) {
	raw, err := EncodeValue(map[string]string{"utm_source": "google", "referrer": "https://a.com/?q=1&r=2"})
	require.NoError(t, err)

	decoded, err := DecodeValue(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"utm_source":"google","referrer":"https://a.com/?q=1&r=2"}`, decoded)
}

func TestDecodeValueDoubleEncoded(t *testing.T) {
	raw, err := EncodeValue(map[string]string{"gclid": "abc"})
	require.NoError(t, err)

	// Some server middlewares URI-encode the base64 payload again.
	legacy := url.QueryEscape(raw)
	require.NotEqual(t, raw, legacy)

	decoded, err := DecodeValue(legacy)
	require.NoError(t, err)
	assert.JSONEq(t, `{"gclid":"abc"}`, decoded)
}

func TestDecodeValueUnpadded(t *testing.T) {
	payload := base64.RawStdEncoding.EncodeToString([]byte("%22x%22"))
	decoded, err := DecodeValue(payload)
	require.NoError(t, err)
	assert.Equal(t, `"x"`, decoded)
}

func TestDecodeValueUndecodable(t *testing.T) {
	_, err := DecodeValue("!!!")
	assert.ErrorIs(t, err, ErrUndecodable)
}

package storage

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const upperhex = "0123456789ABCDEF"

// encodeURIComponent percent-encodes every byte outside the unreserved set
// A-Z a-z 0-9 - _ . ! ~ * ' ( ). Browser clients write cookie payloads with
// this exact escaping, so values must stay byte-compatible with them.
func encodeURIComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

// decodeURIComponent reverses encodeURIComponent. A '+' is kept literally.
func decodeURIComponent(s string) (string, error) {
	return url.PathUnescape(s)
}

func decodeBase64(s string) (string, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return string(b), nil
	}
	b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeValue serializes v into the cookie payload format:
// base64(encodeURIComponent(json(v))).
func EncodeValue(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal cookie value: %w", err)
	}
	return base64.StdEncoding.EncodeToString([]byte(encodeURIComponent(string(raw)))), nil
}

// ErrUndecodable is returned when no decoding scheme accepts a cookie value.
var ErrUndecodable = errors.New("cookie value undecodable")

// DecodeValue returns the JSON text carried by a cookie payload. Values
// written by this package decode as base64 then URI. Some server cookie
// middlewares URI-encode values again on their way out, so the second
// scheme strips that layer first.
func DecodeValue(raw string) (string, error) {
	if s, err := decodeDefault(raw); err == nil {
		return s, nil
	}
	if s, err := decodeDoubleEncoded(raw); err == nil {
		return s, nil
	}
	return "", ErrUndecodable
}

func decodeDefault(raw string) (string, error) {
	b64, err := decodeBase64(raw)
	if err != nil {
		return "", err
	}
	return decodeURIComponent(b64)
}

func decodeDoubleEncoded(raw string) (string, error) {
	outer, err := decodeURIComponent(raw)
	if err != nil {
		return "", err
	}
	return decodeDefault(outer)
}

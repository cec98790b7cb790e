package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInternalReferrerPolicy(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		want     InternalReferrerPolicy
		warnings int
	}{
		{"nil", nil, InternalReferrersIncluded, 0},
		{"false", false, InternalReferrersIncluded, 0},
		{"true", true, InternalReferrersAlways, 0},
		{"always string", "always", InternalReferrersAlways, 0},
		{"ifEmptyCampaign string", "ifEmptyCampaign", InternalReferrersIfEmptyCampaign, 0},
		{"empty string", "", InternalReferrersIncluded, 0},
		{"true string", "true", InternalReferrersAlways, 0},
		{"condition map", map[string]any{"condition": "ifEmptyCampaign"}, InternalReferrersIfEmptyCampaign, 0},
		{"string map", map[string]string{"condition": "always"}, InternalReferrersAlways, 0},
		{"unknown condition", map[string]any{"condition": "sometimes"}, InternalReferrersAlways, 1},
		{"missing condition", map[string]any{"other": "x"}, InternalReferrersAlways, 1},
		{"non-string condition", map[string]any{"condition": 3}, InternalReferrersAlways, 1},
		{"unsupported type", 42, InternalReferrersAlways, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings := ParseInternalReferrerPolicy(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Len(t, warnings, tt.warnings)
		})
	}
}

func TestInternalReferrerPolicyString(t *testing.T) {
	assert.Equal(t, "disabled", InternalReferrersIncluded.String())
	assert.Equal(t, "always", InternalReferrersAlways.String())
	assert.Equal(t, "ifEmptyCampaign", InternalReferrersIfEmptyCampaign.String())
	assert.False(t, InternalReferrersIncluded.Enabled())
	assert.True(t, InternalReferrersIfEmptyCampaign.Enabled())
}

func TestParseReferrerMatcher(t *testing.T) {
	exact, err := ParseReferrerMatcher("checkout.example.com")
	require.NoError(t, err)
	assert.True(t, exact.Match("checkout.example.com"))
	assert.False(t, exact.Match("www.checkout.example.com"))
	assert.Equal(t, "checkout.example.com", exact.String())

	pattern, err := ParseReferrerMatcher(`/\.partner\.com$/`)
	require.NoError(t, err)
	assert.True(t, pattern.Match("shop.partner.com"))
	assert.False(t, pattern.Match("partner.com.evil.io"))
	assert.Equal(t, `/\.partner\.com$/`, pattern.String())

	_, err = ParseReferrerMatcher("/[unclosed/")
	assert.Error(t, err)
}

func TestRawAttributionOptionsBuild(t *testing.T) {
	raw := RawAttributionOptions{
		ExcludeReferrers:          []string{"a.example.com", "/[bad/", `/^b\./`},
		ExcludeInternalReferrers:  map[string]any{"condition": "bogus"},
		ResetSessionOnNewCampaign: true,
	}
	opts := raw.Build()

	require.Len(t, opts.ExcludeReferrers, 2)
	assert.Equal(t, InternalReferrersAlways, opts.ExcludeInternalReferrers)
	assert.Len(t, opts.Warnings, 2)
	assert.True(t, opts.ResetSessionOnNewCampaign)
	assert.Equal(t, DefaultInitialEmptyValue, opts.EmptyValue())

	none := "none"
	opts = RawAttributionOptions{InitialEmptyValue: &none}.Build()
	assert.Equal(t, "none", opts.EmptyValue())

	empty := ""
	opts = RawAttributionOptions{InitialEmptyValue: &empty}.Build()
	assert.Equal(t, "", opts.EmptyValue())
	assert.Empty(t, opts.Warnings)
	assert.Equal(t, InternalReferrersIncluded, opts.ExcludeInternalReferrers)
}

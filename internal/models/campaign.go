package models

// Campaign key families. The order of the combined list is the order in
// which event properties are emitted.
var (
	UTMKeys = []string{
		"utm_campaign",
		"utm_content",
		"utm_id",
		"utm_medium",
		"utm_source",
		"utm_term",
	}

	ReferrerKeys = []string{
		KeyReferrer,
		KeyReferringDomain,
	}

	// ClickIDKeys lists the ad-network click identifiers tracked as campaign
	// parameters.
	ClickIDKeys = []string{
		"dclid",       // Google Display & Video
		"fbclid",      // Meta
		"gbraid",      // Google Ads (iOS web-to-app)
		"gclid",       // Google Ads
		"ko_click_id", // Kochava
		"li_fat_id",   // LinkedIn
		"msclkid",     // Microsoft Advertising
		"rdt_cid",     // Reddit
		"ttclid",      // TikTok
		"twclid",      // X / Twitter
		"wbraid",      // Google Ads (iOS app-to-web)
	}
)

const (
	KeyReferrer        = "referrer"
	KeyReferringDomain = "referring_domain"
)

var campaignKeys = func() []string {
	keys := make([]string, 0, len(UTMKeys)+len(ReferrerKeys)+len(ClickIDKeys))
	keys = append(keys, UTMKeys...)
	keys = append(keys, ReferrerKeys...)
	keys = append(keys, ClickIDKeys...)
	return keys
}()

// CampaignKeys returns the canonical campaign keys. The returned slice is a
// copy and may be modified by the caller.
func CampaignKeys() []string {
	out := make([]string, len(campaignKeys))
	copy(out, campaignKeys)
	return out
}

// IsCampaignKey reports whether key belongs to the canonical key set.
func IsCampaignKey(key string) bool {
	for _, k := range campaignKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Campaign is a snapshot of the attribution parameters observed during one
// attribution cycle. A missing key means the parameter was not observed; a
// key holding "" was observed but empty. Snapshots are treated as immutable
// once built.
type Campaign map[string]string

// Value returns the value stored for key and whether it is present.
func (c Campaign) Value(key string) (string, bool) {
	v, ok := c[key]
	return v, ok
}

// Get returns the value for key, or "" when absent.
func (c Campaign) Get(key string) string {
	return c[key]
}

// ReferringDomain returns the referring_domain value.
func (c Campaign) ReferringDomain() string {
	return c[KeyReferringDomain]
}

// IsEmpty reports whether every value is falsy. An empty campaign is direct
// traffic.
func (c Campaign) IsEmpty() bool {
	for _, v := range c {
		if v != "" {
			return false
		}
	}
	return true
}

// WithoutReferrer returns a copy without the referrer fields.
func (c Campaign) WithoutReferrer() Campaign {
	out := make(Campaign, len(c))
	for k, v := range c {
		if k == KeyReferrer || k == KeyReferringDomain {
			continue
		}
		out[k] = v
	}
	return out
}

// KnownKeys returns a copy holding only canonical campaign keys. A nil
// campaign stays nil.
func (c Campaign) KnownKeys() Campaign {
	if c == nil {
		return nil
	}
	out := make(Campaign, len(c))
	for k, v := range c {
		if IsCampaignKey(k) {
			out[k] = v
		}
	}
	return out
}

// Clone returns a shallow copy. A nil campaign clones to nil.
func (c Campaign) Clone() Campaign {
	if c == nil {
		return nil
	}
	out := make(Campaign, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Equal reports whether both snapshots hold exactly the same keys and values.
func (c Campaign) Equal(other Campaign) bool {
	if len(c) != len(other) {
		return false
	}
	for k, v := range c {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

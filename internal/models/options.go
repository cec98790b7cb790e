package models

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultInitialEmptyValue is written to initial_* properties when a
// campaign parameter was never observed.
const DefaultInitialEmptyValue = "EMPTY"

// InternalReferrerPolicy controls whether referrers on the tracked site
// itself can start a new campaign.
type InternalReferrerPolicy int

const (
	// InternalReferrersIncluded treats internal referrers like any other.
	InternalReferrersIncluded InternalReferrerPolicy = iota
	// InternalReferrersAlways never lets an internal referrer start a campaign.
	InternalReferrersAlways
	// InternalReferrersIfEmptyCampaign ignores an internal referrer only
	// when no UTM or click-id parameter accompanies it.
	InternalReferrersIfEmptyCampaign
)

// Condition strings accepted in configuration.
const (
	ConditionAlways          = "always"
	ConditionIfEmptyCampaign = "ifEmptyCampaign"
)

func (p InternalReferrerPolicy) String() string {
	switch p {
	case InternalReferrersAlways:
		return ConditionAlways
	case InternalReferrersIfEmptyCampaign:
		return ConditionIfEmptyCampaign
	default:
		return "disabled"
	}
}

// Enabled reports whether internal referrers are excluded in any way.
func (p InternalReferrerPolicy) Enabled() bool {
	return p != InternalReferrersIncluded
}

// ParseInternalReferrerPolicy validates the configured shape of the
// exclude-internal-referrers option. Accepted shapes are a bool, nil, one of
// the condition strings, or a map holding a "condition" entry. Anything else
// resolves to InternalReferrersAlways and produces a warning, so a malformed
// value still excludes internal referrers.
func ParseInternalReferrerPolicy(raw any) (InternalReferrerPolicy, []string) {
	switch v := raw.(type) {
	case nil:
		return InternalReferrersIncluded, nil
	case bool:
		if v {
			return InternalReferrersAlways, nil
		}
		return InternalReferrersIncluded, nil
	case string:
		return parseCondition(v)
	case map[string]any:
		cond, ok := v["condition"]
		if !ok {
			return InternalReferrersAlways, []string{"excludeInternalReferrers: missing condition, defaulting to always"}
		}
		s, ok := cond.(string)
		if !ok {
			return InternalReferrersAlways, []string{fmt.Sprintf("excludeInternalReferrers: condition must be a string, got %T; defaulting to always", cond)}
		}
		return parseCondition(s)
	case map[string]string:
		cond, ok := v["condition"]
		if !ok {
			return InternalReferrersAlways, []string{"excludeInternalReferrers: missing condition, defaulting to always"}
		}
		return parseCondition(cond)
	default:
		return InternalReferrersAlways, []string{fmt.Sprintf("excludeInternalReferrers: unsupported type %T, defaulting to always", raw)}
	}
}

func parseCondition(s string) (InternalReferrerPolicy, []string) {
	switch strings.TrimSpace(s) {
	case ConditionAlways:
		return InternalReferrersAlways, nil
	case ConditionIfEmptyCampaign:
		return InternalReferrersIfEmptyCampaign, nil
	case "true":
		return InternalReferrersAlways, nil
	case "", "false":
		return InternalReferrersIncluded, nil
	default:
		return InternalReferrersAlways, []string{fmt.Sprintf("excludeInternalReferrers: unknown condition %q, defaulting to always", s)}
	}
}

// ReferrerMatcher matches a referring domain either exactly or by regexp.
type ReferrerMatcher struct {
	Exact   string
	Pattern *regexp.Regexp
}

// ExactReferrer returns a matcher comparing by string equality.
func ExactReferrer(domain string) ReferrerMatcher {
	return ReferrerMatcher{Exact: domain}
}

// PatternReferrer returns a matcher testing a regular expression.
func PatternReferrer(re *regexp.Regexp) ReferrerMatcher {
	return ReferrerMatcher{Pattern: re}
}

// ParseReferrerMatcher turns a configured entry into a matcher. Entries
// wrapped in slashes ("/\.example\.com$/") are compiled as regular
// expressions, everything else matches exactly.
func ParseReferrerMatcher(entry string) (ReferrerMatcher, error) {
	if len(entry) >= 2 && strings.HasPrefix(entry, "/") && strings.HasSuffix(entry, "/") {
		re, err := regexp.Compile(entry[1 : len(entry)-1])
		if err != nil {
			return ReferrerMatcher{}, fmt.Errorf("compile referrer pattern %q: %w", entry, err)
		}
		return PatternReferrer(re), nil
	}
	return ExactReferrer(entry), nil
}

// Match reports whether the referring domain matches.
func (m ReferrerMatcher) Match(referringDomain string) bool {
	if m.Pattern != nil {
		return m.Pattern.MatchString(referringDomain)
	}
	return m.Exact == referringDomain
}

func (m ReferrerMatcher) String() string {
	if m.Pattern != nil {
		return "/" + m.Pattern.String() + "/"
	}
	return m.Exact
}

// AttributionOptions is the validated attribution policy.
type AttributionOptions struct {
	ExcludeReferrers          []ReferrerMatcher
	ExcludeInternalReferrers  InternalReferrerPolicy
	// InitialEmptyValue overrides the placeholder for never-observed
	// parameters. nil means DefaultInitialEmptyValue; "" is kept as is.
	InitialEmptyValue         *string
	ResetSessionOnNewCampaign bool

	// Warnings collects problems found while building the options. They
	// never prevent attribution from running.
	Warnings []string
}

// EmptyValue returns the placeholder for never-observed parameters.
func (o AttributionOptions) EmptyValue() string {
	if o.InitialEmptyValue == nil {
		return DefaultInitialEmptyValue
	}
	return *o.InitialEmptyValue
}

// RawAttributionOptions is the unvalidated, configuration-facing form of
// AttributionOptions.
type RawAttributionOptions struct {
	ExcludeReferrers          []string `yaml:"exclude_referrers"`
	ExcludeInternalReferrers  any      `yaml:"exclude_internal_referrers"`
	InitialEmptyValue         *string  `yaml:"initial_empty_value"`
	ResetSessionOnNewCampaign bool     `yaml:"reset_session_on_new_campaign"`
}

// Build validates the raw options. Invalid referrer patterns are skipped and
// reported as warnings alongside any exclude-internal-referrers problem.
func (r RawAttributionOptions) Build() AttributionOptions {
	opts := AttributionOptions{
		ResetSessionOnNewCampaign: r.ResetSessionOnNewCampaign,
	}
	if r.InitialEmptyValue != nil {
		v := *r.InitialEmptyValue
		opts.InitialEmptyValue = &v
	}
	for _, entry := range r.ExcludeReferrers {
		m, err := ParseReferrerMatcher(entry)
		if err != nil {
			opts.Warnings = append(opts.Warnings, err.Error())
			continue
		}
		opts.ExcludeReferrers = append(opts.ExcludeReferrers, m)
	}
	policy, warnings := ParseInternalReferrerPolicy(r.ExcludeInternalReferrers)
	opts.ExcludeInternalReferrers = policy
	opts.Warnings = append(opts.Warnings, warnings...)
	return opts
}

package logic

import (
	"github.com/patrickwarner/openattribution/internal/models"
)

// IsExcludedReferrer reports whether the referring domain matches any entry
// of the exclude list.
func IsExcludedReferrer(excludes []models.ReferrerMatcher, referringDomain string) bool {
	for _, m := range excludes {
		if m.Match(referringDomain) {
			return true
		}
	}
	return false
}

// IsInternalReferrer reports whether the referring domain belongs to the
// site hosting the page.
func IsInternalReferrer(referringDomain, pageHostname string) bool {
	if referringDomain == "" {
		return false
	}
	return IsSameDomain(referringDomain, pageHostname)
}

// IsNewCampaign decides whether current replaces previous as the visitor's
// campaign. previous is nil when nothing has been stored yet. Rules are
// evaluated in order and the first one that applies decides.
func IsNewCampaign(current models.Campaign, previous models.Campaign, opts models.AttributionOptions, isNewSession bool, pageHostname string) bool {
	referringDomain := current.ReferringDomain()

	if opts.ExcludeInternalReferrers.Enabled() && IsInternalReferrer(referringDomain, pageHostname) {
		switch opts.ExcludeInternalReferrers {
		case models.InternalReferrersAlways:
			return false
		case models.InternalReferrersIfEmptyCampaign:
			if current.WithoutReferrer().IsEmpty() {
				return false
			}
		}
	}

	if IsExcludedReferrer(opts.ExcludeReferrers, referringDomain) {
		return false
	}

	// Direct traffic inside a session must not clobber the attribution
	// that started it.
	if !isNewSession && current.IsEmpty() && previous != nil {
		return false
	}

	if previous == nil {
		return true
	}
	hasNewCampaign := !current.WithoutReferrer().Equal(previous.WithoutReferrer())
	hasNewDomain := RegistrableDomain(referringDomain) != RegistrableDomain(previous.ReferringDomain())
	return hasNewCampaign || hasNewDomain
}

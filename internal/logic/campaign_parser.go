package logic

import (
	"context"
	"fmt"
	"net/url"

	"github.com/patrickwarner/openattribution/internal/models"
)

// URLCampaignSource reads campaign parameters from a page URL and the
// document referrer reported by the client.
type URLCampaignSource struct {
	PageURL  string
	Referrer string
}

// NewURLCampaignSource returns a source for the given page and referrer.
func NewURLCampaignSource(pageURL, referrer string) *URLCampaignSource {
	return &URLCampaignSource{PageURL: pageURL, Referrer: referrer}
}

// Parse extracts UTM and click-id query parameters and the referrer fields.
// Parameters missing from the URL are left out of the snapshot.
func (s *URLCampaignSource) Parse(ctx context.Context) (models.Campaign, error) {
	campaign := models.Campaign{}

	if s.PageURL != "" {
		u, err := url.Parse(s.PageURL)
		if err != nil {
			return campaign, fmt.Errorf("parse page url: %w", err)
		}
		query := u.Query()
		for _, key := range models.UTMKeys {
			if v, ok := query[key]; ok && len(v) > 0 {
				campaign[key] = v[0]
			}
		}
		for _, key := range models.ClickIDKeys {
			if v, ok := query[key]; ok && len(v) > 0 {
				campaign[key] = v[0]
			}
		}
	}

	if s.Referrer != "" {
		if ref, err := url.Parse(s.Referrer); err == nil && ref.Hostname() != "" {
			campaign[models.KeyReferrer] = s.Referrer
			campaign[models.KeyReferringDomain] = ref.Hostname()
		}
	}

	return campaign, nil
}

// PageHostname returns the hostname of a page URL, or "" when it cannot be
// parsed.
func PageHostname(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

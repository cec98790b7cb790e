// Package attribution runs one attribution cycle per page load: it loads the
// previously stored campaign, observes the current one, decides whether the
// visitor arrived through a new campaign and persists the result.
package attribution

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openattribution/internal/logic"
	"github.com/patrickwarner/openattribution/internal/models"
	"github.com/patrickwarner/openattribution/internal/observability"
)

const (
	storageKeyPrefix  = "ATTR"
	campaignSuffix    = "MKTG"
	migrationSuffix   = "_ORIGINAL"
	apiKeySliceLength = 10
)

// DefaultSessionTimeout applies when no session timeout is configured.
const DefaultSessionTimeout = 30 * time.Minute

// Store is the persistence surface the tracker needs. storage.CookieStore
// satisfies it.
type Store[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, value *T)
	Remove(ctx context.Context, key string)
}

// CampaignSource observes the campaign of the current page load.
type CampaignSource interface {
	Parse(ctx context.Context) (models.Campaign, error)
}

// StorageKey returns the cookie name holding the last stored campaign.
func StorageKey(apiKey string) string {
	if len(apiKey) > apiKeySliceLength {
		apiKey = apiKey[:apiKeySliceLength]
	}
	return storageKeyPrefix + "_" + campaignSuffix + "_" + apiKey
}

// MigrationKey returns the cookie name of a one-time campaign override.
func MigrationKey(apiKey string) string {
	return StorageKey(apiKey) + migrationSuffix
}

// Config holds what a Tracker needs besides its collaborators.
type Config struct {
	APIKey       string
	Options      models.AttributionOptions
	PageHostname string
	// LastEventTime is the time of the visitor's previous event; nil means
	// the visitor has no session yet.
	LastEventTime  *time.Time
	SessionTimeout time.Duration
}

// Tracker coordinates a single attribution cycle. It is not safe for
// concurrent Init calls; run at most one cycle per Tracker.
type Tracker struct {
	cfg          Config
	store        Store[models.Campaign]
	source       CampaignSource
	storageKey   string
	migrationKey string
	logger       *zap.Logger
	metrics      observability.MetricsRegistry
	now          func() time.Time

	currentCampaign        models.Campaign
	previousCampaign       models.Campaign
	shouldTrackNewCampaign bool
}

// NewTracker builds a Tracker. A nil logger or metrics registry is replaced
// by a no-op implementation.
func NewTracker(cfg Config, store Store[models.Campaign], source CampaignSource, logger *zap.Logger, metrics observability.MetricsRegistry) *Tracker {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Tracker{
		cfg:          cfg,
		store:        store,
		source:       source,
		storageKey:   StorageKey(cfg.APIKey),
		migrationKey: MigrationKey(cfg.APIKey),
		logger:       observability.ComponentLogger(logger, "attribution"),
		metrics:      metrics,
		now:          time.Now,
	}
}

// SetClock replaces the time source.
func (t *Tracker) SetClock(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// Init runs the attribution cycle. It never fails: unreadable state counts
// as absent and a failing campaign source counts as direct traffic.
func (t *Tracker) Init(ctx context.Context) {
	t.currentCampaign, t.previousCampaign = t.fetchCampaigns(ctx)

	isNewSession := t.isNewSession()
	if logic.IsNewCampaign(t.currentCampaign, t.previousCampaign, t.cfg.Options, isNewSession, t.cfg.PageHostname) {
		t.shouldTrackNewCampaign = true
		current := t.currentCampaign
		t.store.Set(ctx, t.storageKey, &current)
		t.metrics.IncrementAttributionCycles("new_campaign")
		t.logger.Debug("new campaign detected",
			zap.Bool("new_session", isNewSession),
			zap.String("referring_domain", t.currentCampaign.ReferringDomain()))
		return
	}
	t.metrics.IncrementAttributionCycles("unchanged")
}

// fetchCampaigns returns the current and previous campaigns. A pending
// migration value replaces the parsed campaign and is deleted on read.
// Stored values are trimmed to the canonical keys.
func (t *Tracker) fetchCampaigns(ctx context.Context) (models.Campaign, models.Campaign) {
	var (
		previous models.Campaign
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if stored, ok := t.store.Get(ctx, t.storageKey); ok {
			previous = stored.KnownKeys()
		}
	}()

	current, ok := t.store.Get(ctx, t.migrationKey)
	if ok && current != nil {
		current = current.KnownKeys()
		t.store.Remove(ctx, t.migrationKey)
		t.logger.Info("consumed migrated campaign")
	} else {
		current = t.parseCampaign(ctx)
	}

	wg.Wait()
	return current, previous
}

func (t *Tracker) parseCampaign(ctx context.Context) models.Campaign {
	if t.source == nil {
		return models.Campaign{}
	}
	campaign, err := t.source.Parse(ctx)
	if err != nil {
		t.logger.Warn("parse campaign, treating as direct traffic", zap.Error(err))
		return models.Campaign{}
	}
	if campaign == nil {
		return models.Campaign{}
	}
	return campaign
}

func (t *Tracker) isNewSession() bool {
	if t.cfg.LastEventTime == nil {
		return true
	}
	return t.now().Sub(*t.cfg.LastEventTime) > t.cfg.SessionTimeout
}

// GenerateCampaignEvent consumes the pending new-campaign signal and
// returns the identify event for the current campaign. A non-nil eventID
// overrides the event id.
func (t *Tracker) GenerateCampaignEvent(eventID *int64) models.IdentifyEvent {
	t.shouldTrackNewCampaign = false
	event := logic.CreateCampaignEvent(t.currentCampaign, t.cfg.Options)
	if eventID != nil {
		id := *eventID
		event.EventID = &id
	}
	return event
}

// ShouldTrackNewCampaign reports whether a new-campaign event is pending.
func (t *Tracker) ShouldTrackNewCampaign() bool {
	return t.shouldTrackNewCampaign
}

// ShouldSetSessionIDOnNewCampaign reports whether the caller should start
// a new session alongside the pending campaign event.
func (t *Tracker) ShouldSetSessionIDOnNewCampaign() bool {
	return t.shouldTrackNewCampaign && t.cfg.Options.ResetSessionOnNewCampaign
}

// CurrentCampaign returns the campaign observed by the last Init.
func (t *Tracker) CurrentCampaign() models.Campaign {
	return t.currentCampaign.Clone()
}

// PreviousCampaign returns the stored campaign read by the last Init, or
// nil when none existed.
func (t *Tracker) PreviousCampaign() models.Campaign {
	return t.previousCampaign.Clone()
}

package logic

import (
	"github.com/patrickwarner/openattribution/internal/models"
)

// initialPrefix prefixes first-touch copies of campaign properties.
const initialPrefix = "initial_"

// CreateCampaignMutation translates a campaign snapshot into user-property
// operations. Every canonical key is set when truthy and unset otherwise,
// and always seeds its initial_<key> counterpart once.
func CreateCampaignMutation(campaign models.Campaign, opts models.AttributionOptions) models.CampaignMutation {
	mutation := models.NewCampaignMutation()
	for _, key := range models.CampaignKeys() {
		value, ok := campaign.Value(key)
		if ok {
			mutation.SetOnce[initialPrefix+key] = value
		} else {
			mutation.SetOnce[initialPrefix+key] = opts.EmptyValue()
		}
		if value != "" {
			mutation.Set[key] = value
		} else {
			mutation.Unset[key] = models.UnsetSentinel
		}
	}
	return mutation
}

// CreateCampaignEvent wraps the campaign mutation in an identify event.
func CreateCampaignEvent(campaign models.Campaign, opts models.AttributionOptions) models.IdentifyEvent {
	return models.IdentifyEvent{
		EventType:      models.IdentifyEventType,
		UserProperties: CreateCampaignMutation(campaign, opts),
	}
}

package models

// IdentifyEventType is the event type carried by user-property updates.
const IdentifyEventType = "$identify"

// UnsetSentinel is the payload written for removed properties. Only the
// presence of the key is meaningful.
const UnsetSentinel = "-"

// CampaignMutation lists the user-property operations derived from a
// campaign snapshot.
type CampaignMutation struct {
	Set     map[string]string `json:"$set"`
	SetOnce map[string]string `json:"$setOnce"`
	Unset   map[string]string `json:"$unset"`
}

// NewCampaignMutation returns a mutation with all three maps allocated.
func NewCampaignMutation() CampaignMutation {
	return CampaignMutation{
		Set:     make(map[string]string),
		SetOnce: make(map[string]string),
		Unset:   make(map[string]string),
	}
}

// IdentifyEvent is handed to the event pipeline when a new campaign is
// detected.
type IdentifyEvent struct {
	EventType      string           `json:"event_type"`
	EventID        *int64           `json:"event_id,omitempty"`
	DeviceID       string           `json:"device_id,omitempty"`
	SessionID      int64            `json:"session_id,omitempty"`
	Time           int64            `json:"time,omitempty"` // epoch ms
	UserProperties CampaignMutation `json:"user_properties"`
}

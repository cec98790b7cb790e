package analytics

import (
	"context"
	"sync"

	"github.com/patrickwarner/openattribution/internal/models"
)

var _ IdentifySink = (*MockAnalytics)(nil)

// MockAnalytics keeps identify events in memory for tests.
type MockAnalytics struct {
	mu     sync.Mutex
	Events []models.IdentifyEvent
	// Err, when set, is returned by RecordIdentify instead of storing.
	Err error
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordIdentify stores the event (mock implementation)
func (m *MockAnalytics) RecordIdentify(ctx context.Context, event models.IdentifyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, event)
	return nil
}

// Recorded returns a copy of the stored events.
func (m *MockAnalytics) Recorded() []models.IdentifyEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.IdentifyEvent, len(m.Events))
	copy(out, m.Events)
	return out
}

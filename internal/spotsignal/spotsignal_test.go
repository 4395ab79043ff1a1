package spotsignal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercentChangeNoHistory(t *testing.T) {
	s := New([]string{"BTC"})
	_, ok := s.PercentChange("BTC", time.Hour)
	assert.False(t, ok)
}

func TestPercentChangeComputesSignedMove(t *testing.T) {
	s := New([]string{"BTC"})
	now := time.Now().UTC()

	s.record("BTC", 100000, now.Add(-time.Hour))
	s.record("BTC", 105000, now)

	pct, ok := s.PercentChange("BTC", time.Hour)
	assert.True(t, ok)
	assert.InDelta(t, 5.0, pct, 0.01)
}

func TestLatestReturnsMostRecentPoint(t *testing.T) {
	s := New([]string{"ETH"})
	now := time.Now().UTC()
	s.record("ETH", 3000, now.Add(-time.Minute))
	s.record("ETH", 3100, now)

	price, observedAt, ok := s.Latest("ETH")
	assert.True(t, ok)
	assert.Equal(t, 3100.0, price)
	assert.WithinDuration(t, now, observedAt, time.Second)
}

func TestRecordPrunesOlderThanMaxHistoryAge(t *testing.T) {
	s := New([]string{"BTC"})
	now := time.Now().UTC()
	s.record("BTC", 90000, now.Add(-30*time.Hour))
	s.record("BTC", 95000, now)

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Len(t, s.history["BTC"], 1)
}

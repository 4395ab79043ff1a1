package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictradar/signalscan/internal/model"
)

func fptr(v float64) *float64 { return &v }

func TestBestTriggeredWindowPicksMaxScore(t *testing.T) {
	thresholds := Thresholds{
		model.Window1m:  6,
		model.Window5m:  8,
		model.Window30m: 14,
	}
	deltas := map[model.Window]*float64{
		model.Window1m:  fptr(7),
		model.Window5m:  fptr(9),
		model.Window30m: fptr(20),
	}

	window, direction, score, ok := bestTriggeredWindow(deltas, thresholds)
	require.True(t, ok)
	assert.Equal(t, model.Window30m, window)
	assert.Equal(t, model.DirectionUp, direction)
	assert.InDelta(t, 20.0/14.0, score, 0.01)
}

func TestBestTriggeredWindowNoneQualify(t *testing.T) {
	thresholds := Thresholds{model.Window1m: 6}
	deltas := map[model.Window]*float64{model.Window1m: fptr(2)}

	_, _, _, ok := bestTriggeredWindow(deltas, thresholds)
	assert.False(t, ok)
}

func TestBestTriggeredWindowDirectionDown(t *testing.T) {
	thresholds := Thresholds{model.Window1m: 6}
	deltas := map[model.Window]*float64{model.Window1m: fptr(-9)}

	window, direction, _, ok := bestTriggeredWindow(deltas, thresholds)
	require.True(t, ok)
	assert.Equal(t, model.Window1m, window)
	assert.Equal(t, model.DirectionDown, direction)
}

func TestDefaultThresholdsMatchesSpecTable(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, 6.0, th[model.Window1m])
	assert.Equal(t, 8.0, th[model.Window5m])
	assert.Equal(t, 10.0, th[model.Window10m])
	assert.Equal(t, 14.0, th[model.Window30m])
	assert.Equal(t, 18.0, th[model.Window1h])
	assert.Equal(t, 24.0, th[model.Window6h])
	assert.Equal(t, 30.0, th[model.Window12h])
	assert.Equal(t, 38.0, th[model.Window24h])
}

package lost

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLostRateFor(t *testing.T) {
	rate, ok := LostRateFor(1, 1)
	require.True(t, ok)
	assert.Equal(t, 0.0, rate)

	rate, ok = LostRateFor(1, 4)
	require.True(t, ok)
	assert.Equal(t, 75.0, rate)

	rate, ok = LostRateFor(0, 0)
	assert.False(t, ok)
	assert.True(t, math.IsNaN(rate))
}

func TestLostRateFor_Range(t *testing.T) {
	for total := 1; total <= 20; total++ {
		for hits := 0; hits <= total; hits++ {
			rate, ok := LostRateFor(hits, total)
			require.True(t, ok)
			assert.GreaterOrEqual(t, rate, 0.0, fmt.Sprintf("%d/%d", hits, total))
			assert.LessOrEqual(t, rate, 100.0, fmt.Sprintf("%d/%d", hits, total))
		}
	}
}

func TestResult_MarshalJSON(t *testing.T) {
	r := Result{ID: "a", OccupiedHits: 3, Total: 4, LostRate: 25}
	b, err := json.Marshal(r)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, 25.0, m["lost_rate"])
	assert.True(t, r.Computable())

	r.LostRate = math.NaN()
	r.Total = 0
	b, err = json.Marshal(r)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Nil(t, m["lost_rate"])
	assert.False(t, r.Computable())
}

func TestIsSkippable(t *testing.T) {
	assert.True(t, IsSkippable(fmt.Errorf("lookup: %w", ErrTransformUnavailable)))
	assert.True(t, IsSkippable(ErrNotReady))
	assert.True(t, IsSkippable(ErrNotComputable))
	assert.False(t, IsSkippable(fmt.Errorf("map: %w", ErrCorruptGrid)))
	assert.False(t, IsSkippable(ErrHalted))
	assert.False(t, IsSkippable(nil))
	assert.False(t, IsSkippable(fmt.Errorf("other")))
}

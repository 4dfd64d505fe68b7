package twophase

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigila-ai/vigila/pkg/config"
	"github.com/vigila-ai/vigila/pkg/intents"
	"github.com/vigila-ai/vigila/pkg/tools"
)

func bigResult(n int) tools.Result {
	items := make([]tools.Establishment, 0, n)
	var b strings.Builder
	fmt.Fprintf(&b, "Stabilimenti coinvolti (%d):\n", n)
	for i := 0; i < n; i++ {
		e := tools.Establishment{
			NumRegistration: fmt.Sprintf("049CE%04d", i),
			RagioneSociale:  fmt.Sprintf("Operatore %d", i),
		}
		items = append(items, e)
		fmt.Fprintf(&b, "- **%s** (%s)\n", e.RagioneSociale, e.NumRegistration)
	}
	return tools.Result{
		Type:              "establishments",
		Data:              items,
		FormattedResponse: b.String(),
		ItemsCount:        n,
	}
}

func TestShapeSummarizesOverThreshold(t *testing.T) {
	s := NewShaper(config.TwoPhaseConfig{})
	result := bigResult(27)

	shaped, detail := s.Shape(result, intents.AskPianoStabilimenti, map[string]any{"plan_code": "A1"})
	require.NotNil(t, detail)
	assert.Equal(t, result, detail.Full)
	assert.Equal(t, intents.AskPianoStabilimenti, detail.Intent)
	assert.NotEmpty(t, detail.SlotsHash)

	assert.True(t, strings.HasSuffix(shaped.FormattedResponse, ConfirmQuestion))
	assert.Equal(t, 27, shaped.ItemsCount)
	// Only the first three items survive in the summary text.
	assert.Contains(t, shaped.FormattedResponse, "Operatore 2")
	assert.NotContains(t, shaped.FormattedResponse, "Operatore 3 ")

	data, ok := shaped.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 27, data["items_count"])
	assert.Len(t, data["top_items"], 3)
}

func TestShapePassesThroughAtOrBelowThreshold(t *testing.T) {
	s := NewShaper(config.TwoPhaseConfig{})
	result := bigResult(3)

	shaped, detail := s.Shape(result, intents.AskPianoStabilimenti, nil)
	assert.Nil(t, detail)
	assert.Equal(t, result, shaped)
}

func TestShapeIgnoresUnlistedIntents(t *testing.T) {
	s := NewShaper(config.TwoPhaseConfig{})
	result := bigResult(50)

	_, detail := s.Shape(result, intents.AskPianoDescription, nil)
	assert.Nil(t, detail)
}

func TestShapeSkipsErrorResults(t *testing.T) {
	s := NewShaper(config.TwoPhaseConfig{})
	result := bigResult(50)
	result.Error = "boom"

	_, detail := s.Shape(result, intents.AskPianoStabilimenti, nil)
	assert.Nil(t, detail)
}

func TestConfiguredThresholdsOverrideDefaults(t *testing.T) {
	s := NewShaper(config.TwoPhaseConfig{Thresholds: map[string]int{
		intents.AskPianoStabilimenti: 40,
		intents.AskConSanzioni:       0,
	}})

	assert.Equal(t, 40, s.Threshold(intents.AskPianoStabilimenti))
	assert.Zero(t, s.Threshold(intents.AskConSanzioni))

	_, detail := s.Shape(bigResult(27), intents.AskPianoStabilimenti, nil)
	assert.Nil(t, detail)
}

func TestSlotsHashStableAcrossOrdering(t *testing.T) {
	a := hashSlots(map[string]any{"plan_code": "A1", "asl": "CE"})
	b := hashSlots(map[string]any{"asl": "CE", "plan_code": "A1"})
	c := hashSlots(map[string]any{"plan_code": "B2"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

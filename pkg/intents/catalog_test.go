package intents

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogComplete(t *testing.T) {
	names := Names()
	assert.Len(t, names, 19)
	for _, name := range names {
		def, ok := Get(name)
		require.True(t, ok)
		assert.Equal(t, name, def.Name)
		assert.NotEmpty(t, def.Category, "intent %s has no category", name)
		assert.NotEmpty(t, def.Tool, "intent %s has no tool", name)
	}
}

func TestRequiredSlotsHavePrompts(t *testing.T) {
	for _, def := range All() {
		for _, required := range def.RequiredSlots {
			prompt, ok := def.SlotPrompts[required]
			assert.True(t, ok, "intent %s missing prompt for %s", def.Name, required)
			assert.NotEmpty(t, prompt)
		}
	}
}

func TestSelfSufficientIntentsHaveNoRequiredSlots(t *testing.T) {
	for _, def := range All() {
		if def.SelfSufficient {
			assert.Empty(t, def.RequiredSlots, "intent %s", def.Name)
		}
	}
}

func TestRequiredSlotsSatisfied(t *testing.T) {
	ok, missing := RequiredSlotsSatisfied(AskPianoDescription, map[string]any{"plan_code": "A1"})
	assert.True(t, ok)
	assert.Empty(t, missing)

	ok, missing = RequiredSlotsSatisfied(AskPianoDescription, map[string]any{})
	assert.False(t, ok)
	assert.Equal(t, SlotPlanCode, missing)

	// Empty string does not satisfy a requirement.
	ok, _ = RequiredSlotsSatisfied(AskPianoDescription, map[string]any{"plan_code": ""})
	assert.False(t, ok)
}

func TestRequiredSlotsAlternatives(t *testing.T) {
	ok, _ := RequiredSlotsSatisfied(AskEstablishmentHistory, map[string]any{"partita_iva": "01234567890"})
	assert.True(t, ok)

	ok, _ = RequiredSlotsSatisfied(AskEstablishmentHistory, map[string]any{"ragione_sociale": "Salumificio Rossi"})
	assert.True(t, ok)

	ok, missing := RequiredSlotsSatisfied(AskEstablishmentHistory, map[string]any{"location": "Torino"})
	assert.False(t, ok)
	assert.Contains(t, missing, "|")
}

func TestSlotWhitelist(t *testing.T) {
	for _, key := range []string{"plan_code", "topic", "asl", "num_registration", "partita_iva", "ragione_sociale", "categoria", "location", "radius_km", "limit", "address"} {
		assert.True(t, IsValidSlot(key), key)
	}
	assert.False(t, IsValidSlot("plan"))
	assert.False(t, IsValidSlot(""))
}

func TestToolFor(t *testing.T) {
	assert.Equal(t, "piano_description", ToolFor(AskPianoDescription))
	assert.Equal(t, "fallback", ToolFor("no_such_intent"))
}

func TestTwoPhaseThresholds(t *testing.T) {
	def, _ := Get(AskPianoStabilimenti)
	assert.Equal(t, 3, def.TwoPhaseThreshold)
	for _, name := range []string{AskMaiIspezionati, AskConSanzioni, AskRiskBasedPriority, AskTopRiskActivities, AskPriorityEstablishment, AskEstablishmentHistory, AskEstablishmentsNearby, AskPianiInRitardo} {
		def, _ := Get(name)
		assert.Equal(t, 5, def.TwoPhaseThreshold, name)
	}
	def, _ = Get(AskPianoDescription)
	assert.Zero(t, def.TwoPhaseThreshold)
}

func TestByCategoryExcludesConversational(t *testing.T) {
	grouped := ByCategory()
	for _, defs := range grouped {
		for _, def := range defs {
			assert.NotContains(t, []string{Greet, Goodbye, ConfirmShowDetails, DeclineShowDetails, Fallback}, def.Name)
		}
	}
	assert.NotEmpty(t, grouped[CategoryPiani])
}

func TestCategoryLabels(t *testing.T) {
	for _, category := range CategoryNames() {
		label := CategoryLabel(category)
		assert.NotEqual(t, category, strings.ToLower(label))
		assert.NotEmpty(t, label)
	}
}

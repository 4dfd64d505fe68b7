package dialogue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigila-ai/vigila/pkg/config"
	"github.com/vigila-ai/vigila/pkg/intents"
	"github.com/vigila-ai/vigila/pkg/router"
)

func newManager() *Manager {
	cfg := config.RouterConfig{}
	cfg.SetDefaults()
	return NewManager(cfg)
}

func classification(kind router.MessageKind, candidates ...router.Candidate) router.Classification {
	return router.Classification{Candidates: candidates, MessageKind: kind}
}

func TestConfirmWithDetailPendingWinsOverEverything(t *testing.T) {
	m := newManager()
	cls := classification(router.KindContinuation,
		router.Candidate{Intent: intents.ConfirmShowDetails, Confidence: 0.95})

	d := m.Decide(cls, Snapshot{DetailPending: true, LastIntent: intents.AskPianoStabilimenti})
	assert.Equal(t, ActionExecute, d.Action)
	assert.Equal(t, "confirm_show_details", d.Tool)
}

func TestHighConfidenceCompleteSlotsExecutes(t *testing.T) {
	m := newManager()
	cls := classification(router.KindSpecific,
		router.Candidate{Intent: intents.AskPianoDescription, Confidence: 0.85, Slots: map[string]any{"plan_code": "A1"}})

	d := m.Decide(cls, Snapshot{})
	assert.Equal(t, ActionExecute, d.Action)
	assert.Equal(t, "piano_description", d.Tool)
	assert.Equal(t, "A1", d.Slots["plan_code"])
	assert.Empty(t, d.Next.PendingClarification)
}

func TestHighConfidenceMissingSlotAsks(t *testing.T) {
	m := newManager()
	cls := classification(router.KindSpecific,
		router.Candidate{Intent: intents.AskPianoDescription, Confidence: 0.85})

	d := m.Decide(cls, Snapshot{})
	assert.Equal(t, ActionAskUser, d.Action)
	assert.NotEmpty(t, d.Question)
	assert.Equal(t, intents.SlotPlanCode, d.Next.PendingClarification)
	assert.Equal(t, intents.AskPianoDescription, d.Next.ConfirmedIntent)
}

func TestAmbiguityBandAsksWithBothLabels(t *testing.T) {
	m := newManager()
	cls := classification(router.KindVague,
		router.Candidate{Intent: intents.AskRiskBasedPriority, Confidence: 0.58},
		router.Candidate{Intent: intents.AskTopRiskActivities, Confidence: 0.52})

	d := m.Decide(cls, Snapshot{})
	require.Equal(t, ActionAskUser, d.Action)
	first, _ := intents.Get(intents.AskRiskBasedPriority)
	second, _ := intents.Get(intents.AskTopRiskActivities)
	assert.Contains(t, d.Question, first.Description)
	assert.Contains(t, d.Question, second.Description)
	assert.Equal(t, []string{intents.AskRiskBasedPriority, intents.AskTopRiskActivities}, d.Next.PendingIntents)
}

func TestRefinementCarriesLastIntentForward(t *testing.T) {
	m := newManager()
	cls := classification(router.KindRefinement,
		router.Candidate{Intent: intents.Fallback, Confidence: 0.3, Slots: map[string]any{"asl": "Caserta"}})

	snap := Snapshot{
		LastIntent: intents.AskConSanzioni,
		LastSlots:  map[string]any{"categoria": "macelli"},
	}
	d := m.Decide(cls, snap)
	assert.Equal(t, ActionExecute, d.Action)
	assert.Equal(t, intents.AskConSanzioni, d.Intent)
	assert.Equal(t, "Caserta", d.Slots["asl"])
	assert.Equal(t, "macelli", d.Slots["categoria"])
}

func TestSelectionExecutesChosenIntent(t *testing.T) {
	m := newManager()
	cls := classification(router.KindSelection,
		router.Candidate{Intent: intents.AskTopRiskActivities, Confidence: 0.90})

	d := m.Decide(cls, Snapshot{State: State{PendingIntents: []string{intents.AskRiskBasedPriority, intents.AskTopRiskActivities}}})
	assert.Equal(t, ActionExecute, d.Action)
	assert.Equal(t, "top_risk_activities", d.Tool)
	assert.Empty(t, d.Next.PendingIntents)
}

func TestSelfSufficientLowConfidenceStillExecutes(t *testing.T) {
	m := newManager()
	cls := classification(router.KindVague,
		router.Candidate{Intent: intents.Greet, Confidence: 0.5})

	d := m.Decide(cls, Snapshot{})
	assert.Equal(t, ActionExecute, d.Action)
	assert.Equal(t, "greet", d.Tool)
}

func TestUnconfidentUnknownFallsBack(t *testing.T) {
	m := newManager()
	cls := classification(router.KindVague,
		router.Candidate{Intent: intents.Fallback, Confidence: 0})

	d := m.Decide(cls, Snapshot{})
	assert.Equal(t, ActionFallback, d.Action)
	assert.Equal(t, intents.Fallback, d.Intent)
}

func TestTopicChangeResetsAccumulator(t *testing.T) {
	m := newManager()
	cls := classification(router.KindSpecific,
		router.Candidate{Intent: intents.AskPianiInRitardo, Confidence: 0.92})

	snap := Snapshot{
		LastIntent: intents.AskEstablishmentHistory,
		State:      State{Slots: map[string]any{"num_registration": "049CE0017"}},
	}
	d := m.Decide(cls, snap)
	assert.True(t, d.TopicChanged)
	assert.NotContains(t, d.Slots, "num_registration")
}

func TestSameIntentIsNotATopicChange(t *testing.T) {
	m := newManager()
	cls := classification(router.KindSpecific,
		router.Candidate{Intent: intents.AskPianoDescription, Confidence: 0.85, Slots: map[string]any{"plan_code": "B2"}})

	d := m.Decide(cls, Snapshot{LastIntent: intents.AskPianoDescription})
	assert.False(t, d.TopicChanged)
}

func TestStateRoundTrip(t *testing.T) {
	state := State{
		PendingClarification: "plan_code",
		PendingIntents:       []string{"a", "b"},
		ConfirmedIntent:      "ask_piano_description",
		Slots:                map[string]any{"plan_code": "A1"},
	}

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var decoded State
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, state, decoded)
}

package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vigila-ai/vigila/pkg/intents"
)

func TestExtractSlots(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    map[string]any
	}{
		{
			name:    "plan code after piano",
			message: "di cosa tratta il piano A1?",
			want:    map[string]any{intents.SlotPlanCode: "A1"},
		},
		{
			name:    "bare plan code",
			message: "B12",
			want:    map[string]any{intents.SlotPlanCode: "B12"},
		},
		{
			name:    "registration number",
			message: "storico dello stabilimento 049CE0017",
			want:    map[string]any{intents.SlotNumRegistration: "049CE0017"},
		},
		{
			name:    "partita iva",
			message: "controlli per la partita iva 01234567890",
			want:    map[string]any{intents.SlotPartitaIVA: "01234567890"},
		},
		{
			name:    "radius and location",
			message: "stabilimenti nel raggio di 10 km vicino a Caserta",
			want:    map[string]any{intents.SlotRadiusKm: 10.0, intents.SlotLocation: "Caserta"},
		},
		{
			name:    "limit",
			message: "dammi i primi 5 stabilimenti",
			want:    map[string]any{intents.SlotLimit: 5},
		},
		{
			name:    "asl",
			message: "operatori della ASL Caserta",
			want:    map[string]any{intents.SlotASL: "Caserta"},
		},
		{
			name:    "quoted company name",
			message: `storico di "Salumificio Rossi"`,
			want:    map[string]any{intents.SlotRagioneSociale: "Salumificio Rossi"},
		},
		{
			name:    "nothing extractable",
			message: "cosa mi consigli di fare oggi?",
			want:    map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSlots(tt.message)
			for k, v := range tt.want {
				assert.Equal(t, v, got[k], k)
			}
			if len(tt.want) == 0 {
				assert.Empty(t, got)
			}
		})
	}
}

func TestMergeSlotsDropsInvalidAndEmpty(t *testing.T) {
	out := mergeSlots(
		map[string]any{"plan_code": "A1", "bogus": 1, "topic": ""},
		map[string]any{"plan_code": "B2", "location": "Napoli"},
	)
	assert.Equal(t, map[string]any{"plan_code": "B2", "location": "Napoli"}, out)
}

func TestParseClassificationStages(t *testing.T) {
	direct := `{"candidates":[{"intent":"greet","confidence":0.9,"slots":{}}],"message_kind":"vague"}`
	fenced := "```json\n" + direct + "\n```"
	chatty := "Ecco la classificazione richiesta: " + direct + " spero sia utile."

	for _, raw := range []string{direct, fenced, chatty} {
		cls, err := parseClassification(raw)
		assert.NoError(t, err)
		assert.Equal(t, "greet", cls.Top().Intent)
	}

	_, err := parseClassification("nessun json qui")
	assert.Error(t, err)
}

func TestValidateClassificationClampsAndSorts(t *testing.T) {
	cls, err := parseClassification(`{"candidates":[
		{"intent":"ask_help","confidence":0.4,"slots":{}},
		{"intent":"greet","confidence":1.7,"slots":{}},
		{"intent":"not_an_intent","confidence":0.9,"slots":{}}],
		"message_kind":"weird"}`)
	assert.NoError(t, err)
	assert.Equal(t, "greet", cls.Top().Intent)
	assert.Equal(t, 1.0, cls.Top().Confidence)
	assert.Len(t, cls.Candidates, 2)
	assert.Equal(t, KindSpecific, cls.MessageKind)
}

package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigila-ai/vigila/pkg/intents"
	"github.com/vigila-ai/vigila/pkg/router"
)

func testDataset() Dataset {
	return Dataset{
		Plans: []Plan{
			{Code: "A1", Name: "Residui", Description: "Ricerca di residui di farmaci veterinari.", SamplesDue: 10, SamplesDone: 4, Deadline: "2026-12-31", EstablishmentIDs: []string{"049CE0017", "049CE0021"}},
			{Code: "B2", Name: "Salmonella", Description: "Monitoraggio salmonella negli allevamenti avicoli.", SamplesDue: 6, SamplesDone: 6},
		},
		Establishments: []Establishment{
			{NumRegistration: "049CE0017", RagioneSociale: "Salumificio Rossi", PartitaIVA: "01234567890", Comune: "Caserta", ASL: "CE", Categoria: "salumifici", RiskScore: 8.5, LastInspection: "2024-05-10", Sanctions: 2, Lat: 41.07, Lon: 14.33},
			{NumRegistration: "049CE0021", RagioneSociale: "Caseificio Bianchi", Comune: "Caserta", ASL: "CE", Categoria: "caseifici", RiskScore: 4.2, Lat: 41.08, Lon: 14.35},
			{NumRegistration: "063NA0105", RagioneSociale: "Macello Verdi", Comune: "Napoli", ASL: "NA", Categoria: "macelli", RiskScore: 9.1, Sanctions: 1, Lat: 40.85, Lon: 14.27},
		},
		Inspections: []Inspection{
			{NumRegistration: "049CE0017", Date: "2024-05-10", Kind: "ispezione", Outcome: "favorevole con prescrizioni", NonConformities: 1},
			{NumRegistration: "049CE0017", Date: "2022-11-02", Kind: "audit", Outcome: "sfavorevole", NonConformities: 3},
		},
		Staff: []StaffMember{
			{Name: "Maria Esposito", Role: "Dirigente veterinario", Topics: []string{"benessere animale", "piani di monitoraggio"}, Phone: "0823 555001", Email: "m.esposito@example.it"},
		},
		Procedures: []Procedure{
			{Topic: "campionamento", Title: "Verbale di campionamento", Summary: "Compilazione e invio del verbale.", Reference: "POS-07"},
		},
		Comuni: []Comune{
			{Name: "Caserta", Lat: 41.07, Lon: 14.33},
			{Name: "Napoli", Lat: 40.85, Lon: 14.27},
		},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewDefaultRegistry(NewMemStore(testDataset()))
	require.NoError(t, err)
	return r
}

func TestRegistryCoversEveryIntent(t *testing.T) {
	r := newTestRegistry(t)
	for _, def := range intents.All() {
		if def.Name == intents.Fallback {
			continue
		}
		_, ok := r.Get(def.Tool)
		assert.True(t, ok, "missing handler for tool %s", def.Tool)
	}
}

func TestDispatchPianoDescription(t *testing.T) {
	r := newTestRegistry(t)
	res := r.Dispatch(context.Background(), intents.AskPianoDescription, Request{
		Slots: map[string]any{"plan_code": "a1"},
	})
	assert.Empty(t, res.Error)
	assert.Contains(t, res.FormattedResponse, "Residui")
	assert.Equal(t, 1, res.ItemsCount)
}

func TestDispatchUnknownPlanCapturesError(t *testing.T) {
	r := newTestRegistry(t)
	res := r.Dispatch(context.Background(), intents.AskPianoDescription, Request{
		Slots: map[string]any{"plan_code": "Z9"},
	})
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, "error", res.Type)
}

func TestPianiInRitardoFindsOnlyDelayed(t *testing.T) {
	r := newTestRegistry(t)
	res := r.Dispatch(context.Background(), intents.AskPianiInRitardo, Request{})
	assert.Equal(t, 1, res.ItemsCount)
	assert.Contains(t, res.FormattedResponse, "A1")
	assert.NotContains(t, res.FormattedResponse, "B2")
}

func TestMaiIspezionatiScopesToCallerASL(t *testing.T) {
	r := newTestRegistry(t)
	res := r.Dispatch(context.Background(), intents.AskMaiIspezionati, Request{
		Metadata: router.Metadata{ASL: "CE"},
	})
	assert.Equal(t, 1, res.ItemsCount)
	assert.Contains(t, res.FormattedResponse, "Caseificio Bianchi")
}

func TestConSanzioniSortsBySanctions(t *testing.T) {
	r := newTestRegistry(t)
	res := r.Dispatch(context.Background(), intents.AskConSanzioni, Request{})
	assert.Equal(t, 2, res.ItemsCount)
	first := strings.Index(res.FormattedResponse, "Salumificio Rossi")
	second := strings.Index(res.FormattedResponse, "Macello Verdi")
	assert.Less(t, first, second)
}

func TestEstablishmentLookupByAlternativeKeys(t *testing.T) {
	store := NewMemStore(testDataset())

	byPIVA, err := store.Establishment(context.Background(), EstablishmentRef{PartitaIVA: "01234567890"})
	require.NoError(t, err)
	assert.Equal(t, "049CE0017", byPIVA.NumRegistration)

	byName, err := store.Establishment(context.Background(), EstablishmentRef{RagioneSociale: "rossi"})
	require.NoError(t, err)
	assert.Equal(t, "049CE0017", byName.NumRegistration)

	_, err = store.Establishment(context.Background(), EstablishmentRef{NumRegistration: "missing"})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestHistoryNewestFirst(t *testing.T) {
	r := newTestRegistry(t)
	res := r.Dispatch(context.Background(), intents.AskEstablishmentHistory, Request{
		Slots: map[string]any{"num_registration": "049CE0017"},
	})
	assert.Equal(t, 2, res.ItemsCount)
	newer := strings.Index(res.FormattedResponse, "2024-05-10")
	older := strings.Index(res.FormattedResponse, "2022-11-02")
	assert.Less(t, newer, older)
}

func TestNearbyFiltersByRadius(t *testing.T) {
	r := newTestRegistry(t)
	res := r.Dispatch(context.Background(), intents.AskEstablishmentsNearby, Request{
		Slots: map[string]any{"location": "Caserta", "radius_km": 10.0},
	})
	assert.Equal(t, 2, res.ItemsCount)
	assert.NotContains(t, res.FormattedResponse, "Macello Verdi")
}

func TestWeaklyTypedSlotDecoding(t *testing.T) {
	r := newTestRegistry(t)
	// radius arrives as a string, limit as float64 (LLM JSON numbers).
	res := r.Dispatch(context.Background(), intents.AskEstablishmentsNearby, Request{
		Slots: map[string]any{"location": "Caserta", "radius_km": "10", "limit": 1.0},
	})
	assert.Empty(t, res.Error)
	assert.Equal(t, 1, res.ItemsCount)
}

func TestConfirmEmitsStashedPayload(t *testing.T) {
	r := newTestRegistry(t)
	full := Result{Type: "establishments", FormattedResponse: "elenco completo", ItemsCount: 27}

	res := r.Dispatch(context.Background(), intents.ConfirmShowDetails, Request{
		Detail: &DetailContext{Intent: intents.AskPianoStabilimenti, Full: full},
	})
	assert.Equal(t, full, res)

	// Without a pending context the tool degrades gracefully.
	res = r.Dispatch(context.Background(), intents.ConfirmShowDetails, Request{})
	assert.Contains(t, res.FormattedResponse, "Non ho dettagli in sospeso")
}

func TestGreetUsesUsername(t *testing.T) {
	r := newTestRegistry(t)
	res := r.Dispatch(context.Background(), intents.Greet, Request{
		Metadata: router.Metadata{Username: "Anna"},
	})
	assert.Contains(t, res.FormattedResponse, "Ciao Anna")
}

func TestHelpListsEveryCategory(t *testing.T) {
	r := newTestRegistry(t)
	res := r.Dispatch(context.Background(), intents.AskHelp, Request{})
	for _, category := range intents.CategoryNames() {
		assert.Contains(t, res.FormattedResponse, intents.CategoryLabel(category))
	}
}

func TestStaffContactMatchesTopic(t *testing.T) {
	r := newTestRegistry(t)
	res := r.Dispatch(context.Background(), intents.AskStaffContact, Request{
		Slots: map[string]any{"topic": "benessere animale"},
	})
	assert.Contains(t, res.FormattedResponse, "Maria Esposito")
}

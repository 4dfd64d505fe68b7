package response

import (
	"fmt"

	"github.com/vigila-ai/vigila/pkg/intents"
	"github.com/vigila-ai/vigila/pkg/tools"
)

// Suggestions proposes up to three follow-up questions for the intent
// just served. Delivered as structured data, never concatenated into
// the response text.
func Suggestions(intent string, slots map[string]any, result tools.Result) []Suggestion {
	switch intent {
	case intents.AskPianoDescription:
		if code, ok := slots[intents.SlotPlanCode].(string); ok {
			return []Suggestion{
				{Text: "Stabilimenti coinvolti", Query: fmt.Sprintf("quali stabilimenti sono coinvolti nel piano %s?", code)},
				{Text: "Stato di avanzamento", Query: fmt.Sprintf("a che punto è il piano %s?", code)},
			}
		}
	case intents.AskPianoStabilimenti:
		if code, ok := slots[intents.SlotPlanCode].(string); ok {
			return []Suggestion{
				{Text: "Descrizione del piano", Query: fmt.Sprintf("di cosa tratta il piano %s?", code)},
				{Text: "Piani in ritardo", Query: "quali piani sono in ritardo?"},
			}
		}
	case intents.AskPianiInRitardo:
		return []Suggestion{
			{Text: "Priorità di ispezione", Query: "quali stabilimenti dovrei ispezionare prima?"},
		}
	case intents.AskPianoRitardo:
		return []Suggestion{
			{Text: "Tutti i piani in ritardo", Query: "quali piani sono in ritardo?"},
		}
	case intents.AskMaiIspezionati, intents.AskConSanzioni, intents.AskRiskBasedPriority:
		return []Suggestion{
			{Text: "Attività più a rischio", Query: "quali tipologie di attività sono più a rischio?"},
			{Text: "Stabilimenti vicini", Query: "quali stabilimenti ci sono vicino a me?"},
		}
	case intents.AskTopRiskActivities:
		return []Suggestion{
			{Text: "Priorità di ispezione", Query: "quali stabilimenti dovrei ispezionare prima?"},
		}
	case intents.AskPriorityEstablishment, intents.AskEstablishmentHistory:
		if reg, ok := slots[intents.SlotNumRegistration].(string); ok {
			other := intents.AskEstablishmentHistory
			label := "Storico ispezioni"
			query := fmt.Sprintf("storico ispezioni dello stabilimento %s", reg)
			if intent == other {
				label = "Priorità di ispezione"
				query = fmt.Sprintf("che priorità ha lo stabilimento %s?", reg)
			}
			return []Suggestion{{Text: label, Query: query}}
		}
	case intents.AskEstablishmentsNearby:
		return []Suggestion{
			{Text: "Priorità di ispezione", Query: "quali stabilimenti dovrei ispezionare prima?"},
		}
	case intents.Greet, intents.AskHelp:
		return []Suggestion{
			{Text: "Piani in ritardo", Query: "quali piani sono in ritardo?"},
			{Text: "Priorità di ispezione", Query: "quali stabilimenti dovrei ispezionare prima?"},
			{Text: "Mai ispezionati", Query: "quali operatori non sono mai stati ispezionati?"},
		}
	}
	return nil
}

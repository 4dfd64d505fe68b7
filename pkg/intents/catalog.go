// Package intents defines the fixed intent catalog: the enumerated goals a
// veterinary-inspection officer can express in a turn, with the slots,
// prompts, keywords, and tool bindings the pipeline needs to act on them.
//
// The catalog is immutable after init. Everything that varies per intent
// lives here so the router, dialogue manager, and response generator stay
// table-driven.
package intents

import "sort"

// Intent names.
const (
	Greet                    = "greet"
	Goodbye                  = "goodbye"
	AskHelp                  = "ask_help"
	AskPianoDescription      = "ask_piano_description"
	AskPianoStabilimenti     = "ask_piano_stabilimenti"
	AskPianiInRitardo        = "ask_piani_in_ritardo"
	AskPianoRitardo          = "ask_piano_ritardo"
	AskMaiIspezionati        = "ask_mai_ispezionati"
	AskConSanzioni           = "ask_con_sanzioni"
	AskRiskBasedPriority     = "ask_risk_based_priority"
	AskTopRiskActivities     = "ask_top_risk_activities"
	AskPriorityEstablishment = "ask_priority_establishment"
	AskEstablishmentHistory  = "ask_establishment_history"
	AskEstablishmentsNearby  = "ask_establishments_nearby"
	AskStaffContact          = "ask_staff_contact"
	AskProcedureInfo         = "ask_procedure_info"
	ConfirmShowDetails       = "confirm_show_details"
	DeclineShowDetails       = "decline_show_details"
	Fallback                 = "fallback"
)

// Categories for the fallback menu.
const (
	CategoryPiani     = "piani"
	CategoryPriorita  = "priorita"
	CategoryRischio   = "rischio"
	CategoryStorico   = "storico"
	CategoryAnagrafe  = "anagrafe"
	CategoryProcedure = "procedure"
)

// Slot names recognized across the pipeline. Slot keys outside this set
// coming back from the LLM are dropped.
const (
	SlotPlanCode        = "plan_code"
	SlotTopic           = "topic"
	SlotASL             = "asl"
	SlotNumRegistration = "num_registration"
	SlotPartitaIVA      = "partita_iva"
	SlotRagioneSociale  = "ragione_sociale"
	SlotCategoria       = "categoria"
	SlotLocation        = "location"
	SlotRadiusKm        = "radius_km"
	SlotLimit           = "limit"
	SlotAddress         = "address"
)

// Definition describes one intent.
type Definition struct {
	Name        string
	Description string // Italian, shown in disambiguation questions and menus
	Category    string

	// RequiredSlots must all be present before the tool runs. Slot groups
	// separated by "|" mean any one of the alternatives suffices
	// (e.g. "num_registration|ragione_sociale").
	RequiredSlots []string

	// SlotPrompts are the Italian clarifying questions per missing slot
	// (keyed by the RequiredSlots entry, including grouped ones).
	SlotPrompts map[string]string

	// SelfSufficient intents execute without slots or confidence checks.
	SelfSufficient bool

	// Keywords seed fallback phase 1 scoring.
	Keywords []string

	// Tool is the handler name dispatched for this intent.
	Tool string

	// TwoPhaseThreshold is the item count above which results are
	// summarized. Zero disables the two-phase flow for the intent.
	TwoPhaseThreshold int
}

var catalog = map[string]Definition{
	Greet: {
		Name: Greet, Description: "Saluto iniziale", Category: CategoryProcedure,
		SelfSufficient: true, Tool: "greet",
		Keywords: []string{"ciao", "salve", "buongiorno", "buonasera"},
	},
	Goodbye: {
		Name: Goodbye, Description: "Congedo", Category: CategoryProcedure,
		SelfSufficient: true, Tool: "goodbye",
		Keywords: []string{"arrivederci", "addio", "grazie"},
	},
	AskHelp: {
		Name: AskHelp, Description: "Cosa puoi fare / aiuto sull'assistente", Category: CategoryProcedure,
		SelfSufficient: true, Tool: "help",
		Keywords: []string{"aiuto", "help", "cosa", "puoi", "fare", "funzioni"},
	},
	AskPianoDescription: {
		Name: AskPianoDescription, Description: "Descrizione di un piano di monitoraggio", Category: CategoryPiani,
		RequiredSlots: []string{SlotPlanCode},
		SlotPrompts: map[string]string{
			SlotPlanCode: "Di quale piano vuoi la descrizione? Indicami il codice (es. A1).",
		},
		Tool:     "piano_description",
		Keywords: []string{"piano", "tratta", "descrizione", "obiettivo", "cosa"},
	},
	AskPianoStabilimenti: {
		Name: AskPianoStabilimenti, Description: "Stabilimenti coinvolti in un piano", Category: CategoryPiani,
		RequiredSlots: []string{SlotPlanCode},
		SlotPrompts: map[string]string{
			SlotPlanCode: "Per quale piano vuoi l'elenco degli stabilimenti? Indicami il codice.",
		},
		Tool:              "piano_stabilimenti",
		Keywords:          []string{"piano", "stabilimenti", "coinvolti", "elenco", "campionare"},
		TwoPhaseThreshold: 3,
	},
	AskPianiInRitardo: {
		Name: AskPianiInRitardo, Description: "Piani di monitoraggio in ritardo", Category: CategoryPiani,
		SelfSufficient:    true,
		Tool:              "piani_in_ritardo",
		Keywords:          []string{"piani", "ritardo", "arretrati", "scadenza", "indietro"},
		TwoPhaseThreshold: 5,
	},
	AskPianoRitardo: {
		Name: AskPianoRitardo, Description: "Stato di avanzamento di un piano specifico", Category: CategoryPiani,
		RequiredSlots: []string{SlotPlanCode},
		SlotPrompts: map[string]string{
			SlotPlanCode: "Di quale piano vuoi conoscere lo stato di avanzamento?",
		},
		Tool:     "piano_ritardo",
		Keywords: []string{"piano", "ritardo", "avanzamento", "stato", "campioni"},
	},
	AskMaiIspezionati: {
		Name: AskMaiIspezionati, Description: "Operatori mai ispezionati", Category: CategoryRischio,
		Tool:              "mai_ispezionati",
		Keywords:          []string{"mai", "ispezionati", "controllati", "nuovi", "operatori"},
		TwoPhaseThreshold: 5,
	},
	AskConSanzioni: {
		Name: AskConSanzioni, Description: "Operatori con sanzioni o non conformità", Category: CategoryStorico,
		Tool:              "con_sanzioni",
		Keywords:          []string{"sanzioni", "sanzionati", "non", "conformita", "multe", "violazioni"},
		TwoPhaseThreshold: 5,
	},
	AskRiskBasedPriority: {
		Name: AskRiskBasedPriority, Description: "Stabilimenti prioritari in base al rischio", Category: CategoryPriorita,
		Tool:              "risk_based_priority",
		Keywords:          []string{"priorita", "rischio", "stabilimenti", "ispezionare", "prima"},
		TwoPhaseThreshold: 5,
	},
	AskTopRiskActivities: {
		Name: AskTopRiskActivities, Description: "Tipologie di attività più a rischio", Category: CategoryRischio,
		Tool:              "top_risk_activities",
		Keywords:          []string{"attivita", "rischio", "tipologie", "categorie", "rischiose"},
		TwoPhaseThreshold: 5,
	},
	AskPriorityEstablishment: {
		Name: AskPriorityEstablishment, Description: "Priorità di ispezione di uno stabilimento", Category: CategoryPriorita,
		RequiredSlots: []string{SlotNumRegistration + "|" + SlotRagioneSociale},
		SlotPrompts: map[string]string{
			SlotNumRegistration + "|" + SlotRagioneSociale: "Di quale stabilimento vuoi la priorità? Indicami numero di registrazione o ragione sociale.",
		},
		Tool:              "priority_establishment",
		Keywords:          []string{"priorita", "stabilimento", "punteggio", "rischio"},
		TwoPhaseThreshold: 5,
	},
	AskEstablishmentHistory: {
		Name: AskEstablishmentHistory, Description: "Storico ispezioni e non conformità di uno stabilimento", Category: CategoryStorico,
		RequiredSlots: []string{SlotNumRegistration + "|" + SlotPartitaIVA + "|" + SlotRagioneSociale},
		SlotPrompts: map[string]string{
			SlotNumRegistration + "|" + SlotPartitaIVA + "|" + SlotRagioneSociale: "Di quale stabilimento vuoi lo storico? Indicami numero di registrazione, partita IVA o ragione sociale.",
		},
		Tool:              "establishment_history",
		Keywords:          []string{"storico", "ispezioni", "precedenti", "controlli", "stabilimento"},
		TwoPhaseThreshold: 5,
	},
	AskEstablishmentsNearby: {
		Name: AskEstablishmentsNearby, Description: "Stabilimenti vicini a una posizione", Category: CategoryPriorita,
		RequiredSlots: []string{SlotLocation},
		SlotPrompts: map[string]string{
			SlotLocation: "Dove ti trovi? Indicami un indirizzo o un comune.",
		},
		Tool:              "establishments_nearby",
		Keywords:          []string{"vicino", "vicini", "zona", "raggio", "km", "posizione"},
		TwoPhaseThreshold: 5,
	},
	AskStaffContact: {
		Name: AskStaffContact, Description: "Referenti e contatti del personale", Category: CategoryAnagrafe,
		RequiredSlots: []string{SlotTopic},
		SlotPrompts: map[string]string{
			SlotTopic: "Per quale materia o piano cerchi il referente?",
		},
		Tool:     "staff_contact",
		Keywords: []string{"referente", "contatto", "telefono", "email", "chi", "occupa"},
	},
	AskProcedureInfo: {
		Name: AskProcedureInfo, Description: "Procedure e documentazione operativa", Category: CategoryProcedure,
		RequiredSlots: []string{SlotTopic},
		SlotPrompts: map[string]string{
			SlotTopic: "Su quale procedura o argomento vuoi informazioni?",
		},
		Tool:     "procedure_info",
		Keywords: []string{"procedura", "documento", "normativa", "come", "modulistica"},
	},
	ConfirmShowDetails: {
		Name: ConfirmShowDetails, Description: "Conferma visualizzazione dettagli", Category: CategoryProcedure,
		SelfSufficient: true, Tool: "confirm_show_details",
		Keywords: []string{"si", "certo", "dettagli", "tutti"},
	},
	DeclineShowDetails: {
		Name: DeclineShowDetails, Description: "Rifiuto visualizzazione dettagli", Category: CategoryProcedure,
		SelfSufficient: true, Tool: "decline_show_details",
		Keywords: []string{"no", "basta", "grazie"},
	},
	Fallback: {
		Name: Fallback, Description: "Richiesta non riconosciuta", Category: CategoryProcedure,
		SelfSufficient: true, Tool: "fallback",
	},
}

// slotWhitelist is the recognized slot namespace.
var slotWhitelist = map[string]bool{
	SlotPlanCode:        true,
	SlotTopic:           true,
	SlotASL:             true,
	SlotNumRegistration: true,
	SlotPartitaIVA:      true,
	SlotRagioneSociale:  true,
	SlotCategoria:       true,
	SlotLocation:        true,
	SlotRadiusKm:        true,
	SlotLimit:           true,
	SlotAddress:         true,
}

// Get returns the definition for an intent name.
func Get(name string) (Definition, bool) {
	def, ok := catalog[name]
	return def, ok
}

// IsValid reports whether name is a known intent.
func IsValid(name string) bool {
	_, ok := catalog[name]
	return ok
}

// IsValidSlot reports whether key belongs to the recognized slot namespace.
func IsValidSlot(key string) bool {
	return slotWhitelist[key]
}

// ToolFor resolves the tool name bound to an intent. Unknown intents map
// to the fallback tool.
func ToolFor(intent string) string {
	if def, ok := catalog[intent]; ok {
		return def.Tool
	}
	return catalog[Fallback].Tool
}

// All returns every definition sorted by name.
func All() []Definition {
	defs := make([]Definition, 0, len(catalog))
	for _, def := range catalog {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns every intent name sorted.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByCategory groups all dispatchable intents (everything except the
// conversational built-ins) by category, for the fallback menu.
func ByCategory() map[string][]Definition {
	grouped := make(map[string][]Definition)
	for _, def := range All() {
		switch def.Name {
		case Greet, Goodbye, ConfirmShowDetails, DeclineShowDetails, Fallback:
			continue
		}
		grouped[def.Category] = append(grouped[def.Category], def)
	}
	return grouped
}

// CategoryNames returns the menu categories in presentation order.
func CategoryNames() []string {
	return []string{CategoryPiani, CategoryPriorita, CategoryRischio, CategoryStorico, CategoryAnagrafe, CategoryProcedure}
}

// CategoryLabel returns the Italian label for a category.
func CategoryLabel(category string) string {
	switch category {
	case CategoryPiani:
		return "Piani di monitoraggio"
	case CategoryPriorita:
		return "Priorità di ispezione"
	case CategoryRischio:
		return "Analisi del rischio"
	case CategoryStorico:
		return "Storico e non conformità"
	case CategoryAnagrafe:
		return "Referenti e contatti"
	case CategoryProcedure:
		return "Procedure e documentazione"
	default:
		return category
	}
}

// RequiredSlotsSatisfied reports whether slots cover every required slot
// of the intent, and returns the first unsatisfied requirement otherwise.
// A "a|b" requirement is satisfied by any of its alternatives.
func RequiredSlotsSatisfied(intent string, slots map[string]any) (bool, string) {
	def, ok := catalog[intent]
	if !ok {
		return true, ""
	}
	for _, required := range def.RequiredSlots {
		if !slotGroupSatisfied(required, slots) {
			return false, required
		}
	}
	return true, ""
}

func slotGroupSatisfied(group string, slots map[string]any) bool {
	start := 0
	for i := 0; i <= len(group); i++ {
		if i == len(group) || group[i] == '|' {
			name := group[start:i]
			if v, ok := slots[name]; ok && v != nil && v != "" {
				return true
			}
			start = i + 1
		}
	}
	return false
}

package retriever

import "github.com/vigila-ai/vigila/pkg/intents"

// DefaultCorpus returns the built-in Italian example corpus. It covers
// every dispatchable intent with a handful of paraphrases each, enough
// for few-shot classification to work out of the box. Deployments with
// richer corpora point retriever.examples_path at their own file.
func DefaultCorpus() []Example {
	return []Example{
		{Text: "ciao", Intent: intents.Greet},
		{Text: "buongiorno, sono in servizio", Intent: intents.Greet},
		{Text: "salve", Intent: intents.Greet},

		{Text: "arrivederci", Intent: intents.Goodbye},
		{Text: "grazie, a presto", Intent: intents.Goodbye},
		{Text: "ho finito, ciao", Intent: intents.Goodbye},

		{Text: "cosa puoi fare?", Intent: intents.AskHelp},
		{Text: "aiuto", Intent: intents.AskHelp},
		{Text: "che domande posso farti?", Intent: intents.AskHelp},

		{Text: "di cosa tratta il piano A1?", Intent: intents.AskPianoDescription},
		{Text: "descrivimi il piano B3", Intent: intents.AskPianoDescription},
		{Text: "qual è l'obiettivo del piano residui?", Intent: intents.AskPianoDescription},

		{Text: "quali stabilimenti sono coinvolti nel piano A1?", Intent: intents.AskPianoStabilimenti},
		{Text: "dove devo campionare per il piano C2?", Intent: intents.AskPianoStabilimenti},
		{Text: "elenco degli stabilimenti del piano salmonella", Intent: intents.AskPianoStabilimenti},

		{Text: "quali piani sono in ritardo?", Intent: intents.AskPianiInRitardo},
		{Text: "ci sono piani arretrati?", Intent: intents.AskPianiInRitardo},
		{Text: "mostrami i piani indietro con i campionamenti", Intent: intents.AskPianiInRitardo},

		{Text: "a che punto è il piano A1?", Intent: intents.AskPianoRitardo},
		{Text: "il piano B2 è in ritardo?", Intent: intents.AskPianoRitardo},
		{Text: "stato di avanzamento del piano D4", Intent: intents.AskPianoRitardo},

		{Text: "quali operatori non sono mai stati ispezionati?", Intent: intents.AskMaiIspezionati},
		{Text: "ci sono attività mai controllate?", Intent: intents.AskMaiIspezionati},
		{Text: "stabilimenti senza ispezioni precedenti", Intent: intents.AskMaiIspezionati},

		{Text: "quali operatori hanno ricevuto sanzioni?", Intent: intents.AskConSanzioni},
		{Text: "chi ha avuto non conformità negli ultimi anni?", Intent: intents.AskConSanzioni},
		{Text: "stabilimenti sanzionati nella mia ASL", Intent: intents.AskConSanzioni},

		{Text: "quali stabilimenti dovrei ispezionare prima?", Intent: intents.AskRiskBasedPriority},
		{Text: "dammi le priorità basate sul rischio", Intent: intents.AskRiskBasedPriority},
		{Text: "dove conviene fare i prossimi controlli?", Intent: intents.AskRiskBasedPriority},

		{Text: "quali tipologie di attività sono più a rischio?", Intent: intents.AskTopRiskActivities},
		{Text: "categorie più rischiose", Intent: intents.AskTopRiskActivities},
		{Text: "che tipo di attività presenta più rischi?", Intent: intents.AskTopRiskActivities},

		{Text: "che priorità ha lo stabilimento 049CE0017?", Intent: intents.AskPriorityEstablishment},
		{Text: "quanto è urgente ispezionare il salumificio Rossi?", Intent: intents.AskPriorityEstablishment},
		{Text: "punteggio di rischio dello stabilimento ABC123", Intent: intents.AskPriorityEstablishment},

		{Text: "storico ispezioni dello stabilimento 049CE0017", Intent: intents.AskEstablishmentHistory},
		{Text: "controlli precedenti del caseificio Bianchi", Intent: intents.AskEstablishmentHistory},
		{Text: "non conformità passate della partita iva 01234567890", Intent: intents.AskEstablishmentHistory},

		{Text: "quali stabilimenti ci sono vicino a me?", Intent: intents.AskEstablishmentsNearby},
		{Text: "attività nel raggio di 10 km da Caserta", Intent: intents.AskEstablishmentsNearby},
		{Text: "stabilimenti in zona via Roma 15", Intent: intents.AskEstablishmentsNearby},

		{Text: "chi è il referente per il piano benessere animale?", Intent: intents.AskStaffContact},
		{Text: "contatto del responsabile campionamenti", Intent: intents.AskStaffContact},
		{Text: "chi si occupa di anagrafe zootecnica?", Intent: intents.AskStaffContact},

		{Text: "come si compila il verbale di campionamento?", Intent: intents.AskProcedureInfo},
		{Text: "qual è la procedura per il sequestro?", Intent: intents.AskProcedureInfo},
		{Text: "dove trovo la modulistica per le ispezioni?", Intent: intents.AskProcedureInfo},

		{Text: "sì, mostrameli tutti", Intent: intents.ConfirmShowDetails},
		{Text: "certo, vediamo i dettagli", Intent: intents.ConfirmShowDetails},
		{Text: "va bene, fammi vedere", Intent: intents.ConfirmShowDetails},

		{Text: "no grazie", Intent: intents.DeclineShowDetails},
		{Text: "no, così basta", Intent: intents.DeclineShowDetails},
		{Text: "non serve", Intent: intents.DeclineShowDetails},
	}
}

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/vigila-ai/vigila/pkg/intents"
)

// Conversational built-ins. All of them produce a FormattedResponse for
// the direct pass-through path and never touch the datastore.

type GreetTool struct{}

func (t *GreetTool) Name() string { return "greet" }

func (t *GreetTool) Handle(_ context.Context, req Request) (Result, error) {
	name := req.Metadata.Username
	greeting := "Ciao! Sono l'assistente per i controlli ufficiali."
	if name != "" {
		greeting = fmt.Sprintf("Ciao %s! Sono l'assistente per i controlli ufficiali.", name)
	}
	return Result{
		Type:              "greeting",
		FormattedResponse: greeting + " Posso aiutarti con piani di monitoraggio, priorità di ispezione, storico degli stabilimenti e procedure. Cosa ti serve?",
	}, nil
}

type GoodbyeTool struct{}

func (t *GoodbyeTool) Name() string { return "goodbye" }

func (t *GoodbyeTool) Handle(context.Context, Request) (Result, error) {
	return Result{
		Type:              "goodbye",
		FormattedResponse: "Arrivederci! Buon lavoro e a presto.",
	}, nil
}

type HelpTool struct{}

func (t *HelpTool) Name() string { return "help" }

func (t *HelpTool) Handle(context.Context, Request) (Result, error) {
	var b strings.Builder
	b.WriteString("Ecco cosa posso fare per te:\n")
	grouped := intents.ByCategory()
	for _, category := range intents.CategoryNames() {
		defs := grouped[category]
		if len(defs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n**%s**\n", intents.CategoryLabel(category))
		for _, def := range defs {
			fmt.Fprintf(&b, "- %s\n", def.Description)
		}
	}
	b.WriteString("\nFammi una domanda in linguaggio naturale, ad esempio: \"quali piani sono in ritardo?\"")
	return Result{Type: "help", FormattedResponse: b.String()}, nil
}

// ConfirmDetailsTool emits the payload stashed by the two-phase shaper.
type ConfirmDetailsTool struct{}

func (t *ConfirmDetailsTool) Name() string { return "confirm_show_details" }

func (t *ConfirmDetailsTool) Handle(_ context.Context, req Request) (Result, error) {
	if req.Detail == nil {
		return Result{
			Type:              "details",
			FormattedResponse: "Non ho dettagli in sospeso da mostrarti. Fammi una nuova domanda.",
		}, nil
	}
	return req.Detail.Full, nil
}

// DeclineDetailsTool acknowledges and drops the pending offer.
type DeclineDetailsTool struct{}

func (t *DeclineDetailsTool) Name() string { return "decline_show_details" }

func (t *DeclineDetailsTool) Handle(context.Context, Request) (Result, error) {
	return Result{
		Type:              "acknowledgement",
		FormattedResponse: "Va bene. Se ti serve altro sono qui.",
	}, nil
}

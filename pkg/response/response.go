// Package response turns a tool result into the final Italian answer.
//
// Tools that already produced a FormattedResponse, and the purely
// conversational intents, bypass the model entirely. Everything else
// goes through one generation call with a deterministic formatter as
// the degraded path.
package response

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vigila-ai/vigila/pkg/intents"
	"github.com/vigila-ai/vigila/pkg/llms"
	"github.com/vigila-ai/vigila/pkg/tools"
)

const generateTimeout = 25 * time.Second

// Suggestion is one replayable follow-up offered with the answer.
type Suggestion struct {
	Text  string `json:"text"`
	Query string `json:"query"`
}

// Generator produces the response text and follow-up suggestions.
type Generator struct {
	provider    llms.Provider
	temperature float64
	maxTokens   int
}

// NewGenerator builds a generator on the given provider.
func NewGenerator(provider llms.Provider, temperature float64, maxTokens int) *Generator {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Generator{provider: provider, temperature: temperature, maxTokens: maxTokens}
}

// directIntents always emit the tool's text verbatim.
var directIntents = map[string]bool{
	intents.Greet:              true,
	intents.Goodbye:            true,
	intents.AskHelp:            true,
	intents.Fallback:           true,
	intents.ConfirmShowDetails: true,
	intents.DeclineShowDetails: true,
}

// Generate renders the final text for a turn. It never fails: LLM
// trouble degrades to the deterministic formatter.
func (g *Generator) Generate(ctx context.Context, intent, userMessage string, result tools.Result) string {
	if result.Error != "" {
		return "Mi dispiace, non sono riuscito a recuperare i dati richiesti. Riprova tra poco o riformula la domanda."
	}
	if result.FormattedResponse != "" || directIntents[intent] {
		return result.FormattedResponse
	}

	text, err := g.generateWithLLM(ctx, intent, userMessage, result)
	if err != nil {
		slog.Warn("Response generation failed, using deterministic formatter", "intent", intent, "error", err)
		return FormatDeterministic(result)
	}
	return text
}

func (g *Generator) generateWithLLM(ctx context.Context, intent, userMessage string, result tools.Result) (string, error) {
	def, _ := intents.Get(intent)
	payload, err := json.Marshal(result.Data)
	if err != nil {
		return "", fmt.Errorf("failed to serialize tool data: %w", err)
	}

	system := "Sei un assistente per ispettori veterinari. Rispondi in italiano, in markdown conciso, " +
		"usando SOLO i dati forniti. Non inventare valori.\nContesto: " + def.Description

	text, err := g.provider.Chat(ctx, []llms.Message{
		llms.System(system),
		llms.User(fmt.Sprintf("Domanda: %s\n\nDati (%s): %s", userMessage, result.Type, payload)),
	}, llms.Options{
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Timeout:     generateTimeout,
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty generation")
	}
	return text, nil
}

// FormatDeterministic renders result.Data without the model: a bullet
// per item for lists, key-value lines for records.
func FormatDeterministic(result tools.Result) string {
	if result.FormattedResponse != "" {
		return result.FormattedResponse
	}
	if result.Data == nil {
		return "Non ho trovato dati per questa richiesta."
	}

	raw, err := json.Marshal(result.Data)
	if err != nil {
		return "Non ho trovato dati per questa richiesta."
	}

	var asList []map[string]any
	if json.Unmarshal(raw, &asList) == nil {
		var b strings.Builder
		fmt.Fprintf(&b, "Ho trovato %d risultati:\n", len(asList))
		for _, item := range asList {
			b.WriteString("- ")
			b.WriteString(formatRecord(item))
			b.WriteByte('\n')
		}
		return b.String()
	}

	var asMap map[string]any
	if json.Unmarshal(raw, &asMap) == nil {
		return formatRecord(asMap)
	}
	return string(raw)
}

func formatRecord(record map[string]any) string {
	// Prefer the human-facing fields when present.
	for _, key := range []string{"ragione_sociale", "name", "title", "code"} {
		if v, ok := record[key].(string); ok && v != "" {
			return v
		}
	}
	parts := make([]string, 0, len(record))
	for k, v := range record {
		parts = append(parts, fmt.Sprintf("%s: %v", k, v))
	}
	return strings.Join(parts, ", ")
}

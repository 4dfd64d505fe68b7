// Package fallback recovers turns the classifier could not settle. It
// escalates through three phases: keyword-seeded suggestions, an LLM
// rerank of the intent catalog, and finally a fixed categorical menu.
// A loop guard stops the escalation after too many consecutive misses.
package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vigila-ai/vigila/pkg/intents"
	"github.com/vigila-ai/vigila/pkg/llms"
)

const (
	rerankTimeout = 5 * time.Second
	maxSuggested  = 5
	minSuggested  = 3
)

// State is the fallback slice of the session entry.
type State struct {
	Phase       int      `json:"phase,omitempty"`
	Count       int      `json:"count,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Category    string   `json:"category,omitempty"`
}

// Outcome is what one recovery step produced.
type Outcome struct {
	// Message is the Italian text asking the user to pick or rephrase.
	Message string

	// Next is the fallback state to persist. Reset means the loop guard
	// fired and all fallback state must be cleared.
	Next  State
	Reset bool
}

// Engine runs the escalation.
type Engine struct {
	provider llms.Provider
	maxLoop  atomic.Int32
}

// NewEngine builds an engine. provider may be nil; phase 2 then falls
// straight through to the menu.
func NewEngine(provider llms.Provider, maxLoop int) *Engine {
	e := &Engine{provider: provider}
	e.Reconfigure(maxLoop)
	return e
}

// Reconfigure updates the loop guard. Safe under concurrent Recover.
func (e *Engine) Reconfigure(maxLoop int) {
	if maxLoop <= 0 {
		maxLoop = 3
	}
	e.maxLoop.Store(int32(maxLoop))
}

// Recover advances the escalation one step for the given message.
func (e *Engine) Recover(ctx context.Context, message string, prev State) Outcome {
	count := prev.Count + 1
	if count >= int(e.maxLoop.Load()) {
		return Outcome{
			Message: "Non riesco a capire la richiesta. Prova a riformularla con altre parole, ad esempio: \"quali piani sono in ritardo?\" oppure \"storico dello stabilimento 049CE0017\".",
			Reset:   true,
		}
	}

	// An open category menu narrows to that category's intents.
	if prev.Phase == 3 {
		if category, ok := matchCategory(message); ok {
			return e.categoryMenu(category, count)
		}
		return e.fullMenu(count)
	}

	if prev.Phase == 0 {
		if out, ok := e.keywordSeed(message, count); ok {
			return out
		}
	}

	// Phase 2: rerank. Reached when phase 1 found nothing or the user
	// rejected its suggestions.
	if prev.Phase <= 1 {
		if out, ok := e.rerank(ctx, message, count); ok {
			return out
		}
	}

	return e.fullMenu(count)
}

// keywordSeed scores every dispatchable intent by content-token overlap
// with its keyword list.
func (e *Engine) keywordSeed(message string, count int) (Outcome, bool) {
	tokens := contentTokens(message)
	if len(tokens) == 0 {
		return Outcome{}, false
	}

	type scored struct {
		name  string
		score int
	}
	var ranked []scored
	for _, def := range dispatchable() {
		score := 0
		for _, kw := range def.Keywords {
			if tokens[foldAccents(kw)] {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{name: def.Name, score: score})
		}
	}
	if len(ranked) == 0 {
		return Outcome{}, false
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].name < ranked[j].name
	})

	names := make([]string, 0, maxSuggested)
	for _, s := range ranked {
		names = append(names, s.name)
		if len(names) == maxSuggested {
			break
		}
	}

	return Outcome{
		Message: suggestionMessage(names),
		Next:    State{Phase: 1, Count: count, Suggestions: names},
	}, true
}

// rerank asks the model to pick the closest intents. Failure of any
// kind falls through to the menu.
func (e *Engine) rerank(ctx context.Context, message string, count int) (Outcome, bool) {
	if e.provider == nil {
		return Outcome{}, false
	}

	var b strings.Builder
	b.WriteString("Scegli i 3 intenti più vicini alla richiesta dell'utente.\nIntenti:\n")
	for _, def := range dispatchable() {
		fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
	}
	b.WriteString("Rispondi SOLO con JSON: {\"intents\": [\"...\", \"...\", \"...\"]}")

	raw, err := e.provider.Chat(ctx, []llms.Message{
		llms.System(b.String()),
		llms.User(message),
	}, llms.Options{Temperature: 0.1, MaxTokens: 120, JSONMode: true, Timeout: rerankTimeout})
	if err != nil {
		slog.Debug("Fallback rerank failed", "error", err)
		return Outcome{}, false
	}

	var parsed struct {
		Intents []string `json:"intents"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Outcome{}, false
	}

	var names []string
	for _, name := range parsed.Intents {
		if intents.IsValid(name) && name != intents.Fallback {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return Outcome{}, false
	}
	if len(names) > minSuggested {
		names = names[:minSuggested]
	}

	return Outcome{
		Message: suggestionMessage(names),
		Next:    State{Phase: 2, Count: count, Suggestions: names},
	}, true
}

// fullMenu is phase 3: the fixed category taxonomy.
func (e *Engine) fullMenu(count int) Outcome {
	var b strings.Builder
	b.WriteString("Non ho capito la richiesta. Di cosa ti occupi in questo momento?\n")
	for i, category := range intents.CategoryNames() {
		fmt.Fprintf(&b, "%d) %s\n", i+1, intents.CategoryLabel(category))
	}
	b.WriteString("Rispondi con il numero o il nome della categoria.")

	return Outcome{
		Message: b.String(),
		Next:    State{Phase: 3, Count: count},
	}
}

// categoryMenu lists the intents inside a chosen category.
func (e *Engine) categoryMenu(category string, count int) Outcome {
	defs := intents.ByCategory()[category]
	if len(defs) == 0 {
		return e.fullMenu(count)
	}

	names := make([]string, 0, len(defs))
	var b strings.Builder
	fmt.Fprintf(&b, "%s. Cosa ti serve?\n", intents.CategoryLabel(category))
	for i, def := range defs {
		fmt.Fprintf(&b, "%d) %s\n", i+1, def.Description)
		names = append(names, def.Name)
	}

	return Outcome{
		Message: b.String(),
		Next:    State{Phase: 3, Count: count, Suggestions: names, Category: category},
	}
}

func suggestionMessage(names []string) string {
	var b strings.Builder
	b.WriteString("Non sono sicuro di aver capito. Forse intendi:\n")
	for i, name := range names {
		def, _ := intents.Get(name)
		fmt.Fprintf(&b, "%d) %s (%s)\n", i+1, def.Description, intents.CategoryLabel(def.Category))
	}
	b.WriteString("Rispondi con il numero, oppure riformula la domanda.")
	return b.String()
}

// matchCategory resolves a menu answer to a category, by position or by
// name.
func matchCategory(message string) (string, bool) {
	normalized := foldAccents(strings.ToLower(strings.TrimSpace(message)))
	categories := intents.CategoryNames()

	trimmed := strings.Trim(normalized, ".) ")
	for i, category := range categories {
		if trimmed == fmt.Sprint(i+1) {
			return category, true
		}
	}
	for _, category := range categories {
		if strings.Contains(normalized, category) ||
			strings.Contains(normalized, foldAccents(strings.ToLower(intents.CategoryLabel(category)))) {
			return category, true
		}
	}
	return "", false
}

func dispatchable() []intents.Definition {
	var out []intents.Definition
	for _, defs := range intents.ByCategory() {
		out = append(out, defs...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// contentTokens returns the accent-folded content words of a message.
func contentTokens(message string) map[string]bool {
	stopwords := map[string]bool{
		"il": true, "lo": true, "la": true, "i": true, "gli": true, "le": true,
		"un": true, "una": true, "di": true, "a": true, "da": true, "in": true,
		"con": true, "su": true, "per": true, "che": true, "e": true, "o": true,
		"del": true, "della": true, "dei": true, "delle": true, "mi": true,
		"quale": true, "quali": true, "sono": true, "ci": true, "c'e": true,
	}
	tokens := make(map[string]bool)
	for _, word := range strings.Fields(foldAccents(strings.ToLower(message))) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if len(word) > 1 && !stopwords[word] {
			tokens[word] = true
		}
	}
	return tokens
}

var accentReplacer = strings.NewReplacer("à", "a", "è", "e", "é", "e", "ì", "i", "ò", "o", "ù", "u")

func foldAccents(s string) string {
	return accentReplacer.Replace(s)
}

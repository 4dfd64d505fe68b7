package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/vigila-ai/vigila/pkg/intents"
	"github.com/vigila-ai/vigila/pkg/llms"
)

const (
	classifyTimeout = 12 * time.Second
	locationTimeout = 10 * time.Second
	classifyMaxTok  = 200
)

// llmClassification is the JSON shape the model is asked to produce.
type llmClassification struct {
	Candidates []struct {
		Intent     string         `json:"intent"`
		Confidence float64        `json:"confidence"`
		Slots      map[string]any `json:"slots"`
	} `json:"candidates"`
	MessageKind string `json:"message_kind"`
}

// classifyWithLLM is cascade layer 4. It builds the rubric prompt with
// retrieved few-shot examples and parses the model's JSON answer. Any
// failure degrades to a zero-confidence fallback classification.
func (r *Router) classifyWithLLM(ctx context.Context, message string, hints Hints) Classification {
	prompt, err := r.buildClassifyPrompt(ctx, message, hints)
	if err != nil {
		slog.Warn("Classify prompt build failed", "error", err)
		prompt = r.rubric()
	}

	raw, err := r.provider.Chat(ctx, []llms.Message{
		llms.System(prompt),
		llms.User(r.truncate(message)),
	}, llms.Options{
		Temperature: r.classifyTemp,
		MaxTokens:   classifyMaxTok,
		JSONMode:    true,
		Timeout:     classifyTimeout,
	})
	if err != nil {
		slog.Warn("LLM classification failed", "error", err)
		return degraded()
	}

	parsed, err := parseClassification(raw)
	if err != nil {
		slog.Warn("LLM classification unparseable", "error", err, "raw_length", len(raw))
		return degraded()
	}
	return parsed
}

// degraded is the classification returned when layer 4 cannot answer.
func degraded() Classification {
	return Classification{
		Candidates:  []Candidate{{Intent: intents.Fallback, Confidence: 0}},
		MessageKind: KindVague,
	}
}

func (r *Router) buildClassifyPrompt(ctx context.Context, message string, hints Hints) (string, error) {
	var b strings.Builder
	b.WriteString(r.rubric())

	if fewShot := r.tun.Load().fewShot; r.retriever != nil && fewShot > 0 {
		examples, err := r.retriever.TopK(ctx, message, fewShot)
		if err != nil {
			return "", fmt.Errorf("few-shot retrieval failed: %w", err)
		}
		if len(examples) > 0 {
			b.WriteString("\nEsempi:\n")
			for _, ex := range examples {
				fmt.Fprintf(&b, "- %q -> %s\n", ex.Text, ex.Intent)
			}
		}
	}

	for _, hint := range hintLines(hints) {
		b.WriteString(hint)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// rubric enumerates the intent set with descriptions plus the known
// disambiguation rules. Built once; the catalog is immutable.
func (r *Router) rubric() string {
	r.rubricOnce.Do(func() {
		var b strings.Builder
		b.WriteString("Sei il classificatore di intenti di un assistente per ispettori veterinari.\n")
		b.WriteString("Classifica il messaggio dell'utente in uno degli intenti elencati.\n\nIntenti:\n")
		for _, def := range intents.All() {
			fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
		}
		b.WriteString("\nRegole di disambiguazione:\n")
		b.WriteString("- \"mai ispezionati/controllati\" indica ask_mai_ispezionati, non ask_con_sanzioni.\n")
		b.WriteString("- \"piani in ritardo\" senza codice piano indica ask_piani_in_ritardo; con un codice indica ask_piano_ritardo.\n")
		b.WriteString("- domande su quali attivita' sono rischiose indicano ask_top_risk_activities; su quali stabilimenti ispezionare indicano ask_risk_based_priority.\n")
		b.WriteString("\nRispondi SOLO con JSON: {\"candidates\":[{\"intent\":...,\"confidence\":0..1,\"slots\":{...}}],\"message_kind\":\"vague|specific|continuation|refinement|selection\"}\n")
		fmt.Fprintf(&b, "Slot riconosciuti: %s\n", strings.Join(slotNames(), ", "))
		r.rubricText = b.String()
	})
	return r.rubricText
}

func slotNames() []string {
	names := []string{
		intents.SlotPlanCode, intents.SlotTopic, intents.SlotASL,
		intents.SlotNumRegistration, intents.SlotPartitaIVA, intents.SlotRagioneSociale,
		intents.SlotCategoria, intents.SlotLocation, intents.SlotRadiusKm,
		intents.SlotLimit, intents.SlotAddress,
	}
	sort.Strings(names)
	return names
}

// hintLines renders session hints as prompt context lines. The keys are
// a stable private namespace the model is told to treat as context.
func hintLines(hints Hints) []string {
	var lines []string
	if hints.PendingSlot != "" {
		lines = append(lines, "_session_pending_slot: "+hints.PendingSlot)
	}
	if len(hints.PendingIntents) > 0 {
		lines = append(lines, "_session_pending_intents: "+strings.Join(hints.PendingIntents, ", "))
	}
	if hints.LastIntent != "" {
		lines = append(lines, "_session_last_intent: "+hints.LastIntent)
	}
	if hints.FallbackPhase > 0 {
		lines = append(lines, fmt.Sprintf("_fallback_phase: %d", hints.FallbackPhase))
	}
	if len(hints.FallbackSuggestions) > 0 {
		lines = append(lines, "_fallback_suggestions: "+strings.Join(hints.FallbackSuggestions, ", "))
	}
	if len(lines) > 0 {
		lines = append([]string{"\nContesto di sessione:"}, lines...)
	}
	return lines
}

// truncate caps the message at the configured token budget using the
// cl100k_base encoding. The original text stays untouched in state.
func (r *Router) truncate(message string) string {
	maxTokens := r.tun.Load().maxMessageTokens
	if maxTokens <= 0 {
		return message
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		// Encoding tables unavailable; fall back to a byte cap.
		if len(message) > maxTokens*4 {
			return message[:maxTokens*4]
		}
		return message
	}
	tokens := enc.Encode(message, nil, nil)
	if len(tokens) <= maxTokens {
		return message
	}
	return enc.Decode(tokens[:maxTokens])
}

// parseClassification decodes the model output in three stages: direct
// parse, fenced-block strip, then balanced-brace extraction. The result
// is validated against the intent set and slot whitelist.
func parseClassification(raw string) (Classification, error) {
	var parsed llmClassification
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		stripped := stripCodeFence(raw)
		if err := json.Unmarshal([]byte(stripped), &parsed); err != nil {
			extracted, ok := extractJSONObject(raw)
			if !ok {
				return Classification{}, fmt.Errorf("no JSON object in output")
			}
			if err := json.Unmarshal([]byte(extracted), &parsed); err != nil {
				return Classification{}, fmt.Errorf("failed to decode classification: %w", err)
			}
		}
	}
	return validateClassification(parsed)
}

func validateClassification(parsed llmClassification) (Classification, error) {
	out := Classification{MessageKind: messageKind(parsed.MessageKind)}
	for _, c := range parsed.Candidates {
		if !intents.IsValid(c.Intent) {
			continue
		}
		conf := c.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		slots := make(map[string]any)
		for k, v := range c.Slots {
			// Unknown slot keys are dropped, never surfaced.
			if intents.IsValidSlot(k) && v != nil && v != "" {
				slots[k] = v
			}
		}
		out.Candidates = append(out.Candidates, Candidate{Intent: c.Intent, Confidence: conf, Slots: slots})
	}
	if len(out.Candidates) == 0 {
		return Classification{}, fmt.Errorf("no valid candidates")
	}
	sort.SliceStable(out.Candidates, func(i, j int) bool {
		return out.Candidates[i].Confidence > out.Candidates[j].Confidence
	})
	return out, nil
}

func messageKind(kind string) MessageKind {
	switch MessageKind(kind) {
	case KindVague, KindSpecific, KindContinuation, KindRefinement, KindSelection:
		return MessageKind(kind)
	default:
		return KindSpecific
	}
}

func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

// extractJSONObject returns the first balanced top-level JSON object in
// raw, tracking string literals so braces inside them do not count.
func extractJSONObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// fillLocation runs the dedicated location-extraction call used when the
// previous turn asked "where are you?". On any failure the raw message
// is cleaned up by regex instead.
func (r *Router) fillLocation(ctx context.Context, message string) string {
	raw, err := r.provider.Chat(ctx, []llms.Message{
		llms.System("Estrai l'indirizzo o il comune dal messaggio. Rispondi SOLO con JSON: {\"address\": \"...\"}"),
		llms.User(message),
	}, llms.Options{Temperature: 0, MaxTokens: 80, JSONMode: true, Timeout: locationTimeout})
	if err == nil {
		var out struct {
			Address string `json:"address"`
		}
		if obj, ok := extractJSONObject(raw); ok {
			if json.Unmarshal([]byte(obj), &out) == nil && strings.TrimSpace(out.Address) != "" {
				return strings.TrimSpace(out.Address)
			}
		}
	} else {
		slog.Debug("Location extraction call failed", "error", err)
	}

	cleaned := strings.TrimSpace(message)
	cleaned = strings.TrimPrefix(strings.ToLower(cleaned), "sono a ")
	cleaned = strings.TrimPrefix(cleaned, "mi trovo a ")
	return strings.Trim(cleaned, " .,!?")
}

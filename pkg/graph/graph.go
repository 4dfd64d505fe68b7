// Package graph runs one conversational turn through the node pipeline:
//
//	classify -> dialogue_manager -> ask_user            -> END
//	                             -> fallback_tool -> response -> END
//	                             -> <tool>_tool -> response -> END
//
// Node execution is sequential within a turn; the server runs many turns
// concurrently across senders. The graph owns the turn deadline: on
// expiry it short-circuits to a stock timeout answer and discards every
// pending session mutation.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vigila-ai/vigila/pkg/dialogue"
	"github.com/vigila-ai/vigila/pkg/fallback"
	"github.com/vigila-ai/vigila/pkg/intents"
	"github.com/vigila-ai/vigila/pkg/observability"
	"github.com/vigila-ai/vigila/pkg/response"
	"github.com/vigila-ai/vigila/pkg/router"
	"github.com/vigila-ai/vigila/pkg/session"
	"github.com/vigila-ai/vigila/pkg/tools"
	"github.com/vigila-ai/vigila/pkg/twophase"
)

// Stock texts for degraded turns.
const (
	TimeoutText  = "La richiesta sta impiegando troppo tempo. Riprova tra qualche istante."
	InternalText = "Si è verificato un errore inatteso. Riprova tra poco."
)

// Event is one structured notification emitted while a turn runs.
type Event struct {
	Type        string         `json:"type"` // status, reasoning, node_timing
	TimestampMS int64          `json:"timestamp_ms"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// EventCallback receives events in node order. May be nil.
type EventCallback func(Event)

// callbackGate forwards events until closed. A turn abandoned at the
// deadline keeps unwinding in its goroutine; the gate keeps its late
// events away from a caller that already handled the terminal result.
type callbackGate struct {
	mu     sync.Mutex
	closed bool
	cb     EventCallback
}

func newCallbackGate(cb EventCallback) *callbackGate {
	return &callbackGate{cb: cb}
}

func (g *callbackGate) Emit(ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.cb == nil {
		return
	}
	g.cb(ev)
}

// Close blocks until any in-flight emission finishes; afterwards no
// further event reaches the callback.
func (g *callbackGate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// TurnResult is the graph's terminal output for one turn.
type TurnResult struct {
	Text           string                `json:"text"`
	Intent         string                `json:"intent"`
	Slots          map[string]any        `json:"slots,omitempty"`
	ExecutionPath  []string              `json:"execution_path"`
	NodeTimings    map[string]int64      `json:"node_timings"`
	TotalMS        int64                 `json:"total_execution_ms"`
	Suggestions    []response.Suggestion `json:"suggestions,omitempty"`
	HasMoreDetails bool                  `json:"has_more_details"`
	Error          string                `json:"error,omitempty"`
}

// Graph wires the pipeline components.
type Graph struct {
	router    *router.Router
	manager   *dialogue.Manager
	recovery  *fallback.Engine
	registry  *tools.Registry
	shaper    *twophase.Shaper
	generator *response.Generator
	store     *session.Store
	timeout   time.Duration
	tracer    trace.Tracer
}

// New assembles a graph. The graph is a long-lived singleton.
func New(
	rt *router.Router,
	manager *dialogue.Manager,
	recovery *fallback.Engine,
	registry *tools.Registry,
	shaper *twophase.Shaper,
	generator *response.Generator,
	store *session.Store,
	timeout time.Duration,
) *Graph {
	if timeout <= 0 {
		timeout = 50 * time.Second
	}
	return &Graph{
		router:    rt,
		manager:   manager,
		recovery:  recovery,
		registry:  registry,
		shaper:    shaper,
		generator: generator,
		store:     store,
		timeout:   timeout,
		tracer:    observability.GetTracer("graph"),
	}
}

// Run executes one turn for sender. Turns for the same sender are
// serialized through the store's keyed mutex; the session entry is
// written only when the turn completes inside the deadline.
func (g *Graph) Run(ctx context.Context, sender, message string, meta router.Metadata, cb EventCallback) TurnResult {
	unlock := g.store.Lock(sender)
	defer unlock()

	entry, _ := g.store.Get(sender)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, observability.SpanTurn)
	defer span.End()

	type turnOutput struct {
		result TurnResult
		entry  session.Entry
		write  bool
	}
	done := make(chan turnOutput, 1)

	// The callback gate guarantees the caller sees no event after Run
	// returns, even while an abandoned timed-out turn keeps unwinding.
	gate := newCallbackGate(cb)
	defer gate.Close()

	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Turn panicked", "sender", sender, "panic", r, "stack", string(debug.Stack()))
				done <- turnOutput{result: TurnResult{Text: InternalText, Intent: intents.Fallback, Error: "internal"}}
			}
		}()
		result, next, write := g.runTurn(ctx, message, meta, entry, gate.Emit)
		done <- turnOutput{result: result, entry: next, write: write}
	}()

	select {
	case out := <-done:
		out.result.TotalMS = time.Since(start).Milliseconds()
		if out.write {
			g.store.Put(sender, out.entry)
		}
		g.recordTurn(out.result, start)
		return out.result
	case <-ctx.Done():
		// Deadline or client disconnect: the session stays untouched.
		result := TurnResult{
			Text:    TimeoutText,
			Intent:  intents.Fallback,
			Error:   "timeout",
			TotalMS: time.Since(start).Milliseconds(),
		}
		g.recordTurn(result, start)
		return result
	}
}

// runTurn executes the node sequence. It returns the turn result, the
// session entry to persist, and whether to persist it.
func (g *Graph) runTurn(ctx context.Context, message string, meta router.Metadata, entry session.Entry, cb EventCallback) (TurnResult, session.Entry, bool) {
	result := TurnResult{NodeTimings: make(map[string]int64)}

	// classify
	var cls router.Classification
	g.runNode(ctx, "classify", &result, cb, func() {
		cls = g.router.Classify(ctx, message, meta, hintsFrom(entry))
	})
	emitReasoning(cb, fmt.Sprintf("intento %s (%.2f)", cls.Top().Intent, cls.Top().Confidence))

	// dialogue_manager
	var decision dialogue.Decision
	g.runNode(ctx, "dialogue_manager", &result, cb, func() {
		decision = g.manager.Decide(cls, dialogue.Snapshot{
			State:         entry.Dialogue,
			LastIntent:    entry.LastIntent,
			LastSlots:     entry.LastSlots,
			DetailPending: entry.Detail != nil,
			FallbackPhase: entry.Fallback.Phase,
		})
	})

	result.Intent = decision.Intent
	result.Slots = decision.Slots

	if decision.TopicChanged {
		entry.Detail = nil
		entry.LastResponseContext = nil
	}
	// An open two-phase offer survives only an explicit confirm or
	// decline.
	if decision.Intent != intents.ConfirmShowDetails && decision.Intent != intents.DeclineShowDetails {
		entry.Detail = nil
	}

	switch decision.Action {
	case dialogue.ActionAskUser:
		result.Text = decision.Question
		entry.Dialogue = decision.Next
		entry.LastIntent = decision.Intent
		entry.LastSlots = decision.Slots
		entry.Fallback = fallback.State{}
		return result, entry, true

	case dialogue.ActionFallback:
		var outcome fallback.Outcome
		g.runNode(ctx, "fallback_tool", &result, cb, func() {
			outcome = g.recovery.Recover(ctx, message, entry.Fallback)
		})
		if outcome.Reset {
			entry.Fallback = fallback.State{}
		} else {
			entry.Fallback = outcome.Next
		}
		entry.Dialogue = dialogue.State{Slots: entry.Dialogue.Slots}

		g.runNode(ctx, "response", &result, cb, func() {
			result.Text = outcome.Message
		})
		return result, entry, true

	default: // execute
		detail := entry.Detail
		entry.Detail = nil

		var toolResult tools.Result
		nodeName := decision.Tool + "_tool"
		g.runNode(ctx, nodeName, &result, cb, func() {
			toolResult = g.registry.Dispatch(ctx, decision.Intent, tools.Request{
				Slots:    decision.Slots,
				Metadata: meta,
				Detail:   detail,
			})
		})
		if toolResult.Error != "" {
			result.Error = "tool_error"
		}

		shaped, newDetail := g.shaper.Shape(toolResult, decision.Intent, decision.Slots)
		if newDetail != nil {
			entry.Detail = newDetail
			result.HasMoreDetails = true
		}

		g.runNode(ctx, "response", &result, cb, func() {
			result.Text = g.generator.Generate(ctx, decision.Intent, message, shaped)
			result.Suggestions = response.Suggestions(decision.Intent, decision.Slots, shaped)
		})

		entry.Dialogue = decision.Next
		entry.LastIntent = decision.Intent
		entry.LastSlots = decision.Slots
		entry.Fallback = fallback.State{}
		entry.LastResponseContext = responseContext(shaped)
		return result, entry, true
	}
}

// runNode times a node, records its span and metric, appends it to the
// execution path, and emits status plus node_timing events.
func (g *Graph) runNode(ctx context.Context, name string, result *TurnResult, cb EventCallback, fn func()) {
	emit(cb, Event{Type: "status", TimestampMS: nowMS(), Payload: map[string]any{
		"node":    name,
		"message": statusMessage(name),
	}})

	_, span := g.tracer.Start(ctx, observability.SpanGraphNode,
		trace.WithAttributes(attribute.String(observability.AttrNodeName, name)))
	start := time.Now()
	fn()
	elapsed := time.Since(start)
	span.End()

	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordNode(name, elapsed)
	}

	result.ExecutionPath = append(result.ExecutionPath, name)
	result.NodeTimings[name] = elapsed.Milliseconds()

	emit(cb, Event{Type: "node_timing", TimestampMS: nowMS(), Payload: map[string]any{
		"node": name,
		"ms":   elapsed.Milliseconds(),
	}})
}

// hintsFrom projects the session entry onto the classifier's visible
// slice.
func hintsFrom(entry session.Entry) router.Hints {
	pending := entry.Dialogue.PendingIntents
	if len(pending) == 0 && entry.Fallback.Phase >= 1 {
		pending = entry.Fallback.Suggestions
	}
	return router.Hints{
		PendingSlot:         entry.Dialogue.PendingClarification,
		PendingIntents:      pending,
		LastIntent:          entry.LastIntent,
		LastSlots:           entry.LastSlots,
		DetailPending:       entry.Detail != nil,
		FallbackPhase:       entry.Fallback.Phase,
		FallbackSuggestions: entry.Fallback.Suggestions,
		FallbackCategory:    entry.Fallback.Category,
		LocationPending:     strings.Contains(entry.Dialogue.PendingClarification, intents.SlotLocation),
	}
}

// responseContext keeps a compact view of what was just answered, for
// anaphora on the next turn.
func responseContext(result tools.Result) map[string]any {
	if result.Type == "" && result.Data == nil {
		return nil
	}
	return map[string]any{
		"type":        result.Type,
		"items_count": result.ItemsCount,
	}
}

func statusMessage(node string) string {
	switch node {
	case "classify":
		return "Sto interpretando la domanda..."
	case "dialogue_manager":
		return "Sto decidendo come procedere..."
	case "response":
		return "Sto preparando la risposta..."
	case "fallback_tool":
		return "Sto cercando di capire la richiesta..."
	default:
		return "Sto recuperando i dati..."
	}
}

func emitReasoning(cb EventCallback, text string) {
	emit(cb, Event{Type: "reasoning", TimestampMS: nowMS(), Payload: map[string]any{"text": text}})
}

func emit(cb EventCallback, ev Event) {
	if cb != nil {
		cb(ev)
	}
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}

func (g *Graph) recordTurn(result TurnResult, start time.Time) {
	outcome := "ok"
	if result.Error != "" {
		outcome = result.Error
	}
	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordTurn(result.Intent, outcome, time.Since(start))
	}
}

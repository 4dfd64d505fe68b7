// Package dialogue decides what to do with a classified turn: run a
// tool, ask the user a question, or hand over to fallback recovery.
//
// Decide is a pure function over its inputs. It performs no I/O and no
// LLM calls, which keeps every policy decision unit-testable with plain
// table tests.
package dialogue

import (
	"fmt"
	"sync/atomic"

	"github.com/vigila-ai/vigila/pkg/config"
	"github.com/vigila-ai/vigila/pkg/intents"
	"github.com/vigila-ai/vigila/pkg/router"
)

// Action is the dialogue manager's verdict for a turn.
type Action string

const (
	ActionExecute  Action = "execute"
	ActionAskUser  Action = "ask_user"
	ActionFallback Action = "fallback"
)

// State is the cross-turn dialogue memory persisted in the session.
type State struct {
	// PendingClarification names the slot (or "a|b" slot group) the
	// previous turn asked for.
	PendingClarification string `json:"pending_clarification,omitempty"`

	// PendingIntents holds the choices of an open disambiguation
	// question.
	PendingIntents []string `json:"pending_intents,omitempty"`

	// ConfirmedIntent is the intent the user settled on through
	// clarification, carried until the topic changes.
	ConfirmedIntent string `json:"confirmed_intent,omitempty"`

	// Slots is the accumulator merged across turns of the same topic.
	Slots map[string]any `json:"slots,omitempty"`
}

// Snapshot is the slice of the session entry the rules read.
type Snapshot struct {
	State         State
	LastIntent    string
	LastSlots     map[string]any
	DetailPending bool
	FallbackPhase int
}

// Decision is the manager's output for one turn.
type Decision struct {
	Action   Action
	Intent   string
	Tool     string
	Question string

	// Slots is the merged slot set the tool should run with.
	Slots map[string]any

	// Next is the dialogue state to persist if the turn completes.
	Next State

	// TopicChanged signals that the response and detail contexts must
	// be dropped before dispatch.
	TopicChanged bool
}

// bands are the confidence thresholds, swapped whole on config reload.
type bands struct {
	high float64
	min  float64
	gap  float64
}

// Manager evaluates the ordered decision rules.
type Manager struct {
	bands atomic.Pointer[bands]
}

// NewManager builds a manager with the configured confidence bands.
func NewManager(cfg config.RouterConfig) *Manager {
	m := &Manager{}
	m.Reconfigure(cfg)
	return m
}

// Reconfigure swaps the confidence bands. Safe under concurrent Decide.
func (m *Manager) Reconfigure(cfg config.RouterConfig) {
	m.bands.Store(&bands{high: cfg.HighThreshold, min: cfg.MinThreshold, gap: cfg.AmbiguityGap})
}

// Decide applies the rules in order; the first matching rule wins.
func (m *Manager) Decide(cls router.Classification, snap Snapshot) Decision {
	b := m.bands.Load()
	top := cls.Top()
	slots := mergeSlots(snap.State.Slots, top.Slots)

	// Topic change: a different intent resets the accumulated context
	// before any rule fires. Confirm/decline and fallback are not
	// topics of their own.
	topicChanged := false
	if snap.LastIntent != "" && top.Intent != snap.LastIntent && !isContextIntent(top.Intent) &&
		cls.MessageKind != router.KindContinuation && cls.MessageKind != router.KindRefinement {
		topicChanged = true
		slots = mergeSlots(nil, top.Slots)
	}

	// Rule 1: an open two-phase offer binds confirm/decline
	// unconditionally.
	if snap.DetailPending && (top.Intent == intents.ConfirmShowDetails || top.Intent == intents.DeclineShowDetails) {
		return Decision{
			Action: ActionExecute,
			Intent: top.Intent,
			Tool:   intents.ToolFor(top.Intent),
			Slots:  slots,
			Next:   State{Slots: snap.State.Slots, ConfirmedIntent: snap.State.ConfirmedIntent},
		}
	}

	def, known := intents.Get(top.Intent)

	// Rules 2 and 3: confident classification, split on slot
	// completeness.
	if known && top.Confidence >= b.high && top.Intent != intents.Fallback {
		if ok, missing := intents.RequiredSlotsSatisfied(top.Intent, slots); !ok {
			return Decision{
				Action:       ActionAskUser,
				Intent:       top.Intent,
				Question:     def.SlotPrompts[missing],
				Slots:        slots,
				Next:         State{PendingClarification: missing, ConfirmedIntent: top.Intent, Slots: slots},
				TopicChanged: topicChanged,
			}
		}
		return Decision{
			Action:       ActionExecute,
			Intent:       top.Intent,
			Tool:         def.Tool,
			Slots:        slots,
			Next:         State{ConfirmedIntent: top.Intent, Slots: slots},
			TopicChanged: topicChanged,
		}
	}

	// Rule 4: ambiguity band with a close runner-up.
	if second, ok := cls.Second(); ok && top.Confidence >= b.min && top.Confidence < b.high &&
		top.Confidence-second.Confidence <= b.gap {
		topDef, okTop := intents.Get(top.Intent)
		secondDef, okSecond := intents.Get(second.Intent)
		if okTop && okSecond {
			return Decision{
				Action:   ActionAskUser,
				Intent:   top.Intent,
				Question: disambiguationQuestion(topDef, secondDef),
				Slots:    slots,
				Next: State{
					PendingIntents: []string{top.Intent, second.Intent},
					Slots:          slots,
				},
				TopicChanged: topicChanged,
			}
		}
	}

	// Rule 5: refinements and continuations carry the last intent
	// forward with the merged slot set.
	if (cls.MessageKind == router.KindRefinement || cls.MessageKind == router.KindContinuation) &&
		snap.LastIntent != "" && !isContextIntent(snap.LastIntent) {
		carried := mergeSlots(snap.LastSlots, top.Slots)
		lastDef, ok := intents.Get(snap.LastIntent)
		if ok {
			if satisfied, missing := intents.RequiredSlotsSatisfied(snap.LastIntent, carried); !satisfied {
				return Decision{
					Action:   ActionAskUser,
					Intent:   snap.LastIntent,
					Question: lastDef.SlotPrompts[missing],
					Slots:    carried,
					Next:     State{PendingClarification: missing, ConfirmedIntent: snap.LastIntent, Slots: carried},
				}
			}
			return Decision{
				Action: ActionExecute,
				Intent: snap.LastIntent,
				Tool:   lastDef.Tool,
				Slots:  carried,
				Next:   State{ConfirmedIntent: snap.LastIntent, Slots: carried},
			}
		}
	}

	// Rule 6: selection resolved against an open menu (the classifier
	// already mapped the pick to an intent).
	if cls.MessageKind == router.KindSelection && known && top.Intent != intents.Fallback {
		if ok, missing := intents.RequiredSlotsSatisfied(top.Intent, slots); !ok {
			return Decision{
				Action:   ActionAskUser,
				Intent:   top.Intent,
				Question: def.SlotPrompts[missing],
				Slots:    slots,
				Next:     State{PendingClarification: missing, ConfirmedIntent: top.Intent, Slots: slots},
			}
		}
		return Decision{
			Action: ActionExecute,
			Intent: top.Intent,
			Tool:   def.Tool,
			Slots:  slots,
			Next:   State{ConfirmedIntent: top.Intent, Slots: slots},
		}
	}

	// Rule 7: self-sufficient intents run regardless of confidence.
	if known && def.SelfSufficient && top.Intent != intents.Fallback && top.Confidence > 0 {
		return Decision{
			Action:       ActionExecute,
			Intent:       top.Intent,
			Tool:         def.Tool,
			Slots:        slots,
			Next:         State{Slots: slots},
			TopicChanged: topicChanged,
		}
	}

	// Rule 8: nothing applies.
	return Decision{
		Action:       ActionFallback,
		Intent:       intents.Fallback,
		Slots:        slots,
		Next:         State{Slots: snap.State.Slots},
		TopicChanged: topicChanged,
	}
}

// isContextIntent reports intents that never constitute a topic of
// their own.
func isContextIntent(intent string) bool {
	switch intent {
	case intents.ConfirmShowDetails, intents.DeclineShowDetails, intents.Fallback,
		intents.Greet, intents.Goodbye, intents.AskHelp:
		return true
	}
	return false
}

func disambiguationQuestion(first, second intents.Definition) string {
	return fmt.Sprintf("Non ho capito bene. Intendi:\n1) %s\n2) %s\nRispondi con 1 o 2.",
		first.Description, second.Description)
}

func mergeSlots(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		if v != nil && v != "" {
			out[k] = v
		}
	}
	for k, v := range overlay {
		if v != nil && v != "" {
			out[k] = v
		}
	}
	return out
}

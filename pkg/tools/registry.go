package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vigila-ai/vigila/pkg/intents"
	"github.com/vigila-ai/vigila/pkg/registry"
)

// Registry holds the tool handlers, keyed by tool name. Populated once
// at startup, read-only afterwards.
type Registry struct {
	*registry.BaseRegistry[Tool]
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Tool]()}
}

// RegisterTool adds a handler under its own name.
func (r *Registry) RegisterTool(t Tool) error {
	return r.Register(t.Name(), t)
}

// NewDefaultRegistry wires the conversational built-ins plus every
// domain tool over the given datastore.
func NewDefaultRegistry(store Datastore) (*Registry, error) {
	r := NewRegistry()
	all := []Tool{
		&GreetTool{}, &GoodbyeTool{}, &HelpTool{},
		&ConfirmDetailsTool{}, &DeclineDetailsTool{},
		&PianoDescriptionTool{Store: store},
		&PianoStabilimentiTool{Store: store},
		&PianiInRitardoTool{Store: store},
		&PianoRitardoTool{Store: store},
		&MaiIspezionatiTool{Store: store},
		&ConSanzioniTool{Store: store},
		&RiskBasedPriorityTool{Store: store},
		&TopRiskActivitiesTool{Store: store},
		&PriorityEstablishmentTool{Store: store},
		&EstablishmentHistoryTool{Store: store},
		&EstablishmentsNearbyTool{Store: store},
		&StaffContactTool{Store: store},
		&ProcedureInfoTool{Store: store},
	}
	for _, t := range all {
		if err := r.RegisterTool(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Dispatch resolves the intent to its tool and invokes it with a copy
// of the slots. Handler errors never propagate: they are captured in
// Result.Error so the response generator can apologize.
func (r *Registry) Dispatch(ctx context.Context, intent string, req Request) Result {
	name := intents.ToolFor(intent)
	tool, ok := r.Get(name)
	if !ok {
		slog.Error("No handler registered for tool", "tool", name, "intent", intent)
		return Result{Type: "error", Error: fmt.Sprintf("no handler for tool %q", name)}
	}

	req.Intent = intent
	req.Slots = copySlots(req.Slots)

	result, err := tool.Handle(ctx, req)
	if err != nil {
		slog.Warn("Tool handler failed", "tool", name, "error", err)
		return Result{Type: "error", Error: err.Error()}
	}
	return result
}

func copySlots(slots map[string]any) map[string]any {
	out := make(map[string]any, len(slots))
	for k, v := range slots {
		out[k] = v
	}
	return out
}

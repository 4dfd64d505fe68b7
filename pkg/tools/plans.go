package tools

import (
	"context"
	"fmt"
	"strings"
)

// Plan-related tools.

type planArgs struct {
	PlanCode string `slot:"plan_code"`
}

type PianoDescriptionTool struct {
	Store Datastore
}

func (t *PianoDescriptionTool) Name() string { return "piano_description" }

func (t *PianoDescriptionTool) Handle(ctx context.Context, req Request) (Result, error) {
	var args planArgs
	if err := decodeArgs(req.Slots, &args); err != nil {
		return Result{}, err
	}

	plan, err := t.Store.Plan(ctx, args.PlanCode)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Type: "plan",
		Data: plan,
		FormattedResponse: fmt.Sprintf("**Piano %s — %s**\n\n%s\n\nCampionamenti previsti: %d, effettuati: %d.",
			plan.Code, plan.Name, plan.Description, plan.SamplesDue, plan.SamplesDone),
		ItemsCount: 1,
	}, nil
}

type PianoStabilimentiTool struct {
	Store Datastore
}

func (t *PianoStabilimentiTool) Name() string { return "piano_stabilimenti" }

func (t *PianoStabilimentiTool) Handle(ctx context.Context, req Request) (Result, error) {
	var args planArgs
	if err := decodeArgs(req.Slots, &args); err != nil {
		return Result{}, err
	}

	items, err := t.Store.EstablishmentsByPlan(ctx, args.PlanCode)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{
			Type:              "establishments",
			FormattedResponse: fmt.Sprintf("Nessuno stabilimento risulta coinvolto nel piano %s.", strings.ToUpper(args.PlanCode)),
		}, nil
	}

	return Result{
		Type:              "establishments",
		Data:              items,
		FormattedResponse: formatEstablishmentList(fmt.Sprintf("Stabilimenti coinvolti nel piano %s", strings.ToUpper(args.PlanCode)), items),
		ItemsCount:        len(items),
	}, nil
}

type PianiInRitardoTool struct {
	Store Datastore
}

func (t *PianiInRitardoTool) Name() string { return "piani_in_ritardo" }

func (t *PianiInRitardoTool) Handle(ctx context.Context, req Request) (Result, error) {
	plans, err := t.Store.Plans(ctx)
	if err != nil {
		return Result{}, err
	}

	var delayed []Plan
	for _, p := range plans {
		if p.Delayed() {
			delayed = append(delayed, p)
		}
	}
	if len(delayed) == 0 {
		return Result{
			Type:              "plans",
			FormattedResponse: "Ottime notizie: nessun piano risulta in ritardo.",
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Piani in ritardo (%d):\n", len(delayed))
	for _, p := range delayed {
		fmt.Fprintf(&b, "- **%s** %s: %d/%d campionamenti", p.Code, p.Name, p.SamplesDone, p.SamplesDue)
		if p.Deadline != "" {
			fmt.Fprintf(&b, " (scadenza %s)", p.Deadline)
		}
		b.WriteByte('\n')
	}

	return Result{
		Type:              "plans",
		Data:              delayed,
		FormattedResponse: b.String(),
		ItemsCount:        len(delayed),
	}, nil
}

type PianoRitardoTool struct {
	Store Datastore
}

func (t *PianoRitardoTool) Name() string { return "piano_ritardo" }

func (t *PianoRitardoTool) Handle(ctx context.Context, req Request) (Result, error) {
	var args planArgs
	if err := decodeArgs(req.Slots, &args); err != nil {
		return Result{}, err
	}

	plan, err := t.Store.Plan(ctx, args.PlanCode)
	if err != nil {
		return Result{}, err
	}

	status := "in linea con la programmazione"
	if plan.Delayed() {
		status = fmt.Sprintf("in ritardo di %d campionamenti", plan.SamplesDue-plan.SamplesDone)
	}
	text := fmt.Sprintf("Il piano **%s** (%s) è %s: %d campionamenti effettuati su %d previsti.",
		plan.Code, plan.Name, status, plan.SamplesDone, plan.SamplesDue)
	if plan.Deadline != "" {
		text += fmt.Sprintf(" Scadenza: %s.", plan.Deadline)
	}

	return Result{
		Type:              "plan",
		Data:              plan,
		FormattedResponse: text,
		ItemsCount:        1,
	}, nil
}

func formatEstablishmentList(title string, items []Establishment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d):\n", title, len(items))
	for _, e := range items {
		fmt.Fprintf(&b, "- **%s** (%s)", e.RagioneSociale, e.NumRegistration)
		if e.Comune != "" {
			fmt.Fprintf(&b, ", %s", e.Comune)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

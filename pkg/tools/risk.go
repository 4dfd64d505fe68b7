package tools

import (
	"context"
	"fmt"
	"strings"
)

// Risk and history tools. The caller's ASL from request metadata scopes
// the query when the user did not name one explicitly.

type territoryArgs struct {
	ASL   string `slot:"asl"`
	Limit int    `slot:"limit"`
}

func (a *territoryArgs) scope(req Request) {
	if a.ASL == "" {
		a.ASL = req.Metadata.ASL
	}
}

type MaiIspezionatiTool struct {
	Store Datastore
}

func (t *MaiIspezionatiTool) Name() string { return "mai_ispezionati" }

func (t *MaiIspezionatiTool) Handle(ctx context.Context, req Request) (Result, error) {
	var args territoryArgs
	if err := decodeArgs(req.Slots, &args); err != nil {
		return Result{}, err
	}
	args.scope(req)

	items, err := t.Store.NeverInspected(ctx, args.ASL)
	if err != nil {
		return Result{}, err
	}
	items = clamp(items, args.Limit)
	if len(items) == 0 {
		return Result{
			Type:              "establishments",
			FormattedResponse: "Tutti gli operatori del territorio risultano già ispezionati almeno una volta.",
		}, nil
	}

	return Result{
		Type:              "establishments",
		Data:              items,
		FormattedResponse: formatEstablishmentList("Operatori mai ispezionati", items),
		ItemsCount:        len(items),
	}, nil
}

type ConSanzioniTool struct {
	Store Datastore
}

func (t *ConSanzioniTool) Name() string { return "con_sanzioni" }

func (t *ConSanzioniTool) Handle(ctx context.Context, req Request) (Result, error) {
	var args territoryArgs
	if err := decodeArgs(req.Slots, &args); err != nil {
		return Result{}, err
	}
	args.scope(req)

	items, err := t.Store.WithSanctions(ctx, args.ASL)
	if err != nil {
		return Result{}, err
	}
	items = clamp(items, args.Limit)
	if len(items) == 0 {
		return Result{
			Type:              "establishments",
			FormattedResponse: "Nessun operatore del territorio risulta avere sanzioni registrate.",
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Operatori con sanzioni (%d):\n", len(items))
	for _, e := range items {
		fmt.Fprintf(&b, "- **%s** (%s): %d sanzioni\n", e.RagioneSociale, e.NumRegistration, e.Sanctions)
	}

	return Result{
		Type:              "establishments",
		Data:              items,
		FormattedResponse: b.String(),
		ItemsCount:        len(items),
	}, nil
}

type RiskBasedPriorityTool struct {
	Store Datastore
}

func (t *RiskBasedPriorityTool) Name() string { return "risk_based_priority" }

func (t *RiskBasedPriorityTool) Handle(ctx context.Context, req Request) (Result, error) {
	var args territoryArgs
	if err := decodeArgs(req.Slots, &args); err != nil {
		return Result{}, err
	}
	args.scope(req)
	if args.Limit <= 0 {
		args.Limit = 10
	}

	items, err := t.Store.RiskRanking(ctx, args.ASL, args.Limit)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{
			Type:              "establishments",
			FormattedResponse: "Non ho stabilimenti da prioritizzare per il tuo territorio.",
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stabilimenti da ispezionare in ordine di priorità (%d):\n", len(items))
	for i, e := range items {
		fmt.Fprintf(&b, "%d. **%s** (%s), rischio %.1f", i+1, e.RagioneSociale, e.NumRegistration, e.RiskScore)
		if e.LastInspection != "" {
			fmt.Fprintf(&b, ", ultima ispezione %s", e.LastInspection)
		} else {
			b.WriteString(", mai ispezionato")
		}
		b.WriteByte('\n')
	}

	return Result{
		Type:              "ranking",
		Data:              items,
		FormattedResponse: b.String(),
		ItemsCount:        len(items),
	}, nil
}

type TopRiskActivitiesTool struct {
	Store Datastore
}

func (t *TopRiskActivitiesTool) Name() string { return "top_risk_activities" }

func (t *TopRiskActivitiesTool) Handle(ctx context.Context, req Request) (Result, error) {
	var args territoryArgs
	if err := decodeArgs(req.Slots, &args); err != nil {
		return Result{}, err
	}
	args.scope(req)
	if args.Limit <= 0 {
		args.Limit = 5
	}

	items, err := t.Store.TopRiskActivities(ctx, args.ASL, args.Limit)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{
			Type:              "activity_risk",
			FormattedResponse: "Non ho dati di rischio per categoria nel tuo territorio.",
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tipologie di attività più a rischio (%d):\n", len(items))
	for i, a := range items {
		fmt.Fprintf(&b, "%d. **%s**: rischio medio %.1f su %d stabilimenti\n", i+1, a.Categoria, a.AvgRisk, a.Count)
	}

	return Result{
		Type:              "activity_risk",
		Data:              items,
		FormattedResponse: b.String(),
		ItemsCount:        len(items),
	}, nil
}

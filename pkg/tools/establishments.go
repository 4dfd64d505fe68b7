package tools

import (
	"context"
	"fmt"
	"strings"
)

// Single-establishment and proximity tools.

type establishmentArgs struct {
	NumRegistration string `slot:"num_registration"`
	PartitaIVA      string `slot:"partita_iva"`
	RagioneSociale  string `slot:"ragione_sociale"`
}

func (a establishmentArgs) ref() EstablishmentRef {
	return EstablishmentRef{
		NumRegistration: a.NumRegistration,
		PartitaIVA:      a.PartitaIVA,
		RagioneSociale:  a.RagioneSociale,
	}
}

type PriorityEstablishmentTool struct {
	Store Datastore
}

func (t *PriorityEstablishmentTool) Name() string { return "priority_establishment" }

func (t *PriorityEstablishmentTool) Handle(ctx context.Context, req Request) (Result, error) {
	var args establishmentArgs
	if err := decodeArgs(req.Slots, &args); err != nil {
		return Result{}, err
	}

	e, err := t.Store.Establishment(ctx, args.ref())
	if err != nil {
		return Result{}, err
	}

	urgency := "bassa"
	switch {
	case e.RiskScore >= 8:
		urgency = "alta"
	case e.RiskScore >= 5:
		urgency = "media"
	}
	text := fmt.Sprintf("**%s** (%s) ha un punteggio di rischio di %.1f: priorità di ispezione **%s**.",
		e.RagioneSociale, e.NumRegistration, e.RiskScore, urgency)
	if e.LastInspection != "" {
		text += fmt.Sprintf(" Ultima ispezione: %s.", e.LastInspection)
	} else {
		text += " Non risulta mai ispezionato."
	}

	return Result{
		Type:              "establishment",
		Data:              e,
		FormattedResponse: text,
		ItemsCount:        1,
	}, nil
}

type EstablishmentHistoryTool struct {
	Store Datastore
}

func (t *EstablishmentHistoryTool) Name() string { return "establishment_history" }

func (t *EstablishmentHistoryTool) Handle(ctx context.Context, req Request) (Result, error) {
	var args establishmentArgs
	if err := decodeArgs(req.Slots, &args); err != nil {
		return Result{}, err
	}

	e, err := t.Store.Establishment(ctx, args.ref())
	if err != nil {
		return Result{}, err
	}
	history, err := t.Store.History(ctx, args.ref())
	if err != nil {
		return Result{}, err
	}
	if len(history) == 0 {
		return Result{
			Type:              "history",
			FormattedResponse: fmt.Sprintf("**%s** (%s) non ha ispezioni registrate.", e.RagioneSociale, e.NumRegistration),
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Storico ispezioni di **%s** (%s), %d controlli:\n", e.RagioneSociale, e.NumRegistration, len(history))
	for _, i := range history {
		fmt.Fprintf(&b, "- %s, %s: %s", i.Date, i.Kind, i.Outcome)
		if i.NonConformities > 0 {
			fmt.Fprintf(&b, " (%d non conformità)", i.NonConformities)
		}
		b.WriteByte('\n')
	}

	return Result{
		Type:              "history",
		Data:              map[string]any{"establishment": e, "inspections": history},
		FormattedResponse: b.String(),
		ItemsCount:        len(history),
	}, nil
}

type nearbyArgs struct {
	Location string  `slot:"location"`
	Address  string  `slot:"address"`
	RadiusKm float64 `slot:"radius_km"`
	Limit    int     `slot:"limit"`
}

type EstablishmentsNearbyTool struct {
	Store Datastore
}

func (t *EstablishmentsNearbyTool) Name() string { return "establishments_nearby" }

func (t *EstablishmentsNearbyTool) Handle(ctx context.Context, req Request) (Result, error) {
	var args nearbyArgs
	if err := decodeArgs(req.Slots, &args); err != nil {
		return Result{}, err
	}
	location := args.Location
	if location == "" {
		location = args.Address
	}

	items, err := t.Store.Nearby(ctx, location, args.RadiusKm, args.Limit)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{
			Type:              "establishments",
			FormattedResponse: fmt.Sprintf("Nessuno stabilimento trovato vicino a %s.", location),
		}, nil
	}

	return Result{
		Type:              "establishments",
		Data:              items,
		FormattedResponse: formatEstablishmentList(fmt.Sprintf("Stabilimenti vicino a %s", location), items),
		ItemsCount:        len(items),
	}, nil
}

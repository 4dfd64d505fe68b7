package tools

import (
	"context"
	"fmt"
	"strings"
)

type topicArgs struct {
	Topic string `slot:"topic"`
}

type StaffContactTool struct {
	Store Datastore
}

func (t *StaffContactTool) Name() string { return "staff_contact" }

func (t *StaffContactTool) Handle(ctx context.Context, req Request) (Result, error) {
	var args topicArgs
	if err := decodeArgs(req.Slots, &args); err != nil {
		return Result{}, err
	}

	members, err := t.Store.StaffByTopic(ctx, args.Topic)
	if err != nil {
		return Result{}, err
	}
	if len(members) == 0 {
		return Result{
			Type:              "staff",
			FormattedResponse: fmt.Sprintf("Non ho trovato un referente per \"%s\". Prova a riformulare la materia.", args.Topic),
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Referenti per \"%s\":\n", args.Topic)
	for _, m := range members {
		fmt.Fprintf(&b, "- **%s**, %s", m.Name, m.Role)
		if m.Phone != "" {
			fmt.Fprintf(&b, ", tel. %s", m.Phone)
		}
		if m.Email != "" {
			fmt.Fprintf(&b, ", %s", m.Email)
		}
		b.WriteByte('\n')
	}

	return Result{
		Type:              "staff",
		Data:              members,
		FormattedResponse: b.String(),
		ItemsCount:        len(members),
	}, nil
}

type ProcedureInfoTool struct {
	Store Datastore
}

func (t *ProcedureInfoTool) Name() string { return "procedure_info" }

func (t *ProcedureInfoTool) Handle(ctx context.Context, req Request) (Result, error) {
	var args topicArgs
	if err := decodeArgs(req.Slots, &args); err != nil {
		return Result{}, err
	}

	procedures, err := t.Store.ProceduresByTopic(ctx, args.Topic)
	if err != nil {
		return Result{}, err
	}
	if len(procedures) == 0 {
		return Result{
			Type:              "procedures",
			FormattedResponse: fmt.Sprintf("Non ho documentazione su \"%s\".", args.Topic),
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Documentazione su \"%s\":\n", args.Topic)
	for _, p := range procedures {
		fmt.Fprintf(&b, "- **%s**: %s", p.Title, p.Summary)
		if p.Reference != "" {
			fmt.Fprintf(&b, " (rif. %s)", p.Reference)
		}
		b.WriteByte('\n')
	}

	return Result{
		Type:              "procedures",
		Data:              procedures,
		FormattedResponse: b.String(),
		ItemsCount:        len(procedures),
	}, nil
}

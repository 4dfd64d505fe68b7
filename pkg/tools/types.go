// Package tools implements the named handlers dispatched per intent.
//
// A tool receives the merged slot set and request metadata and returns a
// structured Result. Tools that already know how to phrase their answer
// set FormattedResponse (Italian markdown) and the response generator
// passes it through verbatim; otherwise the generator builds prose from
// Data.
package tools

import (
	"context"

	"github.com/vigila-ai/vigila/pkg/router"
)

// Result is the structured outcome of one tool invocation. Type
// discriminates how Data is treated downstream.
type Result struct {
	Type              string `json:"type"`
	Data              any    `json:"data,omitempty"`
	FormattedResponse string `json:"formatted_response,omitempty"`
	ItemsCount        int    `json:"items_count,omitempty"`
	Error             string `json:"error,omitempty"`
}

// DetailContext stashes the full payload of a two-phase summary until
// the user confirms or declines.
type DetailContext struct {
	Intent    string `json:"intent"`
	SlotsHash string `json:"slots_hash"`
	Full      Result `json:"full"`
}

// Request carries everything a handler may read. Handlers must not
// mutate it or retain references past the call.
type Request struct {
	Intent   string
	Slots    map[string]any
	Metadata router.Metadata

	// Detail is the open two-phase context, consumed by the confirm and
	// decline handlers only.
	Detail *DetailContext
}

// Tool is one named handler.
type Tool interface {
	Name() string
	Handle(ctx context.Context, req Request) (Result, error)
}

package tools

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// decodeArgs maps the loosely-typed slot bundle onto a tool's typed
// argument struct. Weak typing is intentional: slot values arrive from
// regex extraction (strings) or LLM JSON (numbers as float64) and tools
// should not care which.
func decodeArgs(slots map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "slot",
	})
	if err != nil {
		return fmt.Errorf("failed to build args decoder: %w", err)
	}
	if err := decoder.Decode(slots); err != nil {
		return fmt.Errorf("invalid slot values: %w", err)
	}
	return nil
}

// Package twophase turns oversized tool results into a short summary
// plus a stashed full payload the user can ask for. Small results pass
// through untouched.
package twophase

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/vigila-ai/vigila/pkg/config"
	"github.com/vigila-ai/vigila/pkg/intents"
	"github.com/vigila-ai/vigila/pkg/tools"
)

// ConfirmQuestion closes every two-phase summary. The router's confirm
// heuristics are tuned around the user answering exactly this.
const ConfirmQuestion = "Vuoi vedere tutti i dettagli?"

const summaryItems = 3

// Shaper applies the per-intent item-count thresholds. The threshold
// map is swapped whole on config reload, never mutated in place.
type Shaper struct {
	thresholds atomic.Pointer[map[string]int]
}

// NewShaper merges configured thresholds over the catalog defaults.
// A configured threshold of 0 disables shaping for that intent.
func NewShaper(cfg config.TwoPhaseConfig) *Shaper {
	s := &Shaper{}
	s.Reconfigure(cfg)
	return s
}

// Reconfigure rebuilds the threshold table. Safe under concurrent Shape.
func (s *Shaper) Reconfigure(cfg config.TwoPhaseConfig) {
	thresholds := make(map[string]int)
	for _, def := range intents.All() {
		if def.TwoPhaseThreshold > 0 {
			thresholds[def.Name] = def.TwoPhaseThreshold
		}
	}
	for name, n := range cfg.Thresholds {
		if n <= 0 {
			delete(thresholds, name)
			continue
		}
		thresholds[name] = n
	}
	s.thresholds.Store(&thresholds)
}

// Threshold returns the active threshold for an intent (0 = disabled).
func (s *Shaper) Threshold(intent string) int {
	return (*s.thresholds.Load())[intent]
}

// Shape summarizes result when it exceeds the intent's threshold. The
// returned DetailContext is non-nil only when a summary was produced.
func (s *Shaper) Shape(result tools.Result, intent string, slots map[string]any) (tools.Result, *tools.DetailContext) {
	threshold, ok := (*s.thresholds.Load())[intent]
	if !ok || result.ItemsCount <= threshold || result.Error != "" {
		return result, nil
	}

	detail := &tools.DetailContext{
		Intent:    intent,
		SlotsHash: hashSlots(slots),
		Full:      result,
	}

	summary := tools.Result{
		Type:              result.Type,
		Data:              summaryData(result),
		FormattedResponse: summaryText(result),
		ItemsCount:        result.ItemsCount,
	}
	return summary, detail
}

// summaryData keeps the count and the top items of a list payload.
func summaryData(result tools.Result) any {
	items, ok := asList(result.Data)
	if !ok {
		return map[string]any{"items_count": result.ItemsCount}
	}
	top := items
	if len(top) > summaryItems {
		top = top[:summaryItems]
	}
	return map[string]any{
		"items_count": result.ItemsCount,
		"top_items":   top,
	}
}

// summaryText rebuilds a short response from the full formatted text:
// headline, the first few list lines, then the confirm question.
func summaryText(result tools.Result) string {
	var b strings.Builder
	lines := strings.Split(strings.TrimSpace(result.FormattedResponse), "\n")

	kept := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		isItem := strings.HasPrefix(trimmed, "-") || startsWithOrdinal(trimmed)
		if isItem {
			if kept >= summaryItems {
				continue
			}
			kept++
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "... e altri %d risultati.\n\n%s", result.ItemsCount-kept, ConfirmQuestion)
	return b.String()
}

func startsWithOrdinal(line string) bool {
	for i, r := range line {
		if r >= '0' && r <= '9' {
			continue
		}
		return i > 0 && r == '.'
	}
	return false
}

// asList normalizes slice payloads to []any via JSON. Non-list payloads
// report ok=false.
func asList(data any) ([]any, bool) {
	if data == nil {
		return nil, false
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

// hashSlots produces a stable fingerprint of the slot set, used to key
// the stashed payload.
func hashSlots(slots map[string]any) string {
	keys := make([]string, 0, len(slots))
	for k := range slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, slots[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

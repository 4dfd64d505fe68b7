package router

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/vigila-ai/vigila/pkg/intents"
)

// Deterministic slot extractors. These run on every message regardless
// of which cascade layer settles the intent, and their output is merged
// over whatever the LLM returns (regex wins on conflict).
var (
	// Monitoring plan codes: a letter block followed by digits ("A1",
	// "B12", "PNR3"). Bare single letters are too ambiguous to match.
	planCodeRe = regexp.MustCompile(`(?i)\bpiano\s+([A-Z]{1,3}\d{1,3})\b|\b([A-Z]\d{1,3})\b`)

	// Establishment registration numbers, e.g. "049CE0017".
	numRegistrationRe = regexp.MustCompile(`\b(\d{3}[A-Z]{2}\d{3,5})\b`)

	// Italian VAT numbers are exactly 11 digits.
	partitaIVARe = regexp.MustCompile(`\b(\d{11})\b`)

	aslRe      = regexp.MustCompile(`(?i)\basl\s+([a-zàèéìòù]+(?:\s+\d+)?)`)
	radiusRe   = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*km\b`)
	limitRe    = regexp.MustCompile(`(?i)\b(?:primi|prime|top|massimo)\s+(\d{1,3})\b`)
	locationRe = regexp.MustCompile(`(?i)\b(?:vicino a|nei pressi di|in zona|nel comune di|a partire da)\s+([a-zàèéìòù' ]{2,40}?)(?:[.,?!]|$)`)

	// Quoted names are taken as company names verbatim.
	ragioneSocialeRe = regexp.MustCompile(`"([^"]{2,80})"|“([^”]{2,80})”`)

	categoriaRe = regexp.MustCompile(`(?i)\b(macell\w+|caseifici\w*|salumifici\w*|allevament\w+|ristorazion\w*|deposit\w+|stabiliment\w+ carni)\b`)
)

// ExtractSlots runs every regex extractor over the raw message and
// returns the recognized slot values.
func ExtractSlots(message string) map[string]any {
	slots := make(map[string]any)

	if m := planCodeRe.FindStringSubmatch(message); m != nil {
		code := m[1]
		if code == "" {
			code = m[2]
		}
		slots[intents.SlotPlanCode] = strings.ToUpper(code)
	}
	if m := numRegistrationRe.FindStringSubmatch(message); m != nil {
		slots[intents.SlotNumRegistration] = m[1]
	}
	if m := partitaIVARe.FindStringSubmatch(message); m != nil {
		slots[intents.SlotPartitaIVA] = m[1]
	}
	if m := aslRe.FindStringSubmatch(message); m != nil {
		slots[intents.SlotASL] = strings.TrimSpace(m[1])
	}
	if m := radiusRe.FindStringSubmatch(message); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64); err == nil {
			slots[intents.SlotRadiusKm] = v
		}
	}
	if m := limitRe.FindStringSubmatch(message); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			slots[intents.SlotLimit] = v
		}
	}
	if m := locationRe.FindStringSubmatch(message); m != nil {
		slots[intents.SlotLocation] = strings.TrimSpace(m[1])
	}
	if m := ragioneSocialeRe.FindStringSubmatch(message); m != nil {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		slots[intents.SlotRagioneSociale] = name
	}
	if m := categoriaRe.FindStringSubmatch(message); m != nil {
		slots[intents.SlotCategoria] = strings.ToLower(m[1])
	}

	return slots
}

// mergeSlots overlays b onto a without mutating either, dropping keys
// outside the recognized slot namespace and empty values.
func mergeSlots(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		if intents.IsValidSlot(k) && v != nil && v != "" {
			out[k] = v
		}
	}
	for k, v := range b {
		if intents.IsValidSlot(k) && v != nil && v != "" {
			out[k] = v
		}
	}
	return out
}

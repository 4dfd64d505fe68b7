package router

import (
	"regexp"
	"strings"

	"github.com/vigila-ai/vigila/pkg/intents"
)

// Essential heuristics. Always evaluated before any cache or LLM work;
// a hit produces a single high-confidence candidate and ends the
// cascade. Confidences sit in the 0.90-0.95 band so heuristic results
// always clear the dispatch threshold.

const (
	confGreeting  = 0.95
	confConfirm   = 0.95
	confKeyword   = 0.93
	confDelayed   = 0.92
	confProximity = 0.90
)

var (
	greetingRe = regexp.MustCompile(`(?i)^(ciao|salve|buongiorno|buonasera|buon pomeriggio|hey|ehi)\b`)
	goodbyeRe  = regexp.MustCompile(`(?i)^(arrivederci|addio|a presto|a dopo|buona giornata|ci vediamo)\b|\b(ho finito)\b`)
	helpRe     = regexp.MustCompile(`(?i)\b(aiuto|help)\b|cosa (puoi|sai) fare|che domande`)

	confirmRe = regexp.MustCompile(`(?i)^(s[iì]|certo|ok|okay|va bene|vai|mostrameli|d'accordo|perfetto|volentieri)\b`)
	declineRe = regexp.MustCompile(`(?i)^(no|non serve|basta|lascia stare|non ora)\b`)

	neverInspectedRe = regexp.MustCompile(`(?i)\bmai\s+(stat[ie]\s+)?(ispezionat|controllat)`)
	sanctionsRe      = regexp.MustCompile(`(?i)\b(sanzion|non conformit|multat|violazion)`)

	delayedRe   = regexp.MustCompile(`(?i)\b(ritardo|arretrat|indietro|scadenz)`)
	proximityRe = regexp.MustCompile(`(?i)\b(vicin[oi]|nei pressi|in zona|raggio)\b|\b\d+\s*km\b`)
)

// shortMessageLimit bounds greeting and confirm matching. A long
// message that happens to open with "ciao" is still a real question.
const shortMessageLimit = 40

// applyHeuristics returns a settled classification for messages the
// deterministic layer can decide on its own, or ok=false to fall
// through the cascade.
func applyHeuristics(message string, slots map[string]any, hints Hints) (Classification, bool) {
	// Accents are folded before matching: RE2 treats \b as an ASCII word
	// boundary, so "sì" would otherwise never end a match.
	normalized := foldAccents(normalize(message))
	short := len(normalized) <= shortMessageLimit

	// Confirm and decline only mean anything while a two-phase offer
	// is open.
	if hints.DetailPending && short {
		if confirmRe.MatchString(normalized) {
			return settle(intents.ConfirmShowDetails, confConfirm, slots, KindContinuation), true
		}
		if declineRe.MatchString(normalized) {
			return settle(intents.DeclineShowDetails, confConfirm, slots, KindContinuation), true
		}
	}

	if short && greetingRe.MatchString(normalized) && !helpRe.MatchString(normalized) {
		return settle(intents.Greet, confGreeting, slots, KindVague), true
	}
	if short && goodbyeRe.MatchString(normalized) {
		return settle(intents.Goodbye, confGreeting, slots, KindVague), true
	}
	if helpRe.MatchString(normalized) {
		return settle(intents.AskHelp, confGreeting, slots, KindVague), true
	}

	// Risk phrasing that the model routinely confuses is pinned here.
	if neverInspectedRe.MatchString(normalized) {
		return settle(intents.AskMaiIspezionati, confKeyword, slots, KindSpecific), true
	}
	if sanctionsRe.MatchString(normalized) {
		return settle(intents.AskConSanzioni, confKeyword, slots, KindSpecific), true
	}

	// "Delayed plans" splits on whether a plan code was extracted: with
	// a code the user asks about one plan, without it about all plans.
	if delayedRe.MatchString(normalized) && strings.Contains(normalized, "pian") {
		if _, ok := slots[intents.SlotPlanCode]; ok {
			return settle(intents.AskPianoRitardo, confDelayed, slots, KindSpecific), true
		}
		return settle(intents.AskPianiInRitardo, confDelayed, slots, KindSpecific), true
	}

	if proximityRe.MatchString(normalized) && strings.Contains(normalized, "stabilimen") {
		return settle(intents.AskEstablishmentsNearby, confProximity, slots, KindSpecific), true
	}

	return Classification{}, false
}

// settle builds a single-candidate classification for a heuristic hit.
func settle(intent string, confidence float64, slots map[string]any, kind MessageKind) Classification {
	return Classification{
		Candidates:     []Candidate{{Intent: intent, Confidence: confidence, Slots: slots}},
		ExtractedSlots: slots,
		MessageKind:    kind,
	}
}

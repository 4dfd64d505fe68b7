// Package router classifies an incoming message into an intent plus
// extracted slots. Classification runs as a cascade: deterministic
// heuristics first, then a regex slot pre-parser, then a bounded LRU
// cache, and only as a last resort an LLM call in JSON mode. A message
// the heuristics can settle never touches the model.
package router

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MessageKind describes how a message relates to the ongoing dialogue.
type MessageKind string

const (
	KindVague        MessageKind = "vague"
	KindSpecific     MessageKind = "specific"
	KindContinuation MessageKind = "continuation"
	KindRefinement   MessageKind = "refinement"
	KindSelection    MessageKind = "selection"
)

// Metadata carries the caller identity fields forwarded with each
// request. The orchestrator treats them as opaque filter hints.
type Metadata struct {
	ASL           string `json:"asl,omitempty"`
	ASLID         string `json:"asl_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	CodiceFiscale string `json:"codice_fiscale,omitempty"`
	Username      string `json:"username,omitempty"`
	Unit          string `json:"unit,omitempty"`
}

// Fingerprint condenses the metadata fields that influence
// classification into a stable string for cache keying.
func (m Metadata) Fingerprint() string {
	return m.ASL + "|" + m.ASLID
}

// Hints is the slice of session state the classifier is allowed to see.
// The graph derives it from the sender's session entry before classify.
type Hints struct {
	// PendingSlot is set when the previous turn asked for a specific
	// slot value ("which plan?").
	PendingSlot string

	// PendingIntents holds the candidate intents of an open
	// disambiguation question.
	PendingIntents []string

	// LastIntent is the intent dispatched on the previous turn.
	LastIntent string

	// LastSlots are the slots accumulated on the previous turn.
	LastSlots map[string]any

	// DetailPending is true when a two-phase summary is awaiting a
	// confirm or decline.
	DetailPending bool

	// FallbackPhase and FallbackSuggestions reflect open fallback
	// recovery state (phase 2 menu selections resolve against them).
	FallbackPhase       int
	FallbackSuggestions []string
	FallbackCategory    string
	LocationPending     bool
}

// Candidate is one ranked classification outcome.
type Candidate struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Slots      map[string]any `json:"slots,omitempty"`
}

// Classification is the router's full output for a turn. The top
// candidate is authoritative; the rest feed disambiguation.
type Classification struct {
	Candidates         []Candidate    `json:"candidates"`
	ExtractedSlots     map[string]any `json:"extracted_slots,omitempty"`
	MessageKind        MessageKind    `json:"message_kind"`
	NeedsClarification bool           `json:"needs_clarification"`
}

// Top returns the leading candidate, or a zero-confidence fallback when
// the candidate list is empty.
func (c Classification) Top() Candidate {
	if len(c.Candidates) == 0 {
		return Candidate{Intent: "fallback", Confidence: 0}
	}
	return c.Candidates[0]
}

// Second returns the runner-up candidate and whether one exists.
func (c Classification) Second() (Candidate, bool) {
	if len(c.Candidates) < 2 {
		return Candidate{}, false
	}
	return c.Candidates[1], true
}

// normalize lowercases and collapses whitespace for matching and cache
// keying. The original message is never modified.
func normalize(message string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(message))), " ")
}

// cacheKey hashes the normalized message together with the metadata
// fingerprint. Two users in different ASLs never share an entry.
func cacheKey(message string, meta Metadata) string {
	sum := sha256.Sum256([]byte(normalize(message) + "\x00" + meta.Fingerprint()))
	return hex.EncodeToString(sum[:])
}

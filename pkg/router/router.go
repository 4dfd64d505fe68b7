package router

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vigila-ai/vigila/pkg/config"
	"github.com/vigila-ai/vigila/pkg/intents"
	"github.com/vigila-ai/vigila/pkg/llms"
	"github.com/vigila-ai/vigila/pkg/observability"
	"github.com/vigila-ai/vigila/pkg/retriever"
)

// tunables are the thresholds a config reload may change while turns
// are in flight. Swapped atomically as a unit.
type tunables struct {
	highThreshold    float64
	minThreshold     float64
	ambiguityGap     float64
	fewShot          int
	maxMessageTokens int
}

// Router runs the four-layer classification cascade.
type Router struct {
	provider  llms.Provider
	retriever retriever.Retriever
	cache     *classificationCache
	group     singleflight.Group

	tun          atomic.Pointer[tunables]
	classifyTemp float64

	rubricOnce sync.Once
	rubricText string
}

// New builds a router. The retriever may be nil, in which case the
// classify prompt carries no few-shot examples.
func New(cfg config.RouterConfig, cacheCfg config.ClassificationCacheConfig, provider llms.Provider, ret retriever.Retriever, classifyTemp float64) *Router {
	r := &Router{
		provider:     provider,
		retriever:    ret,
		cache:        newClassificationCache(cacheCfg.Capacity, time.Duration(cacheCfg.TTLSeconds)*time.Second),
		classifyTemp: classifyTemp,
	}
	r.Reconfigure(cfg)
	return r
}

// Reconfigure swaps the threshold set. Safe under concurrent Classify.
func (r *Router) Reconfigure(cfg config.RouterConfig) {
	r.tun.Store(&tunables{
		highThreshold:    cfg.HighThreshold,
		minThreshold:     cfg.MinThreshold,
		ambiguityGap:     cfg.AmbiguityGap,
		fewShot:          cfg.FewShot,
		maxMessageTokens: cfg.MaxMessageTokens,
	})
}

// Classify resolves a message into ranked intent candidates. It never
// returns an error: every failure mode degrades to a fallback
// classification so the dialogue manager always receives a well-formed
// result.
func (r *Router) Classify(ctx context.Context, message string, meta Metadata, hints Hints) Classification {
	if strings.TrimSpace(message) == "" {
		return degraded()
	}

	extracted := ExtractSlots(message)

	// An open clarification question short-circuits the cascade when the
	// answer is recognizable without the model.
	if cls, ok := r.resolvePending(ctx, message, extracted, hints); ok {
		return cls
	}

	if cls, ok := applyHeuristics(message, extracted, hints); ok {
		cls.NeedsClarification = r.needsClarification(cls)
		return cls
	}

	// Session hints bias the classify prompt, so a hinted result is
	// valid only for this sender's current state: it bypasses the cache
	// and the call dedup entirely.
	if len(hintLines(hints)) > 0 {
		recordCacheEvent("bypass")
		return r.finish(r.classifyWithLLM(ctx, message, hints), extracted)
	}

	key := cacheKey(message, meta)
	if cached, ok := r.cache.get(key); ok {
		recordCacheEvent("hit")
		return r.finish(cached, extracted)
	}
	recordCacheEvent("miss")

	// Identical concurrent misses share one LLM call.
	result, _, _ := r.group.Do(key, func() (any, error) {
		cls := r.classifyWithLLM(ctx, message, hints)
		if cls.Top().Confidence > 0 {
			r.cache.put(key, cls)
		}
		return cls, nil
	})

	return r.finish(result.(Classification), extracted)
}

// finish merges the regex-extracted slots over the classification output
// and computes the clarification flag. Regex wins on conflict.
func (r *Router) finish(cls Classification, extracted map[string]any) Classification {
	cls.ExtractedSlots = mergeSlots(cls.ExtractedSlots, extracted)
	for i := range cls.Candidates {
		cls.Candidates[i].Slots = mergeSlots(cls.Candidates[i].Slots, extracted)
	}
	cls.NeedsClarification = r.needsClarification(cls)
	return cls
}

func (r *Router) needsClarification(cls Classification) bool {
	tun := r.tun.Load()
	top := cls.Top()
	if top.Confidence >= tun.highThreshold {
		return false
	}
	if top.Confidence < tun.minThreshold {
		return true
	}
	if second, ok := cls.Second(); ok && top.Confidence-second.Confidence <= tun.ambiguityGap {
		return true
	}
	return false
}

// resolvePending handles answers to the previous turn's question:
// disambiguation picks, slot answers, and location follow-ups.
func (r *Router) resolvePending(ctx context.Context, message string, extracted map[string]any, hints Hints) (Classification, bool) {
	if len(hints.PendingIntents) > 0 {
		if chosen, ok := resolveSelection(message, hints.PendingIntents); ok {
			cls := settle(chosen, 0.90, extracted, KindSelection)
			return cls, true
		}
	}

	if hints.PendingSlot == "" {
		return Classification{}, false
	}
	if hints.LastIntent == "" || !intents.IsValid(hints.LastIntent) {
		return Classification{}, false
	}

	slots := mergeSlots(hints.LastSlots, extracted)

	if hints.LocationPending || strings.Contains(hints.PendingSlot, intents.SlotLocation) {
		if _, ok := slots[intents.SlotLocation]; !ok {
			slots[intents.SlotLocation] = r.fillLocation(ctx, message)
		}
		return settle(hints.LastIntent, 0.90, slots, KindContinuation), true
	}

	// The asked-for slot (or one of its alternatives) must actually be
	// in the answer; otherwise the message is reclassified from scratch.
	for _, name := range strings.Split(hints.PendingSlot, "|") {
		if _, ok := slots[name]; ok {
			return settle(hints.LastIntent, 0.90, slots, KindContinuation), true
		}
	}

	// A short free-text answer to a topic-style question fills the slot
	// verbatim.
	if hints.PendingSlot == intents.SlotTopic && len(strings.Fields(message)) <= 6 {
		slots[intents.SlotTopic] = strings.Trim(strings.TrimSpace(message), ".,!?")
		return settle(hints.LastIntent, 0.90, slots, KindContinuation), true
	}

	return Classification{}, false
}

// resolveSelection matches a clarification answer against the offered
// intents, by position ("1", "la seconda") or by keyword overlap.
func resolveSelection(message string, offered []string) (string, bool) {
	normalized := foldAccents(normalize(message))

	if n, err := strconv.Atoi(strings.Trim(normalized, ".) ")); err == nil {
		if n >= 1 && n <= len(offered) {
			return offered[n-1], true
		}
	}
	for i, word := range []string{"prima", "primo", "seconda", "secondo", "terza", "terzo"} {
		if strings.Contains(normalized, word) {
			idx := i / 2
			if idx < len(offered) {
				return offered[idx], true
			}
		}
	}

	best := ""
	bestScore := 0
	for _, name := range offered {
		def, ok := intents.Get(name)
		if !ok {
			continue
		}
		score := 0
		for _, kw := range def.Keywords {
			if strings.Contains(normalized, foldAccents(kw)) {
				score++
			}
		}
		for _, word := range strings.Fields(foldAccents(normalize(def.Description))) {
			if len(word) > 3 && strings.Contains(normalized, word) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = name, score
		}
	}
	return best, bestScore > 0
}

var accentReplacer = strings.NewReplacer("à", "a", "è", "e", "é", "e", "ì", "i", "ò", "o", "ù", "u")

func foldAccents(s string) string {
	return accentReplacer.Replace(s)
}

// CacheSize reports the number of live cache entries, for /status.
func (r *Router) CacheSize() int {
	return r.cache.len()
}

func recordCacheEvent(event string) {
	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordCacheEvent(event)
	}
}

package router

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigila-ai/vigila/pkg/config"
	"github.com/vigila-ai/vigila/pkg/intents"
	"github.com/vigila-ai/vigila/pkg/llms"
)

// fakeProvider returns canned responses and counts calls.
type fakeProvider struct {
	response string
	err      error
	calls    atomic.Int64
}

func (f *fakeProvider) Chat(_ context.Context, _ []llms.Message, _ llms.Options) (string, error) {
	f.calls.Add(1)
	return f.response, f.err
}

func (f *fakeProvider) ChatStream(_ context.Context, _ []llms.Message, _ llms.Options) (<-chan llms.StreamChunk, error) {
	ch := make(chan llms.StreamChunk, 1)
	ch <- llms.StreamChunk{Type: "done"}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Ping(context.Context) error { return f.err }
func (f *fakeProvider) ModelName() string          { return "fake" }
func (f *fakeProvider) Close() error               { return nil }

func newTestRouter(provider llms.Provider) *Router {
	cfg := config.RouterConfig{}
	cfg.SetDefaults()
	cacheCfg := config.ClassificationCacheConfig{}
	cacheCfg.SetDefaults()
	return New(cfg, cacheCfg, provider, nil, 0.1)
}

func TestGreetingSkipsLLM(t *testing.T) {
	provider := &fakeProvider{}
	r := newTestRouter(provider)

	cls := r.Classify(context.Background(), "ciao", Metadata{}, Hints{})
	assert.Equal(t, intents.Greet, cls.Top().Intent)
	assert.GreaterOrEqual(t, cls.Top().Confidence, 0.90)
	assert.EqualValues(t, 0, provider.calls.Load())
}

func TestEmptyMessageFallsBackWithoutLLM(t *testing.T) {
	provider := &fakeProvider{}
	r := newTestRouter(provider)

	cls := r.Classify(context.Background(), "   ", Metadata{}, Hints{})
	assert.Equal(t, intents.Fallback, cls.Top().Intent)
	assert.Zero(t, cls.Top().Confidence)
	assert.EqualValues(t, 0, provider.calls.Load())
}

func TestHeuristicsDisambiguateRiskPhrases(t *testing.T) {
	r := newTestRouter(&fakeProvider{})

	cls := r.Classify(context.Background(), "quali operatori non sono mai stati ispezionati?", Metadata{}, Hints{})
	assert.Equal(t, intents.AskMaiIspezionati, cls.Top().Intent)

	cls = r.Classify(context.Background(), "fammi vedere chi ha avuto sanzioni", Metadata{}, Hints{})
	assert.Equal(t, intents.AskConSanzioni, cls.Top().Intent)
}

func TestDelayedPlansSplitOnPlanCode(t *testing.T) {
	r := newTestRouter(&fakeProvider{})

	cls := r.Classify(context.Background(), "quali piani sono in ritardo?", Metadata{}, Hints{})
	assert.Equal(t, intents.AskPianiInRitardo, cls.Top().Intent)

	cls = r.Classify(context.Background(), "il piano A1 è in ritardo?", Metadata{}, Hints{})
	assert.Equal(t, intents.AskPianoRitardo, cls.Top().Intent)
	assert.Equal(t, "A1", cls.Top().Slots[intents.SlotPlanCode])
}

func TestConfirmOnlyWithDetailPending(t *testing.T) {
	provider := &fakeProvider{response: `{"candidates":[{"intent":"ask_help","confidence":0.7,"slots":{}}],"message_kind":"vague"}`}
	r := newTestRouter(provider)

	cls := r.Classify(context.Background(), "sì", Metadata{}, Hints{DetailPending: true})
	assert.Equal(t, intents.ConfirmShowDetails, cls.Top().Intent)
	assert.EqualValues(t, 0, provider.calls.Load())

	// Without a pending offer "sì" goes through the normal cascade.
	cls = r.Classify(context.Background(), "sì", Metadata{}, Hints{})
	assert.NotEqual(t, intents.ConfirmShowDetails, cls.Top().Intent)
}

func TestConfirmMatchesAccentedVariants(t *testing.T) {
	provider := &fakeProvider{response: `{"candidates":[{"intent":"ask_help","confidence":0.7,"slots":{}}],"message_kind":"vague"}`}
	r := newTestRouter(provider)

	for _, msg := range []string{"sì", "Sì", "sì grazie", "sì,", "si", "certo"} {
		cls := r.Classify(context.Background(), msg, Metadata{}, Hints{DetailPending: true})
		assert.Equal(t, intents.ConfirmShowDetails, cls.Top().Intent, "message %q", msg)
	}
	assert.EqualValues(t, 0, provider.calls.Load())
}

func TestLLMClassificationMergesRegexSlots(t *testing.T) {
	provider := &fakeProvider{response: `{"candidates":[{"intent":"ask_piano_description","confidence":0.85,"slots":{"plan_code":"B9","bogus":"x"}}],"message_kind":"specific"}`}
	r := newTestRouter(provider)

	cls := r.Classify(context.Background(), "di cosa tratta il piano A1?", Metadata{}, Hints{})
	require.Equal(t, intents.AskPianoDescription, cls.Top().Intent)
	// Regex extraction wins over the model's slot value; unknown keys
	// are dropped.
	assert.Equal(t, "A1", cls.Top().Slots[intents.SlotPlanCode])
	assert.NotContains(t, cls.Top().Slots, "bogus")
}

func TestCacheHitAvoidsSecondCall(t *testing.T) {
	provider := &fakeProvider{response: `{"candidates":[{"intent":"ask_procedure_info","confidence":0.8,"slots":{"topic":"campionamento"}}],"message_kind":"specific"}`}
	r := newTestRouter(provider)

	first := r.Classify(context.Background(), "come funziona il campionamento?", Metadata{ASL: "CE"}, Hints{})
	second := r.Classify(context.Background(), "Come funziona il  campionamento?", Metadata{ASL: "CE"}, Hints{})

	assert.EqualValues(t, 1, provider.calls.Load())
	assert.Equal(t, first.Top().Intent, second.Top().Intent)

	// A different metadata fingerprint is a different cache entry.
	r.Classify(context.Background(), "come funziona il campionamento?", Metadata{ASL: "NA"}, Hints{})
	assert.EqualValues(t, 2, provider.calls.Load())
}

func TestHintedClassificationBypassesCache(t *testing.T) {
	provider := &fakeProvider{response: `{"candidates":[{"intent":"ask_procedure_info","confidence":0.8,"slots":{}}],"message_kind":"specific"}`}
	r := newTestRouter(provider)
	hinted := Hints{LastIntent: intents.AskPianoDescription}

	// A hint-biased classification is private to this sender's state
	// and must not seed the shared cache.
	r.Classify(context.Background(), "come funziona il campionamento?", Metadata{}, hinted)
	require.EqualValues(t, 1, provider.calls.Load())
	assert.Zero(t, r.CacheSize())

	// A hint-free sender gets its own call, which does get cached.
	r.Classify(context.Background(), "come funziona il campionamento?", Metadata{}, Hints{})
	assert.EqualValues(t, 2, provider.calls.Load())
	assert.Equal(t, 1, r.CacheSize())

	// And a hinted sender never reads the cached hint-free result.
	r.Classify(context.Background(), "come funziona il campionamento?", Metadata{}, hinted)
	assert.EqualValues(t, 3, provider.calls.Load())
}

func TestLLMFailureDegradesToFallback(t *testing.T) {
	provider := &fakeProvider{err: errors.New("boom")}
	r := newTestRouter(provider)

	cls := r.Classify(context.Background(), "una domanda qualsiasi", Metadata{}, Hints{})
	assert.Equal(t, intents.Fallback, cls.Top().Intent)
	assert.Zero(t, cls.Top().Confidence)
}

func TestUnparseableOutputDegradesToFallback(t *testing.T) {
	provider := &fakeProvider{response: "non sono sicuro"}
	r := newTestRouter(provider)

	cls := r.Classify(context.Background(), "una domanda qualsiasi", Metadata{}, Hints{})
	assert.Equal(t, intents.Fallback, cls.Top().Intent)
}

func TestSelectionAgainstPendingIntents(t *testing.T) {
	r := newTestRouter(&fakeProvider{})
	hints := Hints{PendingIntents: []string{intents.AskRiskBasedPriority, intents.AskTopRiskActivities}}

	cls := r.Classify(context.Background(), "attività", Metadata{}, hints)
	assert.Equal(t, intents.AskTopRiskActivities, cls.Top().Intent)
	assert.Equal(t, KindSelection, cls.MessageKind)

	cls = r.Classify(context.Background(), "la prima", Metadata{}, hints)
	assert.Equal(t, intents.AskRiskBasedPriority, cls.Top().Intent)

	cls = r.Classify(context.Background(), "2", Metadata{}, hints)
	assert.Equal(t, intents.AskTopRiskActivities, cls.Top().Intent)
}

func TestPendingSlotAnswerContinuesLastIntent(t *testing.T) {
	provider := &fakeProvider{}
	r := newTestRouter(provider)
	hints := Hints{
		PendingSlot: intents.SlotPlanCode,
		LastIntent:  intents.AskPianoDescription,
	}

	cls := r.Classify(context.Background(), "A1", Metadata{}, hints)
	assert.Equal(t, intents.AskPianoDescription, cls.Top().Intent)
	assert.Equal(t, KindContinuation, cls.MessageKind)
	assert.Equal(t, "A1", cls.Top().Slots[intents.SlotPlanCode])
	assert.EqualValues(t, 0, provider.calls.Load())
}

func TestLocationPendingFillsFromLLM(t *testing.T) {
	provider := &fakeProvider{response: `{"address": "via Roma 15, Caserta"}`}
	r := newTestRouter(provider)
	hints := Hints{
		PendingSlot:     intents.SlotLocation,
		LastIntent:      intents.AskEstablishmentsNearby,
		LocationPending: true,
	}

	cls := r.Classify(context.Background(), "mi trovo in via Roma 15 a Caserta", Metadata{}, hints)
	assert.Equal(t, intents.AskEstablishmentsNearby, cls.Top().Intent)
	assert.Equal(t, "via Roma 15, Caserta", cls.Top().Slots[intents.SlotLocation])
}

func TestNeedsClarificationInAmbiguityBand(t *testing.T) {
	provider := &fakeProvider{response: `{"candidates":[{"intent":"ask_risk_based_priority","confidence":0.58,"slots":{}},{"intent":"ask_top_risk_activities","confidence":0.52,"slots":{}}],"message_kind":"vague"}`}
	r := newTestRouter(provider)

	cls := r.Classify(context.Background(), "stabilimenti a rischio", Metadata{}, Hints{})
	assert.True(t, cls.NeedsClarification)
	second, ok := cls.Second()
	require.True(t, ok)
	assert.Equal(t, intents.AskTopRiskActivities, second.Intent)
}

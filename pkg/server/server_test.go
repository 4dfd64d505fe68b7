package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigila-ai/vigila/pkg/config"
	"github.com/vigila-ai/vigila/pkg/dialogue"
	"github.com/vigila-ai/vigila/pkg/fallback"
	"github.com/vigila-ai/vigila/pkg/graph"
	"github.com/vigila-ai/vigila/pkg/intents"
	"github.com/vigila-ai/vigila/pkg/llms"
	"github.com/vigila-ai/vigila/pkg/response"
	"github.com/vigila-ai/vigila/pkg/router"
	"github.com/vigila-ai/vigila/pkg/session"
	"github.com/vigila-ai/vigila/pkg/tools"
	"github.com/vigila-ai/vigila/pkg/twophase"
)

type offlineProvider struct{}

func (offlineProvider) Chat(context.Context, []llms.Message, llms.Options) (string, error) {
	return `{"candidates":[{"intent":"ask_help","confidence":0.8,"slots":{}}],"message_kind":"vague"}`, nil
}

func (offlineProvider) ChatStream(context.Context, []llms.Message, llms.Options) (<-chan llms.StreamChunk, error) {
	ch := make(chan llms.StreamChunk, 1)
	ch <- llms.StreamChunk{Type: "done"}
	close(ch)
	return ch, nil
}

func (offlineProvider) Ping(context.Context) error { return nil }
func (offlineProvider) ModelName() string          { return "fake" }
func (offlineProvider) Close() error               { return nil }

type staffDirectory map[string]string

func (d staffDirectory) UnitFor(_ context.Context, username string) (string, bool) {
	unit, ok := d[username]
	return unit, ok
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	routerCfg := config.RouterConfig{}
	routerCfg.SetDefaults()
	cacheCfg := config.ClassificationCacheConfig{}
	cacheCfg.SetDefaults()
	twoPhaseCfg := config.TwoPhaseConfig{}
	twoPhaseCfg.SetDefaults()
	serverCfg := config.ServerConfig{}
	serverCfg.SetDefaults()

	dataset := tools.Dataset{
		Plans: []tools.Plan{{Code: "A1", Name: "Piano residui", SamplesDue: 10, SamplesDone: 4}},
	}
	registry, err := tools.NewDefaultRegistry(tools.NewMemStore(dataset))
	require.NoError(t, err)

	store := session.NewStore(5 * time.Minute)
	t.Cleanup(store.Close)

	provider := offlineProvider{}
	rt := router.New(routerCfg, cacheCfg, provider, nil, 0.1)

	g := graph.New(
		rt,
		dialogue.NewManager(routerCfg),
		fallback.NewEngine(nil, 3),
		registry,
		twophase.NewShaper(twoPhaseCfg),
		response.NewGenerator(provider, 0.3, 0),
		store,
		0,
	)

	return New(serverCfg, g, Options{
		Router:    rt,
		Provider:  provider,
		Store:     store,
		Directory: staffDirectory{"rossi": "Servizio Veterinario CE"},
		Version:   "test",
	})
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChatReturnsSingleElementArray(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s.Handler(), "/chat", `{"sender":"u1","message":"ciao","metadata":{"username":"rossi"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var replies []chatReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &replies))
	require.Len(t, replies, 1)

	reply := replies[0]
	assert.Equal(t, "u1", reply.RecipientID)
	assert.Equal(t, intents.Greet, reply.Custom.Intent)
	assert.NotEmpty(t, reply.Text)
	assert.Equal(t, []string{"classify", "dialogue_manager", "greet_tool", "response"}, reply.Custom.ExecutionPath)
	assert.Empty(t, reply.Custom.Error)
}

func TestChatMalformedBodyIs400(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s.Handler(), "/chat", `{"sender": 42`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatGeneratesSenderWhenMissing(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s.Handler(), "/chat", `{"message":"ciao"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var replies []chatReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &replies))
	require.Len(t, replies, 1)
	assert.NotEmpty(t, replies[0].RecipientID)
}

func TestChatStreamEndsWithFinalEvent(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s.Handler(), "/chat/stream", `{"sender":"u1","message":"ciao"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var names []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			names = append(names, strings.TrimPrefix(line, "event: "))
		}
	}
	require.NotEmpty(t, names)
	assert.Equal(t, "status", names[0])
	assert.Equal(t, "final", names[len(names)-1])
	assert.Contains(t, names, "node_timing")
}

func TestParseRunsClassifierOnly(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s.Handler(), "/parse", `{"message":"il piano A1 è in ritardo?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply parseReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, intents.AskPianoRitardo, reply.Intent.Name)
	assert.Equal(t, "A1", reply.Slots[intents.SlotPlanCode])
	assert.False(t, reply.NeedsClarification)
}

func TestHealthAndStatus(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "test", health["version"])

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, "ok", status["llm"])
	assert.EqualValues(t, 0, status["sessions"])
}

func TestEnrichResolvesUnit(t *testing.T) {
	s := newTestServer(t)

	meta := s.enrich(context.Background(), router.Metadata{Username: "rossi"})
	assert.Equal(t, "Servizio Veterinario CE", meta.Unit)

	meta = s.enrich(context.Background(), router.Metadata{Username: "ignoto"})
	assert.Empty(t, meta.Unit)
}

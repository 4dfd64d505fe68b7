package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vigila-ai/vigila/pkg/graph"
	"github.com/vigila-ai/vigila/pkg/response"
	"github.com/vigila-ai/vigila/pkg/router"
)

// chatRequest is the webhook input shape.
type chatRequest struct {
	Sender   string          `json:"sender"`
	Message  string          `json:"message"`
	Metadata router.Metadata `json:"metadata"`
}

// chatCustom is the structured part of a chat reply.
type chatCustom struct {
	Intent           string                `json:"intent"`
	Slots            map[string]any        `json:"slots,omitempty"`
	ExecutionPath    []string              `json:"execution_path"`
	NodeTimings      map[string]int64      `json:"node_timings"`
	TotalExecutionMS int64                 `json:"total_execution_ms"`
	Suggestions      []response.Suggestion `json:"suggestions,omitempty"`
	HasMoreDetails   bool                  `json:"has_more_details"`
	Error            string                `json:"error,omitempty"`
}

// chatReply is one element of the webhook response array.
type chatReply struct {
	Text        string     `json:"text"`
	RecipientID string     `json:"recipient_id"`
	Custom      chatCustom `json:"custom"`
}

func toReply(sender string, result graph.TurnResult) chatReply {
	return chatReply{
		Text:        result.Text,
		RecipientID: sender,
		Custom: chatCustom{
			Intent:           result.Intent,
			Slots:            result.Slots,
			ExecutionPath:    result.ExecutionPath,
			NodeTimings:      result.NodeTimings,
			TotalExecutionMS: result.TotalMS,
			Suggestions:      result.Suggestions,
			HasMoreDetails:   result.HasMoreDetails,
			Error:            result.Error,
		},
	}
}

func decodeChatRequest(r *http.Request) (chatRequest, bool) {
	var req chatRequest
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		return req, false
	}
	if req.Sender == "" {
		req.Sender = uuid.NewString()
	}
	return req, true
}

// handleChat runs a full turn and replies with a single-element JSON
// array. Processing failures, timeouts included, still produce 200 with
// custom.error set; only malformed input gets 400.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(r)
	if !ok {
		http.Error(w, `{"error":"malformed request body"}`, http.StatusBadRequest)
		return
	}

	meta := s.enrich(r.Context(), req.Metadata)
	result := s.graph.Run(r.Context(), req.Sender, req.Message, meta, nil)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode([]chatReply{toReply(req.Sender, result)}); err != nil {
		slog.Warn("Failed to write chat response", "error", err)
	}
}

// handleChatStream runs a turn while forwarding graph events as SSE.
// The stream always terminates with a final (or error) event; a client
// disconnect cancels the turn through the request context.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(r)
	if !ok {
		http.Error(w, `{"error":"malformed request body"}`, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	writeEvent := func(name string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Warn("Failed to marshal SSE payload", "event", name, "error", err)
			return
		}
		if _, err := w.Write([]byte("event: " + name + "\ndata: " + string(data) + "\n\n")); err != nil {
			return
		}
		flusher.Flush()
	}

	meta := s.enrich(r.Context(), req.Metadata)
	result := s.graph.Run(r.Context(), req.Sender, req.Message, meta, func(ev graph.Event) {
		writeEvent(ev.Type, ev.Payload)
	})

	if result.Error != "" && result.Error != "tool_error" {
		writeEvent("error", map[string]any{"error": result.Error, "text": result.Text})
		return
	}
	writeEvent("final", toReply(req.Sender, result))
}

// parseReply is the debug classifier output.
type parseReply struct {
	Text               string         `json:"text"`
	Intent             parseIntent    `json:"intent"`
	Entities           []parseEntity  `json:"entities"`
	Slots              map[string]any `json:"slots"`
	NeedsClarification bool           `json:"needs_clarification"`
}

type parseIntent struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type parseEntity struct {
	Entity string `json:"entity"`
	Value  any    `json:"value"`
}

// handleParse runs only the classifier, bypassing session state.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(r)
	if !ok {
		http.Error(w, `{"error":"malformed request body"}`, http.StatusBadRequest)
		return
	}

	cls := s.router.Classify(r.Context(), req.Message, req.Metadata, router.Hints{})
	top := cls.Top()

	entities := make([]parseEntity, 0, len(top.Slots))
	for name, value := range top.Slots {
		entities = append(entities, parseEntity{Entity: name, Value: value})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(parseReply{
		Text:               req.Message,
		Intent:             parseIntent{Name: top.Intent, Confidence: top.Confidence},
		Entities:           entities,
		Slots:              top.Slots,
		NeedsClarification: cls.NeedsClarification,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStatus reports component readiness. The LLM probe is bounded so
// a hung backend cannot wedge the endpoint.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"version": s.version,
	}

	llmStatus := "ok"
	if s.provider != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.provider.Ping(ctx); err != nil {
			llmStatus = "unreachable"
			status["status"] = "degraded"
		}
	} else {
		llmStatus = "not configured"
	}
	status["llm"] = llmStatus

	if s.retriever != nil {
		status["few_shot_examples"] = s.retriever.Size()
	}
	if s.store != nil {
		status["sessions"] = s.store.Count()
	}
	if s.router != nil {
		status["classification_cache"] = s.router.CacheSize()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

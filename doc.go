// Package vigila is a conversational backend for veterinary inspection
// planning. It answers Italian-language questions from inspection
// officers about control plans, establishments, and risk priorities.
//
// Incoming messages flow through a four-layer intent cascade
// (heuristics, regex slot extraction, a classification cache, and an
// LLM JSON-mode classifier), a rule-based dialogue manager, and a
// conversation graph that executes domain tools against the inspection
// dataset and renders responses, optionally streamed over SSE.
//
// # Quick Start
//
// Install the server:
//
//	go install github.com/vigila-ai/vigila/cmd/vigila@latest
//
// Create a configuration file:
//
//	llm:
//	  backend: "ollama"
//	  model: "llama3.1:8b"
//	data:
//	  dataset_path: "dataset.yaml"
//
// Start the server:
//
//	vigila serve --config vigila.yaml
//
// Then POST chat turns to /chat, or /chat/stream for SSE streaming:
//
//	curl -X POST localhost:5005/chat \
//	  -d '{"sender": "rossi", "message": "quali piani sono in ritardo?"}'
//
// The packages under pkg/ are usable as a library; cmd/vigila wires
// them into the full server.
package vigila

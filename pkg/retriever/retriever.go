// Package retriever indexes labeled example utterances and returns the
// ones most similar to an incoming message. The classifier uses them as
// few-shot demonstrations, so retrieval quality directly shapes intent
// accuracy on paraphrased questions.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/philippgille/chromem-go"
	"gopkg.in/yaml.v3"
)

const collectionName = "few_shot_examples"

// Example is one labeled utterance from the corpus.
type Example struct {
	Text   string `yaml:"text"`
	Intent string `yaml:"intent"`
}

// Retriever returns the k corpus examples most similar to query.
type Retriever interface {
	TopK(ctx context.Context, query string, k int) ([]Example, error)
	Size() int
}

// Store is an in-memory chromem-go index over the example corpus.
type Store struct {
	col  *chromem.Collection
	mu   sync.RWMutex
	size int
}

// NewStore builds an empty index using embedder for both documents and
// queries.
func NewStore(embedder Embedder) (*Store, error) {
	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}

	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(collectionName, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create example collection: %w", err)
	}
	return &Store{col: col}, nil
}

// Seed indexes the given examples. Called once at startup; embedding a
// few hundred short utterances takes seconds with a local model.
func (s *Store) Seed(ctx context.Context, examples []Example) error {
	if len(examples) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(examples))
	for i, ex := range examples {
		if ex.Text == "" || ex.Intent == "" {
			return fmt.Errorf("example %d is missing text or intent", i)
		}
		docs = append(docs, chromem.Document{
			ID:       fmt.Sprintf("ex-%d", i),
			Content:  ex.Text,
			Metadata: map[string]string{"intent": ex.Intent},
		})
	}

	if err := s.col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to index examples: %w", err)
	}

	s.mu.Lock()
	s.size += len(docs)
	s.mu.Unlock()

	slog.Info("Indexed few-shot examples", "count", len(docs))
	return nil
}

// TopK returns the k examples most similar to query, best first.
func (s *Store) TopK(ctx context.Context, query string, k int) ([]Example, error) {
	s.mu.RLock()
	size := s.size
	s.mu.RUnlock()

	if size == 0 || k <= 0 {
		return nil, nil
	}
	if k > size {
		k = size
	}

	results, err := s.col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("example retrieval failed: %w", err)
	}

	out := make([]Example, 0, len(results))
	for _, r := range results {
		out = append(out, Example{Text: r.Content, Intent: r.Metadata["intent"]})
	}
	return out, nil
}

// Size returns the number of indexed examples.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// LoadCorpus reads a YAML example corpus from path. An empty path yields
// the built-in corpus.
func LoadCorpus(path string) ([]Example, error) {
	if path == "" {
		return DefaultCorpus(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read example corpus: %w", err)
	}

	var doc struct {
		Examples []Example `yaml:"examples"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse example corpus: %w", err)
	}
	if len(doc.Examples) == 0 {
		return nil, fmt.Errorf("example corpus %s contains no examples", path)
	}
	return doc.Examples, nil
}

var _ Retriever = (*Store)(nil)
